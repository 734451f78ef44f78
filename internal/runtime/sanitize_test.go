package runtime_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/flowchat/internal/runtime"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendFreeText_StripsControlCharacters(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Hello World", "Hello World"},
		{"safe controls", "Line1\nLine2\tTabbed", "Line1\nLine2\tTabbed"},
		{"ansi escape", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"null byte", "Null\x00Byte", "NullByte"},
		{"bell", "Ding\x07", "Ding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, clock := newEngine(t, inputFlow())
			s := newSession(t, eng, runtime.SessionOptions{})
			ctx := context.Background()
			require.NoError(t, s.Start(ctx))
			clock.Flush(flushLimit)

			require.NoError(t, s.SendFreeText(ctx, tt.input))
			assert.Equal(t, []string{tt.want}, s.Snapshot().Transcript())
		})
	}
}

func TestSanitize_RejectsOversizedAndInvalid(t *testing.T) {
	eng, clock := newEngine(t, inputFlow(), runtime.WithMaxInputSize(8))
	s := newSession(t, eng, runtime.SessionOptions{})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	clock.Flush(flushLimit)
	before := s.Snapshot()

	assert.ErrorIs(t, s.SendFreeText(ctx, strings.Repeat("a", 9)), domain.ErrInputTooLarge)
	assert.NoError(t, s.SendFreeText(ctx, strings.Repeat("a", 8)))
	assert.ErrorIs(t, s.SendFreeText(ctx, "bad\xff"), domain.ErrInvalidUTF8)
	assert.ErrorIs(t, s.SubmitInput(ctx, "age", strings.Repeat("1", 9)), domain.ErrInputTooLarge)

	// Only the accepted message was recorded; the prompt is still open.
	snap := s.Snapshot()
	assert.Len(t, snap.Timeline, len(before.Timeline)+1)
	_, open := snap.ActivePrompt()
	assert.True(t, open)
}

func TestSubmitInput_SanitizedValueIsStored(t *testing.T) {
	eng, clock := newEngine(t, inputFlow())
	s := newSession(t, eng, runtime.SessionOptions{})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	clock.Flush(flushLimit)

	require.NoError(t, s.SubmitInput(ctx, "age", "3\x000"))
	assert.Equal(t, "30", s.Snapshot().Variables["age"])
}
