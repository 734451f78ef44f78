package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/flowchat/pkg/adapters/memory"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/persistence/middleware"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"(?i)email", "^phone$"})
	require.NoError(t, err)
	store := mw(underlying)

	state := domain.NewSessionState("sess-1", "signup")
	state.Variables["email"] = "ana@example.com"
	state.Variables["phone"] = "5551234"
	state.Variables["name"] = "Ana"
	state.Timeline = []domain.TimelineEvent{
		{ID: "e1", Origin: domain.OriginBot, NodeID: "ask-name", Prompt: &domain.InputPrompt{NodeID: "ask-name", Variable: "name", Submitted: true}},
		{ID: "e2", Origin: domain.OriginUser, NodeID: "ask-name", Content: "Ana"},
		{ID: "e3", Origin: domain.OriginBot, NodeID: "ask-email", Prompt: &domain.InputPrompt{NodeID: "ask-email", Variable: "email", Submitted: true}},
		{ID: "e4", Origin: domain.OriginUser, NodeID: "ask-email", Content: "ana@example.com"},
	}

	require.NoError(t, store.Save(ctx, "sess-1", state))

	stored, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, stored.Variables["email"])
	assert.Equal(t, middleware.Mask, stored.Variables["phone"])
	assert.Equal(t, "Ana", stored.Variables["name"])
	assert.Equal(t, "Ana", stored.Timeline[1].Content)
	assert.Equal(t, middleware.Mask, stored.Timeline[3].Content)

	// The caller's state is untouched.
	assert.Equal(t, "ana@example.com", state.Variables["email"])
	assert.Equal(t, "ana@example.com", state.Timeline[3].Content)
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_MaskThenEncrypt(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"email"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)
	require.NoError(t, store.Save(ctx, "sess-1", sampleState()))

	raw, err := underlying.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Contains(t, raw.Variables, middleware.EnvelopeKey)

	loaded, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Variables["email"])
}

func TestChain_SnapshotStoreContract(t *testing.T) {
	pii, err := middleware.NewPIIMiddleware([]string{"email"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	ports.RunSnapshotStoreContract(t, middleware.Chain(memory.NewStore(), pii, enc))
}
