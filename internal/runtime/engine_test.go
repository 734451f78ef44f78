package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/flowchat/internal/runtime"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioA_GateResumesOnFreeText(t *testing.T) {
	def := chain(start(false, ""), message("hi", "Hi", true), end("bye", "Bye"))
	eng, clock := newEngine(t, def)
	s := newSession(t, eng, runtime.SessionOptions{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	clock.Flush(flushLimit)

	snap := s.Snapshot()
	assert.Equal(t, []string{"Hi"}, snap.Transcript())
	assert.Equal(t, domain.ModeGated, snap.Mode)
	assert.True(t, s.WaitingForInteraction())
	assert.Equal(t, "hi", snap.PendingNodeID())

	require.NoError(t, s.SendFreeText(ctx, "hello"))
	clock.Flush(flushLimit)

	snap = s.Snapshot()
	assert.Equal(t, []string{"Hi", "hello", "Bye"}, snap.Transcript())
	assert.True(t, snap.Completed())
	assert.Equal(t, domain.OriginUser, snap.Timeline[1].Origin)
	assert.False(t, snap.Typing)
}

func TestScenarioB_InputCapturesAndCompletes(t *testing.T) {
	ask := domain.NewNode("ask", domain.InputData{Label: "Your email?", InputType: domain.InputEmail, Variable: "email", DBField: "contact_email"})
	def := chain(start(false, ""), ask, end("done", ""))
	tracker := &fakeTracker{}
	eng, clock := newEngine(t, def, runtime.WithLeadTracker(tracker))
	s := newSession(t, eng, runtime.SessionOptions{IPAddress: "10.0.0.1", UserAgent: "test"})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	clock.Flush(flushLimit)

	snap := s.Snapshot()
	require.Len(t, snap.Timeline, 1)
	require.NotNil(t, snap.Timeline[0].Prompt)
	assert.False(t, snap.Timeline[0].Prompt.Submitted)
	assert.Equal(t, domain.ModeAwaitingInput, snap.Mode)
	assert.False(t, s.WaitingForInteraction(), "input prompts bypass the interaction gate")

	require.NoError(t, s.SubmitInput(ctx, "ask", "a@b.com"))
	clock.Flush(flushLimit)

	snap = s.Snapshot()
	assert.Equal(t, []string{"a@b.com", runtime.DefaultThankYouMessage}, snap.Transcript())
	assert.Equal(t, "a@b.com", snap.Variables["email"])
	assert.True(t, snap.Timeline[0].Prompt.Submitted)
	assert.True(t, snap.Completed())

	assert.Equal(t, 1, tracker.count(domain.LeadCreateSession))
	assert.Equal(t, 1, tracker.count(domain.LeadCaptureField))
	assert.Equal(t, 1, tracker.count(domain.LeadCompleteSession))
	assert.Equal(t, []domain.LeadOperation{domain.LeadCreateSession, domain.LeadCaptureField, domain.LeadCompleteSession}, tracker.calls)

	require.Len(t, tracker.captures, 1)
	c := tracker.captures[0]
	assert.Equal(t, "email", c.Variable)
	assert.Equal(t, "contact_email", c.DBField)
	assert.Equal(t, domain.InputEmail, c.InputType)
	assert.Equal(t, snap.SessionID, c.SessionID)
	assert.Equal(t, "10.0.0.1", tracker.sessions[0].IPAddress)
	assert.Equal(t, "lead-1", snap.LeadID)
}

func TestScenarioC_ZeroDelayAdvancesWithoutGate(t *testing.T) {
	def := chain(
		start(false, ""),
		message("one", "One", false),
		domain.NewNode("pause", domain.DelayData{DurationMs: 0, ShowTyping: true}),
		message("two", "Two", false),
	)
	eng, clock := newEngine(t, def)

	var modes []domain.Mode
	s := newSession(t, eng, runtime.SessionOptions{Hooks: domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, st *domain.SessionState) { modes = append(modes, st.Mode) },
	}})

	require.NoError(t, s.Start(context.Background()))
	clock.Flush(flushLimit)

	snap := s.Snapshot()
	assert.Equal(t, []string{"One", "Two"}, snap.Transcript())
	assert.Equal(t, domain.ModeHalted, snap.Mode)
	assert.NotContains(t, modes, domain.ModeGated)
}

func TestMessage_TimingContract(t *testing.T) {
	def := chain(start(false, ""), message("hi", "Hi", true))
	eng, clock := newEngine(t, def)
	s := newSession(t, eng, runtime.SessionOptions{})

	require.NoError(t, s.Start(context.Background()))

	clock.Advance(499 * time.Millisecond)
	assert.False(t, s.Typing(), "typing starts after the entry delay")

	clock.Advance(time.Millisecond)
	assert.True(t, s.Typing())
	assert.Empty(t, s.Timeline())

	// One word clamps to the minimum typing delay.
	clock.Advance(999 * time.Millisecond)
	assert.Empty(t, s.Timeline())

	clock.Advance(time.Millisecond)
	assert.False(t, s.Typing())
	assert.Len(t, s.Timeline(), 1)
	assert.True(t, s.WaitingForInteraction())
}

func TestCompletion_ExactlyOnce(t *testing.T) {
	def := chain(
		start(true, "Welcome!"),
		message("m1", "First message", false),
		domain.NewNode("img", domain.MediaData{MediaType: domain.MediaImage, MediaURL: "https://cdn/x.png", WaitForInteraction: true}),
		domain.NewNode("wait", domain.DelayData{DurationMs: 1500, ShowTyping: true}),
		end("bye", "Bye now"),
	)
	eng, clock := newEngine(t, def)

	completions := 0
	last := domain.ModeIdle
	s := newSession(t, eng, runtime.SessionOptions{Hooks: domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, st *domain.SessionState) {
			if st.Mode == domain.ModeCompleted && last != domain.ModeCompleted {
				completions++
			}
			last = st.Mode
		},
	}})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	for i := 0; i < 10 && !s.Snapshot().Completed(); i++ {
		clock.Flush(flushLimit)
		if s.WaitingForInteraction() {
			require.NoError(t, s.SendFreeText(ctx, "ok"))
		}
	}
	clock.Flush(flushLimit)

	assert.True(t, s.Snapshot().Completed())
	assert.Equal(t, 1, completions)

	// Further messages after completion are recorded but change nothing else.
	require.NoError(t, s.SendFreeText(ctx, "anyone?"))
	clock.Flush(flushLimit)
	assert.Equal(t, 1, completions)
}

func TestTraversal_HaltsWithoutEdge(t *testing.T) {
	tests := []struct {
		name string
		def  *domain.Definition
	}{
		{"no outgoing edge", chain(start(false, ""), message("only", "Alone", false))},
		{"dangling edge", func() *domain.Definition {
			d := chain(start(false, ""), message("m", "Dangling", false))
			d.Edges = append(d.Edges, domain.FlowEdge{SourceNodeID: "m", TargetNodeID: "ghost"})
			return d
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, clock := newEngine(t, tt.def)
			s := newSession(t, eng, runtime.SessionOptions{})

			require.NoError(t, s.Start(context.Background()))
			clock.Flush(flushLimit)

			snap := s.Snapshot()
			assert.Equal(t, domain.ModeHalted, snap.Mode)
			assert.Len(t, snap.Transcript(), 1)
			assert.Equal(t, 0, clock.Pending())
		})
	}
}

func TestStart_MissingStartNode(t *testing.T) {
	def := &domain.Definition{
		Flow:  domain.Flow{ID: "draft"},
		Nodes: []domain.FlowNode{message("m", "Hi", false)},
	}
	eng, _ := newEngine(t, def)
	s := newSession(t, eng, runtime.SessionOptions{})

	err := s.Start(context.Background())
	var cfgErr *domain.FlowConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "draft", cfgErr.FlowID)
	assert.Equal(t, domain.ModeIdle, s.Mode())
}

func TestStart_Idempotent(t *testing.T) {
	def := chain(start(false, ""), message("hi", "Hi", true))
	eng, clock := newEngine(t, def)
	s := newSession(t, eng, runtime.SessionOptions{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))
	clock.Flush(flushLimit)

	assert.Equal(t, []string{"Hi"}, s.Snapshot().Transcript())
}

func TestNewEngine_RejectsDuplicateIDs(t *testing.T) {
	def := chain(start(false, ""), message("m", "a", false), message("m", "b", false))
	_, err := runtime.NewEngine(def)
	var cfgErr *domain.FlowConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = runtime.NewEngine(nil)
	assert.Error(t, err)
}

func TestNewEngine_FirstEdgeWins(t *testing.T) {
	def := chain(start(false, ""), message("a", "A", false), message("b", "B", false))
	def.Edges = append([]domain.FlowEdge{{SourceNodeID: "start", TargetNodeID: "b"}}, def.Edges...)

	eng, err := runtime.NewEngine(def)
	require.NoError(t, err)
	next, ok := eng.Next("start")
	require.True(t, ok)
	assert.Equal(t, "b", next.ID)
}

func TestStart_GatingStartUsesDefaultWelcome(t *testing.T) {
	def := chain(start(true, ""), end("bye", "Bye"))
	eng, clock := newEngine(t, def)
	s := newSession(t, eng, runtime.SessionOptions{})

	require.NoError(t, s.Start(context.Background()))
	clock.Flush(flushLimit)

	assert.Equal(t, []string{runtime.DefaultWelcomeMessage}, s.Snapshot().Transcript())
	assert.True(t, s.WaitingForInteraction())
}

func TestAutoStart(t *testing.T) {
	def := chain(start(false, ""), message("hi", "Hi", true))

	t.Run("no start button starts on open", func(t *testing.T) {
		eng, clock := newEngine(t, def)
		s := newSession(t, eng, runtime.SessionOptions{AutoStart: true})
		clock.Flush(flushLimit)
		assert.Equal(t, []string{"Hi"}, s.Snapshot().Transcript())
	})

	t.Run("start button waits for click", func(t *testing.T) {
		withButton := chain(domain.NewNode("start", domain.StartData{ShowStartButton: true}), message("hi", "Hi", true))
		eng, clock := newEngine(t, withButton)
		s := newSession(t, eng, runtime.SessionOptions{AutoStart: true})
		clock.Flush(flushLimit)
		assert.Equal(t, domain.ModeIdle, s.Mode())
	})
}

func TestHooks_NodeOrder(t *testing.T) {
	def := chain(start(false, ""), message("hi", "Hi", false), end("bye", "Bye"))

	var entered, left []string
	messages := 0
	eng, clock := newEngine(t, def, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) { entered = append(entered, e.NodeID) },
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) { left = append(left, e.NodeID) },
		OnMessage:   func(_ context.Context, _ *domain.MessageEvent) { messages++ },
	}))
	s := newSession(t, eng, runtime.SessionOptions{})

	require.NoError(t, s.Start(context.Background()))
	clock.Flush(flushLimit)

	assert.Equal(t, []string{"start", "hi", "bye"}, entered)
	assert.Equal(t, []string{"start", "hi", "bye"}, left)
	assert.Equal(t, 2, messages)
}
