package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/flowchat/internal/runtime"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputFlow() *domain.Definition {
	return chain(
		start(false, ""),
		domain.NewNode("age", domain.InputData{Label: "How old are you?", InputType: domain.InputNumber, Required: true, Variable: "age"}),
		end("bye", "Bye"),
	)
}

func TestSubmitInput_Errors(t *testing.T) {
	eng, clock := newEngine(t, inputFlow())
	s := newSession(t, eng, runtime.SessionOptions{})
	ctx := context.Background()

	// Before the prompt is shown.
	err := s.SubmitInput(ctx, "age", "30")
	assert.ErrorIs(t, err, domain.ErrNoActivePrompt)

	require.NoError(t, s.Start(ctx))
	clock.Flush(flushLimit)
	before := s.Snapshot()

	t.Run("wrong node", func(t *testing.T) {
		assert.ErrorIs(t, s.SubmitInput(ctx, "bye", "30"), domain.ErrNoActivePrompt)
	})

	t.Run("invalid value leaves state untouched", func(t *testing.T) {
		err := s.SubmitInput(ctx, "age", "thirty")
		var verr *domain.InputValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, domain.InputNumber, verr.InputType)
		assert.Equal(t, before, s.Snapshot())
	})

	t.Run("second submission", func(t *testing.T) {
		require.NoError(t, s.SubmitInput(ctx, "age", "30"))
		assert.ErrorIs(t, s.SubmitInput(ctx, "age", "31"), domain.ErrPromptSubmitted)

		clock.Flush(flushLimit)
		assert.ErrorIs(t, s.SubmitInput(ctx, "age", "31"), domain.ErrPromptSubmitted)

		snap := s.Snapshot()
		users := 0
		for _, e := range snap.Timeline {
			if e.Origin == domain.OriginUser {
				users++
				assert.Equal(t, "30", e.Content)
			}
		}
		assert.Equal(t, 1, users)
		assert.True(t, snap.Timeline[0].Prompt.Submitted)
		assert.Equal(t, "30", snap.Variables["age"])
	})
}

func TestSubmitInput_AdvancesAfterDelay(t *testing.T) {
	eng, clock := newEngine(t, inputFlow())
	s := newSession(t, eng, runtime.SessionOptions{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	clock.Flush(flushLimit)
	require.NoError(t, s.SubmitInput(ctx, "age", "30"))

	assert.Equal(t, domain.ModeActive, s.Mode())
	assert.Equal(t, "age", s.Snapshot().CurrentNodeID)

	clock.Advance(timing.InputAdvanceDelay)
	assert.Equal(t, "bye", s.Snapshot().CurrentNodeID)
}

func TestSendFreeText_WithoutGateOnlyRecords(t *testing.T) {
	eng, clock := newEngine(t, inputFlow())
	s := newSession(t, eng, runtime.SessionOptions{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	clock.Flush(flushLimit)

	require.NoError(t, s.SendFreeText(ctx, "can I just type?"))
	require.NoError(t, s.SendFreeText(ctx, "   "))
	clock.Flush(flushLimit)

	snap := s.Snapshot()
	assert.Equal(t, domain.ModeAwaitingInput, snap.Mode)
	assert.Equal(t, []string{"can I just type?"}, snap.Transcript())
}

func TestRestart_KeepLead(t *testing.T) {
	tracker := &fakeTracker{}
	def := chain(start(false, ""), message("hi", "Hi there", false), message("more", "More text", true))
	eng, clock := newEngine(t, def, runtime.WithLeadTracker(tracker))
	s := newSession(t, eng, runtime.SessionOptions{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	clock.Advance(2 * time.Second) // "Hi there" shown, advance to "more" pending
	require.Len(t, s.Timeline(), 1)
	id := s.ID()

	require.NoError(t, s.Restart(ctx))
	snap := s.Snapshot()
	assert.Empty(t, snap.Timeline)
	assert.Empty(t, snap.CurrentNodeID)
	assert.Equal(t, domain.ModeIdle, snap.Mode)
	assert.Equal(t, id, snap.SessionID)
	assert.True(t, snap.LeadCreated)

	// Timers scheduled before the restart never fire.
	clock.Flush(flushLimit)
	assert.Empty(t, s.Timeline())

	require.NoError(t, s.Start(ctx))
	clock.Flush(flushLimit)
	assert.Equal(t, []string{"Hi there", "More text"}, s.Snapshot().Transcript())
	assert.Equal(t, 1, tracker.count(domain.LeadCreateSession), "keep_lead reuses the lead record")
}

func TestRestart_NewLead(t *testing.T) {
	tracker := &fakeTracker{}
	eng, clock := newEngine(t, inputFlow(), runtime.WithLeadTracker(tracker))
	s := newSession(t, eng, runtime.SessionOptions{Restart: runtime.NewLead, AutoStart: true})
	ctx := context.Background()

	clock.Flush(flushLimit)
	first := s.ID()

	require.NoError(t, s.Restart(ctx))
	clock.Flush(flushLimit)

	snap := s.Snapshot()
	assert.NotEqual(t, first, snap.SessionID)
	assert.True(t, snap.LeadCreated)
	assert.Equal(t, domain.ModeAwaitingInput, snap.Mode, "auto-start sessions start again after restart")
	assert.Equal(t, 2, tracker.count(domain.LeadCreateSession))
	assert.Equal(t, snap.SessionID, tracker.sessions[1].SessionID)
}

func TestParseRestartPolicy(t *testing.T) {
	p, err := runtime.ParseRestartPolicy("new_lead")
	require.NoError(t, err)
	assert.Equal(t, runtime.NewLead, p)

	p, err = runtime.ParseRestartPolicy("")
	require.NoError(t, err)
	assert.Equal(t, runtime.KeepLead, p)

	_, err = runtime.ParseRestartPolicy("sometimes")
	assert.Error(t, err)
}

func TestClose_CancelsTimers(t *testing.T) {
	def := chain(start(false, ""), message("hi", "Hi", false), end("bye", "Bye"))
	eng, clock := newEngine(t, def)
	s := newSession(t, eng, runtime.SessionOptions{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	clock.Advance(time.Second)
	s.Close()
	s.Close()

	clock.Flush(flushLimit)
	assert.Empty(t, s.Timeline())
	assert.True(t, s.Closed())

	assert.ErrorIs(t, s.Start(ctx), domain.ErrSessionClosed)
	assert.ErrorIs(t, s.SendFreeText(ctx, "hi"), domain.ErrSessionClosed)
	assert.ErrorIs(t, s.SubmitInput(ctx, "x", "y"), domain.ErrSessionClosed)
	assert.ErrorIs(t, s.Restart(ctx), domain.ErrSessionClosed)
}

func TestLeads_FailureDoesNotInterruptChat(t *testing.T) {
	tracker := &fakeTracker{createErr: errBackendDown}
	var leadErrs []error
	eng, clock := newEngine(t, inputFlow(),
		runtime.WithLeadTracker(tracker),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnLeadCall: func(_ context.Context, e *domain.LeadEvent) { leadErrs = append(leadErrs, e.Err) },
		}),
	)
	s := newSession(t, eng, runtime.SessionOptions{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	clock.Flush(flushLimit)
	require.NoError(t, s.SubmitInput(ctx, "age", "40"))
	clock.Flush(flushLimit)

	snap := s.Snapshot()
	assert.True(t, snap.Completed())
	assert.False(t, snap.LeadCreated)
	assert.Equal(t, []domain.LeadOperation{domain.LeadCreateSession}, tracker.calls, "no capture or completion without a lead")
	require.Len(t, leadErrs, 1)
	assert.ErrorIs(t, leadErrs[0], errBackendDown)
}

func TestLeads_SkippedForPreviewAndDrafts(t *testing.T) {
	t.Run("preview", func(t *testing.T) {
		tracker := &fakeTracker{}
		eng, clock := newEngine(t, inputFlow(), runtime.WithLeadTracker(tracker))
		s := newSession(t, eng, runtime.SessionOptions{Preview: true})
		require.NoError(t, s.Start(context.Background()))
		clock.Flush(flushLimit)
		assert.Empty(t, tracker.calls)
	})

	t.Run("unpublished", func(t *testing.T) {
		tracker := &fakeTracker{}
		def := inputFlow()
		def.IsPublished = false
		eng, clock := newEngine(t, def, runtime.WithLeadTracker(tracker))
		s := newSession(t, eng, runtime.SessionOptions{})
		require.NoError(t, s.Start(context.Background()))
		clock.Flush(flushLimit)
		assert.Empty(t, tracker.calls)
	})
}

func TestEnd_Redirect(t *testing.T) {
	def := chain(start(false, ""), domain.NewNode("bye", domain.EndData{ThankYouMessage: "Bye", RedirectURL: "example.com/next"}))

	t.Run("navigates after delay", func(t *testing.T) {
		nav := &fakeNavigator{}
		eng, clock := newEngine(t, def, runtime.WithNavigator(nav))
		s := newSession(t, eng, runtime.SessionOptions{})
		require.NoError(t, s.Start(context.Background()))

		clock.Advance(timing.EntryDelay + timing.MinTypingDelay)
		require.True(t, s.Snapshot().Completed())
		assert.Empty(t, nav.calls, "thank-you message stays visible first")

		clock.Advance(timing.RedirectDelay)
		require.Len(t, nav.calls, 1)
		assert.Equal(t, "https://example.com/next", nav.calls[0].url)
		assert.Equal(t, "https://example.com/next", s.Snapshot().RedirectURL)
	})

	t.Run("preview never navigates", func(t *testing.T) {
		nav := &fakeNavigator{}
		eng, clock := newEngine(t, def, runtime.WithNavigator(nav))
		s := newSession(t, eng, runtime.SessionOptions{Preview: true})
		require.NoError(t, s.Start(context.Background()))
		clock.Flush(flushLimit)
		assert.Empty(t, nav.calls)
		assert.Empty(t, s.Snapshot().RedirectURL)
	})
}

func TestNormalizeURL(t *testing.T) {
	tests := map[string]string{
		"example.com":          "https://example.com",
		"  example.com/a?b=1 ": "https://example.com/a?b=1",
		"http://example.com":   "http://example.com",
		"HTTPS://example.com":  "HTTPS://example.com",
		"//cdn.example.com":    "https://cdn.example.com",
		"mailto://someone":     "mailto://someone",
		"":                     "",
	}
	for in, want := range tests {
		assert.Equal(t, want, runtime.NormalizeURL(in), in)
	}
}

func TestMedia_ResolverAndFallback(t *testing.T) {
	def := chain(start(false, ""), domain.NewNode("pic", domain.MediaData{
		MediaType: domain.MediaImage, MediaURL: "media/cat.png", Caption: "A cat", Controls: true,
	}))

	t.Run("resolved", func(t *testing.T) {
		eng, clock := newEngine(t, def, runtime.WithMediaResolver(fakeResolver{}))
		s := newSession(t, eng, runtime.SessionOptions{})
		require.NoError(t, s.Start(context.Background()))
		clock.Flush(flushLimit)

		tl := s.Timeline()
		require.Len(t, tl, 1)
		require.NotNil(t, tl[0].Media)
		assert.Equal(t, "media/cat.png?signed=1", tl[0].Media.URL)
		assert.Equal(t, "A cat", tl[0].Content)
		assert.Equal(t, domain.ModeHalted, s.Mode())
	})

	t.Run("resolver failure keeps raw url", func(t *testing.T) {
		eng, clock := newEngine(t, def, runtime.WithMediaResolver(fakeResolver{err: errBackendDown}))
		s := newSession(t, eng, runtime.SessionOptions{})
		require.NoError(t, s.Start(context.Background()))
		clock.Flush(flushLimit)

		tl := s.Timeline()
		require.Len(t, tl, 1)
		assert.Equal(t, "media/cat.png", tl[0].Media.URL)
	})

	t.Run("reveal and advance timing", func(t *testing.T) {
		eng, clock := newEngine(t, def)
		s := newSession(t, eng, runtime.SessionOptions{})
		require.NoError(t, s.Start(context.Background()))
		assert.True(t, s.Typing())

		clock.Advance(timing.MediaRevealDelay)
		assert.Len(t, s.Timeline(), 1)
		assert.Equal(t, domain.ModeActive, s.Mode())

		clock.Advance(timing.MediaAdvanceDelay)
		assert.Equal(t, domain.ModeHalted, s.Mode())
	})
}

func TestDelay_TypingIndicator(t *testing.T) {
	def := chain(start(false, ""), domain.NewNode("pause", domain.DelayData{DurationMs: 3000, ShowTyping: true}), message("after", "Done", true))
	eng, clock := newEngine(t, def)
	s := newSession(t, eng, runtime.SessionOptions{})
	require.NoError(t, s.Start(context.Background()))

	assert.True(t, s.Typing())
	clock.Advance(2999 * time.Millisecond)
	assert.True(t, s.Typing())
	clock.Advance(time.Millisecond)
	assert.False(t, s.Typing())
	assert.Equal(t, "after", s.Snapshot().CurrentNodeID)
}

func TestRestore_ResumesActiveNode(t *testing.T) {
	def := chain(start(false, ""), message("hi", "Hi", false), end("bye", "Bye"))
	eng, clock := newEngine(t, def)

	var saved *domain.SessionState
	s := newSession(t, eng, runtime.SessionOptions{Hooks: domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, st *domain.SessionState) { saved = st },
	}})
	require.NoError(t, s.Start(context.Background()))
	clock.Advance(1500 * time.Millisecond) // "Hi" revealed, advance pending
	s.Close()

	require.NotNil(t, saved)
	require.Equal(t, domain.ModeActive, saved.Mode)
	require.Equal(t, []string{"Hi"}, saved.Transcript())

	restored, err := eng.Restore(context.Background(), saved, runtime.SessionOptions{})
	require.NoError(t, err)
	t.Cleanup(restored.Close)
	clock.Flush(flushLimit)

	snap := restored.Snapshot()
	assert.Equal(t, saved.SessionID, snap.SessionID)
	assert.Equal(t, []string{"Hi", "Bye"}, snap.Transcript(), "revealed bubbles are not shown twice")
	assert.True(t, snap.Completed())
}

func TestRestore_RejectsForeignFlow(t *testing.T) {
	eng, _ := newEngine(t, inputFlow())
	_, err := eng.Restore(context.Background(), domain.NewSessionState("s1", "other-flow"), runtime.SessionOptions{})
	assert.Error(t, err)
}

func TestRestore_InheritsSessionSettings(t *testing.T) {
	tracker := &fakeTracker{}
	eng, clock := newEngine(t, inputFlow(), runtime.WithLeadTracker(tracker))
	s := newSession(t, eng, runtime.SessionOptions{
		Restart:   runtime.NewLead,
		AutoStart: true,
		IPAddress: "10.0.0.1",
		UserAgent: "test",
	})
	clock.Flush(flushLimit)
	saved := s.Snapshot()
	s.Close()

	restored, err := eng.Restore(context.Background(), saved, runtime.SessionOptions{})
	require.NoError(t, err)
	t.Cleanup(restored.Close)

	require.NoError(t, restored.Restart(context.Background()))
	clock.Flush(flushLimit)

	snap := restored.Snapshot()
	assert.NotEqual(t, saved.SessionID, snap.SessionID)
	assert.Equal(t, domain.ModeAwaitingInput, snap.Mode)
	require.Equal(t, 2, tracker.count(domain.LeadCreateSession))
	assert.Equal(t, "10.0.0.1", tracker.sessions[1].IPAddress)
	assert.Equal(t, "test", tracker.sessions[1].UserAgent)

	t.Run("caller options win", func(t *testing.T) {
		again, err := eng.Restore(context.Background(), saved, runtime.SessionOptions{UserAgent: "other"})
		require.NoError(t, err)
		t.Cleanup(again.Close)
		settings := again.Snapshot().Settings
		assert.Equal(t, "other", settings.UserAgent)
		assert.Equal(t, "10.0.0.1", settings.IPAddress)
		assert.Equal(t, "new_lead", settings.RestartPolicy)
	})
}
