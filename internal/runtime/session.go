package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/scheduler"
	"github.com/aretw0/flowchat/pkg/timing"
)

// RestartPolicy decides what happens to the lead record when a visitor restarts.
type RestartPolicy int

const (
	// KeepLead keeps the session id and the lead record: one lead per page visit.
	KeepLead RestartPolicy = iota
	// NewLead rotates the session id so the next Start opens a new lead record.
	NewLead
)

func (p RestartPolicy) String() string {
	if p == NewLead {
		return "new_lead"
	}
	return "keep_lead"
}

// ParseRestartPolicy accepts "keep_lead" and "new_lead".
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep_lead", "keep":
		return KeepLead, nil
	case "new_lead", "new":
		return NewLead, nil
	}
	return KeepLead, fmt.Errorf("unknown restart policy %q", s)
}

// SessionOptions configures a single visitor session.
type SessionOptions struct {
	// SessionID defaults to a new UUID.
	SessionID string
	// Preview marks an author test run: no lead record, no redirect.
	Preview   bool
	IPAddress string
	UserAgent string
	// AutoStart begins the conversation on open (and after a restart) when the
	// Start node shows no start button.
	AutoStart bool
	Restart   RestartPolicy
	// Hooks run after the engine-wide hooks, for this session only.
	Hooks domain.LifecycleHooks
}

func (o SessionOptions) settings() domain.SessionSettings {
	return domain.SessionSettings{
		AutoStart:     o.AutoStart,
		RestartPolicy: o.Restart.String(),
		IPAddress:     o.IPAddress,
		UserAgent:     o.UserAgent,
	}
}

// inherit fills the options the caller left unset from persisted settings.
func (o *SessionOptions) inherit(st domain.SessionSettings) {
	o.AutoStart = o.AutoStart || st.AutoStart
	if o.Restart == KeepLead {
		// Unknown values fall back to KeepLead, the zero policy.
		o.Restart, _ = ParseRestartPolicy(st.RestartPolicy)
	}
	if o.IPAddress == "" {
		o.IPAddress = st.IPAddress
	}
	if o.UserAgent == "" {
		o.UserAgent = st.UserAgent
	}
}

// Session is one visitor's live run of a flow.
//
// Every mutation, whether from a public method or a fired timer, runs under mu,
// so the interpreter never runs two nodes at once for the same session.
// Sessions share nothing mutable with each other.
type Session struct {
	engine *Engine
	opts   SessionOptions
	hooks  domain.LifecycleHooks
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  *scheduler.Group

	mu     sync.Mutex
	state  *domain.SessionState
	dirty  bool
	closed bool
}

func newSession(ctx context.Context, e *Engine, opts SessionOptions, state *domain.SessionState) *Session {
	// Timers outlive the request that opened the session; keep its values only.
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		engine: e,
		opts:   opts,
		hooks:  domain.CombineHooks(e.hooks, opts.Hooks),
		ctx:    sctx,
		cancel: cancel,
		state:  state,
	}
	s.logger = e.logger.With("flow_id", e.def.ID)
	s.group = scheduler.NewGroup(e.clock, s.run)
	return s
}

// run is the scheduler executor: timer callbacks take the session lock and
// publish the resulting state like any public operation.
func (s *Session) run(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn()
	s.flush()
}

// after schedules fn on the session's timer group.
func (s *Session) after(d time.Duration, fn func()) {
	s.group.After(d, fn)
}

func (s *Session) markDirty() {
	s.dirty = true
}

// flush reports accumulated mutations to OnStateChange. Callers hold mu.
func (s *Session) flush() {
	if !s.dirty {
		return
	}
	s.dirty = false
	if s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange(s.ctx, s.state.Clone())
	}
}

// Start enters the Start node. Calling it on a started session is a no-op.
// It returns *domain.FlowConfigurationError when the flow has no Start node.
func (s *Session) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	defer s.flush()
	return s.start()
}

func (s *Session) start() error {
	if s.state.Started() {
		return nil
	}
	start, err := s.engine.StartNode()
	if err != nil {
		return err
	}

	s.createLead()
	s.enter(start)
	return nil
}

// SendFreeText records a visitor message. When an interaction gate is open it
// also resumes traversal after the gated node. Blank text is ignored.
func (s *Session) SendFreeText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	defer s.flush()

	text, err := sanitizeInput(text, s.engine.maxInput)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	gated := s.state.Mode == domain.ModeGated
	s.appendUser(s.state.CurrentNodeID, text)
	if !gated {
		return nil
	}

	node, ok := s.engine.Node(s.state.CurrentNodeID)
	if !ok {
		s.halt()
		return nil
	}
	s.state.Mode = domain.ModeActive
	s.advance(node)
	return nil
}

// SubmitInput answers the form shown by the Input node nodeID.
// It returns domain.ErrNoActivePrompt when nodeID is not showing a form,
// domain.ErrPromptSubmitted on a second submission, and
// *domain.InputValidationError when value does not fit the input type.
// Oversized or non UTF-8 values fail like free text does.
// Nothing is mutated on error.
func (s *Session) SubmitInput(ctx context.Context, nodeID, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	defer s.flush()

	value, err := sanitizeInput(value, s.engine.maxInput)
	if err != nil {
		return err
	}

	prompt, ok := s.state.ActivePrompt()
	if !ok || prompt.NodeID != nodeID {
		if s.submitted(nodeID) {
			return fmt.Errorf("%w: %s", domain.ErrPromptSubmitted, nodeID)
		}
		return fmt.Errorf("%w: %s", domain.ErrNoActivePrompt, nodeID)
	}

	node, ok := s.engine.Node(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNoActivePrompt, nodeID)
	}
	data, _ := node.Data.(domain.InputData)
	if err := data.Validate(nodeID, value); err != nil {
		return err
	}

	s.appendUser(nodeID, value)
	prompt.Submitted = true
	if data.Variable != "" {
		s.state.Variables[data.Variable] = value
		if s.state.LeadCreated {
			s.captureField(nodeID, data, value)
		}
	}
	s.state.Mode = domain.ModeActive
	s.markDirty()

	s.after(timing.InputAdvanceDelay, func() {
		s.advance(node)
	})
	return nil
}

func (s *Session) submitted(nodeID string) bool {
	for _, e := range s.state.Timeline {
		if e.Prompt != nil && e.Prompt.NodeID == nodeID && e.Prompt.Submitted {
			return true
		}
	}
	return false
}

// Restart cancels every pending transition and resets the conversation.
// The restart policy decides whether the session id and lead survive.
func (s *Session) Restart(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	defer s.flush()

	cancelled := s.group.Cancel()
	old := s.state

	var next *domain.SessionState
	switch s.opts.Restart {
	case NewLead:
		next = domain.NewSessionState(s.engine.newID(), old.FlowID)
	default:
		next = domain.NewSessionState(old.SessionID, old.FlowID)
		next.LeadCreated = old.LeadCreated
		next.LeadID = old.LeadID
	}
	next.Preview = old.Preview
	next.Settings = old.Settings
	s.state = next
	s.markDirty()

	s.logger.Debug("session restarted", "session_id", next.SessionID, "policy", s.opts.Restart.String(), "cancelled", cancelled)

	if s.opts.AutoStart && s.autoStarts() {
		return s.start()
	}
	return nil
}

// Close cancels all outstanding timers. Later operations return
// domain.ErrSessionClosed. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.group.Close()
	s.cancel()
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) autoStarts() bool {
	start, ok := s.engine.def.StartNode()
	if !ok {
		return false
	}
	data, _ := start.Data.(domain.StartData)
	return !data.ShowStartButton
}

// ID returns the current session id. It changes on Restart under NewLead.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionID
}

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() *domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Timeline returns a copy of the events shown so far, in display order.
func (s *Session) Timeline() []domain.TimelineEvent {
	return s.Snapshot().Timeline
}

// Typing reports whether the typing indicator is up.
func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Typing
}

// WaitingForInteraction reports whether an interaction gate is open.
func (s *Session) WaitingForInteraction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.WaitingForInteraction()
}

// Mode returns the engine mode.
func (s *Session) Mode() domain.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Mode
}

// Flow returns the flow metadata of the session.
func (s *Session) Flow() domain.Flow {
	return s.engine.def.Flow
}
