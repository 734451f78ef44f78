package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/aretw0/flowchat/pkg/scheduler"
	"github.com/google/uuid"
)

// DefaultLeadTimeout bounds every Lead-Tracking Boundary call.
const DefaultLeadTimeout = 5 * time.Second

// Engine interprets one flow Definition. It is immutable after construction and
// safe to share across any number of concurrent sessions.
type Engine struct {
	def   *domain.Definition
	nodes map[string]domain.FlowNode
	next  map[string]string

	clock       scheduler.Clock
	tracker     ports.LeadTracker
	navigator   ports.Navigator
	resolver    ports.MediaResolver
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	leadTimeout time.Duration
	maxInput    int
	newID       func() string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock replaces wall time, typically with scheduler.FakeClock in tests.
func WithClock(c scheduler.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLeadTracker enables lead tracking for published flows.
func WithLeadTracker(t ports.LeadTracker) EngineOption {
	return func(e *Engine) {
		e.tracker = t
	}
}

// WithNavigator sets the host hook used by End nodes with a redirect URL.
func WithNavigator(n ports.Navigator) EngineOption {
	return func(e *Engine) {
		e.navigator = n
	}
}

// WithMediaResolver sets the resolver applied to media URLs before they are shown.
func WithMediaResolver(r ports.MediaResolver) EngineOption {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithLifecycleHooks registers observability hooks for every session of the engine.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLeadTimeout overrides DefaultLeadTimeout.
func WithLeadTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.leadTimeout = d
	}
}

// WithMaxInputSize overrides DefaultMaxInputSize, in bytes.
func WithMaxInputSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxInput = n
		}
	}
}

// WithIDGenerator replaces the UUID generator used for session and event ids.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		e.newID = fn
	}
}

// NewEngine indexes def and returns an engine for it.
// A missing Start node is reported by Session.Start, not here, so that a
// draft flow can still be inspected.
func NewEngine(def *domain.Definition, opts ...EngineOption) (*Engine, error) {
	if def == nil {
		return nil, errors.New("flow definition is required")
	}

	e := &Engine{
		def:         def,
		nodes:       make(map[string]domain.FlowNode, len(def.Nodes)),
		next:        make(map[string]string, len(def.Edges)),
		clock:       scheduler.RealClock{},
		leadTimeout: DefaultLeadTimeout,
		maxInput:    DefaultMaxInputSize,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}

	for _, n := range def.Nodes {
		if _, dup := e.nodes[n.ID]; dup {
			return nil, &domain.FlowConfigurationError{FlowID: def.ID, Reason: fmt.Sprintf("duplicate node id '%s'", n.ID)}
		}
		if n.Data == nil {
			return nil, &domain.FlowConfigurationError{FlowID: def.ID, Reason: fmt.Sprintf("node '%s' has no data", n.ID)}
		}
		e.nodes[n.ID] = n
	}

	// The graph is a chain: the first edge of a source wins.
	for _, edge := range def.Edges {
		if _, seen := e.next[edge.SourceNodeID]; seen {
			e.logger.Warn("ignoring extra outgoing edge", "flow_id", def.ID, "source", edge.SourceNodeID, "target", edge.TargetNodeID)
			continue
		}
		e.next[edge.SourceNodeID] = edge.TargetNodeID
	}

	return e, nil
}

// Definition returns the flow the engine runs.
func (e *Engine) Definition() *domain.Definition {
	return e.def
}

// Node returns the node with the given id.
func (e *Engine) Node(id string) (domain.FlowNode, bool) {
	n, ok := e.nodes[id]
	return n, ok
}

// Next resolves the node following from. It reports false when there is no
// outgoing edge or the edge target does not exist; both end traversal.
func (e *Engine) Next(from string) (domain.FlowNode, bool) {
	target, ok := e.next[from]
	if !ok {
		return domain.FlowNode{}, false
	}
	n, ok := e.nodes[target]
	return n, ok
}

// StartNode returns the entry node of the flow.
func (e *Engine) StartNode() (domain.FlowNode, error) {
	start, ok := e.def.StartNode()
	if !ok {
		return domain.FlowNode{}, &domain.FlowConfigurationError{FlowID: e.def.ID, Reason: "no start node"}
	}
	return start, nil
}

// NewSession creates a session for one visitor. With opts.AutoStart set and a
// Start node that shows no start button, the conversation begins immediately.
func (e *Engine) NewSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	if opts.SessionID == "" {
		opts.SessionID = e.newID()
	}
	state := domain.NewSessionState(opts.SessionID, e.def.ID)
	state.Preview = opts.Preview
	state.Settings = opts.settings()

	s := newSession(ctx, e, opts, state)
	if opts.AutoStart && s.autoStarts() {
		if err := s.Start(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Restore rebuilds a session from a persisted snapshot. Pending timers are not
// part of a snapshot; an active session resumes from its current node.
// Options left unset in opts are taken from the snapshot settings.
func (e *Engine) Restore(ctx context.Context, state *domain.SessionState, opts SessionOptions) (*Session, error) {
	if state == nil {
		return nil, errors.New("state is required")
	}
	if state.FlowID != e.def.ID {
		return nil, fmt.Errorf("snapshot belongs to flow '%s', engine runs '%s'", state.FlowID, e.def.ID)
	}
	state = state.Clone()
	opts.SessionID = state.SessionID
	opts.Preview = state.Preview
	opts.inherit(state.Settings)
	state.Settings = opts.settings()

	s := newSession(ctx, e, opts, state)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resume()
	s.flush()
	return s, nil
}
