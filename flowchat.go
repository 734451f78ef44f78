package flowchat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/flowchat/internal/runtime"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/aretw0/flowchat/pkg/scheduler"
	"github.com/aretw0/flowchat/pkg/validator"
)

// Session is one visitor's live run of a flow.
type Session = runtime.Session

// SessionOptions configures a single visitor session.
type SessionOptions = runtime.SessionOptions

// RestartPolicy decides what happens to the lead record on restart.
type RestartPolicy = runtime.RestartPolicy

const (
	KeepLead = runtime.KeepLead
	NewLead  = runtime.NewLead
)

// ParseRestartPolicy accepts "keep_lead" and "new_lead".
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	return runtime.ParseRestartPolicy(s)
}

// Engine is the high-level entry point for the flowchat library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime     *runtime.Engine
	runtimeOpts []runtime.EngineOption
	strict      bool
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLifecycleHooks(hooks))
	}
}

// WithLeadTracker enables lead tracking for published flows.
func WithLeadTracker(t ports.LeadTracker) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLeadTracker(t))
	}
}

// WithNavigator sets the hook End nodes use to redirect the visitor.
func WithNavigator(n ports.Navigator) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithNavigator(n))
	}
}

// WithMediaResolver sets the resolver applied to media URLs.
func WithMediaResolver(r ports.MediaResolver) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMediaResolver(r))
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLogger(logger))
	}
}

// WithClock replaces wall time, e.g. with scheduler.NewFakeClock in tests.
func WithClock(c scheduler.Clock) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithClock(c))
	}
}

// WithLeadTimeout bounds each lead-tracking call.
func WithLeadTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLeadTimeout(d))
	}
}

// WithMaxInputSize caps visitor messages and answers, in bytes.
func WithMaxInputSize(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxInputSize(n))
	}
}

// WithStrictValidation rejects definitions for which the validator reports errors.
func WithStrictValidation() Option {
	return func(e *Engine) {
		e.strict = true
	}
}

// New initializes an engine for def.
func New(def *domain.Definition, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.strict {
		report := validator.Validate(def)
		if err := report.Err(); err != nil {
			return nil, err
		}
		if eng.logger != nil {
			for _, issue := range report.Issues {
				eng.logger.Warn("flow validation", "flow_id", report.FlowID, "issue", issue.String())
			}
		}
	}

	rt, err := runtime.NewEngine(def, eng.runtimeOpts...)
	if err != nil {
		return nil, err
	}
	eng.runtime = rt
	return eng, nil
}

// Load resolves flowID through loader and initializes an engine for it.
func Load(ctx context.Context, loader ports.FlowLoader, flowID string, opts ...Option) (*Engine, error) {
	def, err := loader.Load(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow %s: %w", flowID, err)
	}
	return New(def, opts...)
}

// Definition returns the flow the engine runs.
func (e *Engine) Definition() *domain.Definition {
	return e.runtime.Definition()
}

// Open creates a session for one visitor.
func (e *Engine) Open(ctx context.Context, opts SessionOptions) (*Session, error) {
	return e.runtime.NewSession(ctx, opts)
}

// Restore rebuilds a session from a persisted snapshot.
func (e *Engine) Restore(ctx context.Context, state *domain.SessionState, opts SessionOptions) (*Session, error) {
	return e.runtime.Restore(ctx, state, opts)
}
