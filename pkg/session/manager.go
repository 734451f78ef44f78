package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/observability"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a crashed replica can hold a session lock.
const DefaultLockTTL = 30 * time.Second

// entry is one live session. last is only touched from the session's
// OnStateChange hook, which the session serializes.
type entry struct {
	id   string
	sess *flowchat.Session
	last *domain.SessionState
}

// Manager orchestrates live sessions across flows.
type Manager struct {
	loader     ports.FlowLoader
	store      ports.SnapshotStore
	locker     ports.DistributedLocker
	engineOpts []flowchat.Option
	metrics    *observability.Metrics
	logger     *slog.Logger
	lockTTL    time.Duration
	streams    *StreamManager

	mu       sync.Mutex
	engines  map[string]*flowchat.Engine
	sessions map[string]*entry

	locksMu sync.Mutex
	locks   map[string]*lockEntry

	pendingMu sync.Mutex
	pending   map[string]*domain.SessionState // nil value means delete
	wake      chan struct{}
	drainMu   sync.Mutex
}

// Option configures the Manager.
type Option func(*Manager)

// WithSnapshotStore persists session snapshots and enables restore on Get.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithLocker enables distributed locking around snapshot writes and restores.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithEngineOptions applies opts to every engine the manager builds.
func WithEngineOptions(opts ...flowchat.Option) Option {
	return func(m *Manager) {
		m.engineOpts = append(m.engineOpts, opts...)
	}
}

// WithMetrics records active sessions and snapshot failures.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager resolving flows through loader.
func NewManager(loader ports.FlowLoader, opts ...Option) *Manager {
	m := &Manager{
		loader:   loader,
		logger:   logging.NewNop(),
		lockTTL:  DefaultLockTTL,
		engines:  make(map[string]*flowchat.Engine),
		sessions: make(map[string]*entry),
		locks:    make(map[string]*lockEntry),
		pending:  make(map[string]*domain.SessionState),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.streams = NewStreamManager(m.logger)
	return m
}

// Streams returns the diff fan-out.
func (m *Manager) Streams() *StreamManager {
	return m.streams
}

// Run persists snapshots in the background and, when the loader is
// ports.Watchable, drops cached engines of changed flows. It blocks until
// ctx is done, then writes what is still pending.
func (m *Manager) Run(ctx context.Context) error {
	var changes <-chan string
	if w, ok := m.loader.(ports.Watchable); ok {
		ch, err := w.Watch(ctx)
		if err != nil {
			m.logger.Warn("flow watch unavailable", "err", err)
		} else {
			changes = ch
		}
	}

	for {
		select {
		case <-ctx.Done():
			return m.Flush(context.WithoutCancel(ctx))
		case <-m.wake:
			if err := m.Flush(ctx); err != nil {
				m.logger.Warn("snapshot flush failed", "err", err)
			}
		case flowID, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			m.Invalidate(flowID)
		}
	}
}

// Invalidate drops the cached engine of flowID. Running sessions keep the
// definition they started with.
func (m *Manager) Invalidate(flowID string) {
	m.mu.Lock()
	_, ok := m.engines[flowID]
	delete(m.engines, flowID)
	m.mu.Unlock()
	if ok {
		m.logger.Info("flow definition reloaded", "flow_id", flowID)
	}
}

// Engine returns the cached engine of flowID, loading it on first use.
func (m *Manager) Engine(ctx context.Context, flowID string) (*flowchat.Engine, error) {
	m.mu.Lock()
	eng, ok := m.engines[flowID]
	m.mu.Unlock()
	if ok {
		return eng, nil
	}

	eng, err := flowchat.Load(ctx, m.loader, flowID, m.engineOpts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.engines[flowID]; ok {
		return cached, nil
	}
	m.engines[flowID] = eng
	return eng, nil
}

// Create opens a new session on flowID.
func (m *Manager) Create(ctx context.Context, flowID string, opts flowchat.SessionOptions) (*flowchat.Session, error) {
	eng, err := m.Engine(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}

	m.mu.Lock()
	if _, exists := m.sessions[opts.SessionID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %s already exists", opts.SessionID)
	}
	e := &entry{id: opts.SessionID}
	m.sessions[e.id] = e
	m.mu.Unlock()

	opts.Hooks = domain.CombineHooks(opts.Hooks, m.hooks(e))
	sess, err := eng.Open(ctx, opts)
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, e.id)
		m.mu.Unlock()
		return nil, err
	}
	m.attach(e, sess)

	m.logger.Info("session created", "session_id", opts.SessionID, "flow_id", flowID, "preview", opts.Preview)
	return sess, nil
}

// attach publishes sess on e and records the first snapshot when no state
// change has been reported yet.
func (m *Manager) attach(e *entry, sess *flowchat.Session) {
	m.mu.Lock()
	e.sess = sess
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActiveSessions.Inc()
	}
	m.enqueue(sess.ID(), sess.Snapshot())
}

// Get returns a live session, restoring it from its snapshot when it is not
// in memory.
func (m *Manager) Get(ctx context.Context, sessionID string) (*flowchat.Session, error) {
	if sess := m.live(sessionID); sess != nil {
		return sess, nil
	}
	if m.store == nil {
		return nil, domain.ErrSessionNotFound
	}

	var sess *flowchat.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if sess = m.live(sessionID); sess != nil {
			return nil
		}
		state, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		sess, err = m.restore(ctx, state)
		return err
	})
	return sess, err
}

func (m *Manager) restore(ctx context.Context, state *domain.SessionState) (*flowchat.Session, error) {
	eng, err := m.Engine(ctx, state.FlowID)
	if err != nil {
		return nil, err
	}

	e := &entry{id: state.SessionID, last: state.Clone()}
	m.mu.Lock()
	m.sessions[e.id] = e
	m.mu.Unlock()

	sess, err := eng.Restore(ctx, state, flowchat.SessionOptions{Hooks: m.hooks(e)})
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, e.id)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to restore session %s: %w", state.SessionID, err)
	}
	m.attach(e, sess)
	m.logger.Info("session restored", "session_id", state.SessionID, "flow_id", state.FlowID, "mode", state.Mode)
	return sess, nil
}

func (m *Manager) live(sessionID string) *flowchat.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[sessionID]; ok && e.sess != nil {
		return e.sess
	}
	return nil
}

// Snapshot returns a copy of the session state, from memory or the store.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	if sess := m.live(sessionID); sess != nil {
		return sess.Snapshot(), nil
	}
	if m.store == nil {
		return nil, domain.ErrSessionNotFound
	}
	return m.store.Load(ctx, sessionID)
}

// Close disposes of a session and deletes its snapshot.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if ok && e.sess != nil {
		e.sess.Close()
		if m.metrics != nil {
			m.metrics.ActiveSessions.Dec()
		}
	} else if m.store == nil {
		return domain.ErrSessionNotFound
	}

	m.streams.CloseSession(sessionID)
	m.enqueue(sessionID, nil)
	m.logger.Info("session closed", "session_id", sessionID)
	return nil
}

// Shutdown closes every live session after persisting its last snapshot.
// Snapshots stay in the store so another process can resume them.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		all = append(all, e)
	}
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range all {
		if e.sess == nil {
			continue
		}
		e.sess.Close()
		m.streams.CloseSession(e.id)
		if m.metrics != nil {
			m.metrics.ActiveSessions.Dec()
		}
	}
	return m.Flush(ctx)
}

// List returns the ids of live sessions, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id, e := range m.sessions {
		if e.sess != nil {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Subscribe streams JSON state diffs of sessionID.
func (m *Manager) Subscribe(sessionID string) (<-chan string, func()) {
	return m.streams.Subscribe(sessionID)
}

// hooks returns the per-session hooks feeding streams and persistence.
func (m *Manager) hooks(e *entry) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, st *domain.SessionState) {
			if st.SessionID != e.id {
				m.rename(e, st.SessionID)
			}
			m.streams.BroadcastDiff(domain.Diff(e.last, st))
			e.last = st
			m.enqueue(st.SessionID, st)
		},
	}
}

// rename follows a session whose id rotated on restart.
func (m *Manager) rename(e *entry, newID string) {
	oldID := e.id
	m.mu.Lock()
	delete(m.sessions, oldID)
	e.id = newID
	m.sessions[newID] = e
	m.mu.Unlock()

	m.streams.Rename(oldID, newID)
	m.enqueue(oldID, nil)
	m.logger.Info("session id rotated", "old_session_id", oldID, "session_id", newID)
}

func (m *Manager) enqueue(sessionID string, st *domain.SessionState) {
	if m.store == nil {
		return
	}
	m.pendingMu.Lock()
	m.pending[sessionID] = st
	m.pendingMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Flush writes every pending snapshot. Only the latest state of each
// session is written.
func (m *Manager) Flush(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	m.pendingMu.Lock()
	batch := m.pending
	m.pending = make(map[string]*domain.SessionState)
	m.pendingMu.Unlock()

	var errs []error
	for id, st := range batch {
		err := m.WithLock(ctx, id, func(ctx context.Context) error {
			if st == nil {
				return m.store.Delete(ctx, id)
			}
			return m.store.Save(ctx, id, st)
		})
		if err != nil {
			if m.metrics != nil {
				m.metrics.SnapshotFailures.Inc()
			}
			m.logger.Warn("failed to persist session snapshot", "session_id", id, "err", err)
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
