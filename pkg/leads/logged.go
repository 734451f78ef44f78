package leads

import (
	"context"
	"log/slog"

	"github.com/aretw0/flowchat/pkg/ports"
)

// Logged wraps a tracker and logs each call at debug level.
// Captured values are not logged.
type Logged struct {
	next   ports.LeadTracker
	logger *slog.Logger
}

var _ ports.LeadTracker = (*Logged)(nil)

func NewLogged(next ports.LeadTracker, logger *slog.Logger) *Logged {
	return &Logged{next: next, logger: logger}
}

func (l *Logged) CreateSession(ctx context.Context, s ports.LeadSession) (string, error) {
	id, err := l.next.CreateSession(ctx, s)
	l.logger.DebugContext(ctx, "lead session created", "session_id", s.SessionID, "flow_id", s.FlowID, "lead_id", id, "err", err)
	return id, err
}

func (l *Logged) CaptureField(ctx context.Context, c ports.FieldCapture) error {
	err := l.next.CaptureField(ctx, c)
	l.logger.DebugContext(ctx, "lead field captured", "session_id", c.SessionID, "node_id", c.NodeID, "variable", c.Variable, "err", err)
	return err
}

func (l *Logged) CompleteSession(ctx context.Context, sessionID string) error {
	err := l.next.CompleteSession(ctx, sessionID)
	l.logger.DebugContext(ctx, "lead session completed", "session_id", sessionID, "err", err)
	return err
}
