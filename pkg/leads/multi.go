package leads

import (
	"context"
	"log/slog"

	"github.com/aretw0/flowchat/pkg/ports"
)

// Multi forwards every call to a primary tracker and then to secondaries.
// Only primary errors are returned; secondary failures are logged.
type Multi struct {
	primary     ports.LeadTracker
	secondaries []ports.LeadTracker
	logger      *slog.Logger
}

var _ ports.LeadTracker = (*Multi)(nil)

// NewMulti builds a fan-out tracker. A nil logger discards secondary failures.
func NewMulti(logger *slog.Logger, primary ports.LeadTracker, secondaries ...ports.LeadTracker) *Multi {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Multi{primary: primary, secondaries: secondaries, logger: logger}
}

func (m *Multi) CreateSession(ctx context.Context, s ports.LeadSession) (string, error) {
	leadID, err := m.primary.CreateSession(ctx, s)
	if err != nil {
		return "", err
	}
	for i, t := range m.secondaries {
		if _, err := t.CreateSession(ctx, s); err != nil {
			m.warn("create_session", i, s.SessionID, err)
		}
	}
	return leadID, nil
}

func (m *Multi) CaptureField(ctx context.Context, c ports.FieldCapture) error {
	if err := m.primary.CaptureField(ctx, c); err != nil {
		return err
	}
	for i, t := range m.secondaries {
		if err := t.CaptureField(ctx, c); err != nil {
			m.warn("capture_field", i, c.SessionID, err)
		}
	}
	return nil
}

func (m *Multi) CompleteSession(ctx context.Context, sessionID string) error {
	if err := m.primary.CompleteSession(ctx, sessionID); err != nil {
		return err
	}
	for i, t := range m.secondaries {
		if err := t.CompleteSession(ctx, sessionID); err != nil {
			m.warn("complete_session", i, sessionID, err)
		}
	}
	return nil
}

func (m *Multi) warn(op string, idx int, sessionID string, err error) {
	m.logger.Warn("secondary lead tracker failed", "operation", op, "tracker", idx, "session_id", sessionID, "err", err)
}
