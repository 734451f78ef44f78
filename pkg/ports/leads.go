package ports

import (
	"context"

	"github.com/aretw0/flowchat/pkg/domain"
)

// LeadSession describes the visitor when a lead record is opened.
type LeadSession struct {
	SessionID string
	FlowID    string
	IPAddress string
	UserAgent string
}

// FieldCapture is one submitted form value.
type FieldCapture struct {
	SessionID string
	FlowID    string
	NodeID    string
	Variable  string
	InputType domain.InputType
	// DBField is the storage hint of the Input node, if any.
	DBField string
	Value   string
}

// LeadTracker is the Lead-Tracking Boundary. The engine calls it best-effort:
// errors are logged and reported to hooks, never shown to the visitor.
type LeadTracker interface {
	// CreateSession opens a lead record and returns its id.
	CreateSession(ctx context.Context, s LeadSession) (string, error)
	// CaptureField attaches a submitted value to the lead.
	CaptureField(ctx context.Context, f FieldCapture) error
	// CompleteSession marks the lead as having reached an End node.
	CompleteSession(ctx context.Context, sessionID string) error
}
