package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter EventType = "node_enter"
	EventNodeLeave EventType = "node_leave"
	EventMessage   EventType = "message"
	EventLeadCall  EventType = "lead_call"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	FlowID    string    `json:"flow_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string   `json:"node_id"`
	NodeType NodeType `json:"node_type"`
}

// MessageEvent is emitted for every timeline append.
type MessageEvent struct {
	EventBase
	Message TimelineEvent `json:"message"`
}

// LeadOperation names a Lead-Tracking Boundary call.
type LeadOperation string

const (
	LeadCreateSession   LeadOperation = "create_session"
	LeadCaptureField    LeadOperation = "capture_field"
	LeadCompleteSession LeadOperation = "complete_session"
)

// LeadEvent reports the outcome of a lead-tracking call. Err is nil on success.
type LeadEvent struct {
	EventBase
	Operation LeadOperation `json:"operation"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously while the session is locked; they must not call back
// into the session that emitted them.
type LifecycleHooks struct {
	OnNodeEnter func(context.Context, *NodeEvent)
	OnNodeLeave func(context.Context, *NodeEvent)
	OnMessage   func(context.Context, *MessageEvent)
	OnLeadCall  func(context.Context, *LeadEvent)
	// OnStateChange receives a deep copy of the state after every batch of mutations.
	OnStateChange func(context.Context, *SessionState)
}

// CombineHooks chains hook sets; callbacks run in argument order.
func CombineHooks(hooks ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range hooks {
		out.OnNodeEnter = chainHook(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chainHook(out.OnNodeLeave, h.OnNodeLeave)
		out.OnMessage = chainHook(out.OnMessage, h.OnMessage)
		out.OnLeadCall = chainHook(out.OnLeadCall, h.OnLeadCall)
		out.OnStateChange = chainHook(out.OnStateChange, h.OnStateChange)
	}
	return out
}

func chainHook[T any](a, b func(context.Context, T)) func(context.Context, T) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, v T) {
		a(ctx, v)
		b(ctx, v)
	}
}
