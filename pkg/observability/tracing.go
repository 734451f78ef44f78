package observability

import (
	"context"
	"sync"

	"github.com/aretw0/flowchat/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the spans.
const TracerName = "github.com/aretw0/flowchat"

// Tracer records one span per node visit, with message events attached,
// and one span per lead-tracking call.
type Tracer struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span // by session id
}

// NewTracer uses tp, or the global provider when tp is nil.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{
		tracer: tp.Tracer(TracerName),
		spans:  make(map[string]trace.Span),
	}
}

// Hooks returns lifecycle hooks that drive the spans.
func (t *Tracer) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter:   t.nodeEnter,
		OnNodeLeave:   t.nodeLeave,
		OnMessage:     t.message,
		OnLeadCall:    t.leadCall,
		OnStateChange: t.stateChange,
	}
}

func (t *Tracer) nodeEnter(ctx context.Context, e *domain.NodeEvent) {
	_, span := t.tracer.Start(ctx, "flowchat.node "+string(e.NodeType),
		trace.WithTimestamp(e.Timestamp),
		trace.WithAttributes(
			attribute.String("flowchat.session_id", e.SessionID),
			attribute.String("flowchat.flow_id", e.FlowID),
			attribute.String("flowchat.node_id", e.NodeID),
			attribute.String("flowchat.node_type", string(e.NodeType)),
		),
	)

	t.mu.Lock()
	prev := t.spans[e.SessionID]
	t.spans[e.SessionID] = span
	t.mu.Unlock()

	// A restore re-enters a node without a matching leave.
	if prev != nil {
		prev.End(trace.WithTimestamp(e.Timestamp))
	}
}

func (t *Tracer) nodeLeave(_ context.Context, e *domain.NodeEvent) {
	t.mu.Lock()
	span := t.spans[e.SessionID]
	delete(t.spans, e.SessionID)
	t.mu.Unlock()

	if span != nil {
		span.End(trace.WithTimestamp(e.Timestamp))
	}
}

func (t *Tracer) message(_ context.Context, e *domain.MessageEvent) {
	t.mu.Lock()
	span := t.spans[e.SessionID]
	t.mu.Unlock()
	if span == nil {
		return
	}
	span.AddEvent("message", trace.WithTimestamp(e.Timestamp), trace.WithAttributes(
		attribute.String("flowchat.origin", string(e.Message.Origin)),
		attribute.Bool("flowchat.prompt", e.Message.Prompt != nil),
		attribute.Bool("flowchat.media", e.Message.Media != nil),
	))
}

func (t *Tracer) leadCall(ctx context.Context, e *domain.LeadEvent) {
	_, span := t.tracer.Start(ctx, "flowchat.lead "+string(e.Operation),
		trace.WithTimestamp(e.Timestamp.Add(-e.Duration)),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("flowchat.session_id", e.SessionID),
			attribute.String("flowchat.flow_id", e.FlowID),
		),
	)
	if e.Err != nil {
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
	}
	span.End(trace.WithTimestamp(e.Timestamp))
}

// stateChange ends the open span once a session stops traversing.
func (t *Tracer) stateChange(_ context.Context, st *domain.SessionState) {
	switch st.Mode {
	case domain.ModeHalted, domain.ModeIdle:
	default:
		return
	}
	t.mu.Lock()
	span := t.spans[st.SessionID]
	delete(t.spans, st.SessionID)
	t.mu.Unlock()
	if span != nil {
		span.End()
	}
}

// Open reports how many node spans are still running.
func (t *Tracer) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}
