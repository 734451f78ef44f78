package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/dsl"
	"github.com/aretw0/flowchat/pkg/leads"
	"github.com/aretw0/flowchat/pkg/observability"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/aretw0/flowchat/pkg/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type brokenTracker struct{}

func (brokenTracker) CreateSession(context.Context, ports.LeadSession) (string, error) {
	return "", errors.New("crm unavailable")
}
func (brokenTracker) CaptureField(context.Context, ports.FieldCapture) error { return nil }
func (brokenTracker) CompleteSession(context.Context, string) error          { return nil }

// runSignup drives a signup flow to completion and returns the final state.
func runSignup(t *testing.T, tracker ports.LeadTracker, hooks domain.LifecycleHooks) *domain.SessionState {
	t.Helper()
	def, err := dsl.New("signup").
		Start().NoWait().
		Message("Hi").NoWait().
		Input("ask", domain.InputEmail).Label("Email?").SaveTo("email").
		End("Bye").
		Build()
	require.NoError(t, err)

	clock := scheduler.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	eng, err := flowchat.New(def,
		flowchat.WithClock(clock),
		flowchat.WithLeadTracker(tracker),
		flowchat.WithLifecycleHooks(hooks),
	)
	require.NoError(t, err)

	ctx := context.Background()
	sess, err := eng.Open(ctx, flowchat.SessionOptions{})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	require.NoError(t, sess.Start(ctx))
	clock.Flush(100)
	require.NoError(t, sess.SubmitInput(ctx, "ask", "a@b.com"))
	clock.Flush(100)

	snap := sess.Snapshot()
	require.True(t, snap.Completed())
	return snap
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	runSignup(t, leads.NewRecorder(), m.Hooks())

	for _, typ := range []string{"start", "message", "input", "end"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeVisits.WithLabelValues("signup", typ)), typ)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Messages.WithLabelValues("signup", "bot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("signup", "user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Completions.WithLabelValues("signup")))
	for _, op := range []string{"create_session", "capture_field", "complete_session"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.LeadCalls.WithLabelValues(op, "ok")), op)
	}
	assert.Equal(t, 3, testutil.CollectAndCount(m.LeadCallDuration))
}

func TestMetrics_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	_, err = observability.NewMetrics(reg)
	assert.Error(t, err)
}

func TestTracer_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := observability.NewTracer(tp)

	snap := runSignup(t, leads.NewRecorder(), tracer.Hooks())

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{
		"flowchat.node start", "flowchat.node message", "flowchat.node input", "flowchat.node end",
		"flowchat.lead create_session", "flowchat.lead capture_field", "flowchat.lead complete_session",
	}, names)
	assert.Equal(t, 0, tracer.Open())

	for _, s := range sr.Ended() {
		if s.Name() != "flowchat.node input" {
			continue
		}
		require.Len(t, s.Events(), 2, "prompt then user answer")
		for _, attr := range s.Attributes() {
			if attr.Key == "flowchat.session_id" {
				assert.Equal(t, snap.SessionID, attr.Value.AsString())
			}
		}
	}
}

func TestTracer_LeadErrorStatus(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := observability.NewTracer(tp)

	runSignup(t, brokenTracker{}, tracer.Hooks())

	var found bool
	for _, s := range sr.Ended() {
		if s.Name() == "flowchat.lead create_session" {
			found = true
			assert.Equal(t, codes.Error, s.Status().Code)
			assert.Equal(t, "crm unavailable", s.Status().Description)
		}
	}
	assert.True(t, found)
}

func TestLogExporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(observability.NewLogExporter(logger)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	runSignup(t, brokenTracker{}, observability.NewTracer(tp).Hooks())

	out := buf.String()
	assert.Contains(t, out, `msg="span flowchat.node input"`)
	assert.Contains(t, out, "flowchat.node_id=ask")
	assert.Contains(t, out, "err=")
}

func TestOTLPTracerProvider(t *testing.T) {
	tp, err := observability.NewOTLPTracerProvider(context.Background(), "http://127.0.0.1:4318", flowchat.Version)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tp.Shutdown(ctx))
}
