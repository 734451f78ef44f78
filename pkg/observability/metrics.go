package observability

import (
	"context"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flowchat"

// Metrics holds the engine collectors.
type Metrics struct {
	NodeVisits       *prometheus.CounterVec
	Messages         *prometheus.CounterVec
	Completions      *prometheus.CounterVec
	LeadCalls        *prometheus.CounterVec
	LeadCallDuration *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
	SnapshotFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node visits.",
		}, []string{"flow_id", "node_type"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Timeline events appended, by origin.",
		}, []string{"flow_id", "origin"}),
		Completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Sessions that reached an End node.",
		}, []string{"flow_id"}),
		LeadCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_calls_total",
			Help:      "Lead-tracking calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		LeadCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lead_call_duration_seconds",
			Help:      "Duration of lead-tracking calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}),
		SnapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "Failed attempts to persist a session snapshot.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.NodeVisits, m.Messages, m.Completions, m.LeadCalls, m.LeadCallDuration, m.ActiveSessions, m.SnapshotFailures,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.FlowID, string(e.NodeType)).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			if e.NodeType == domain.NodeTypeEnd {
				m.Completions.WithLabelValues(e.FlowID).Inc()
			}
		},
		OnMessage: func(_ context.Context, e *domain.MessageEvent) {
			m.Messages.WithLabelValues(e.FlowID, string(e.Message.Origin)).Inc()
		},
		OnLeadCall: func(_ context.Context, e *domain.LeadEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.LeadCalls.WithLabelValues(string(e.Operation), outcome).Inc()
			m.LeadCallDuration.WithLabelValues(string(e.Operation)).Observe(e.Duration.Seconds())
		},
	}
}
