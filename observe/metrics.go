package observe

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsObserver exports call and attempt counters and call latency.
type MetricsObserver struct {
	BaseObserver

	calls    *prometheus.CounterVec
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetricsObserver registers its collectors with reg. A nil reg uses the
// default registerer.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &MetricsObserver{
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodecall",
				Subsystem: "client",
				Name:      "calls_total",
				Help:      "Completed remote calls by identity and outcome.",
			},
			[]string{"rpc", "outcome"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodecall",
				Subsystem: "client",
				Name:      "attempts_total",
				Help:      "Remote call attempts by identity and outcome.",
			},
			[]string{"rpc", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nodecall",
				Subsystem: "client",
				Name:      "call_duration_seconds",
				Help:      "Remote call latency including retries.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"rpc"},
		),
	}
}

func (m *MetricsObserver) OnAttempt(_ context.Context, id string, rec AttemptRecord) {
	outcome := "success"
	if rec.Err != nil {
		outcome = rec.Err.Kind.String()
	}
	m.attempts.WithLabelValues(id, outcome).Inc()
}

func (m *MetricsObserver) OnSuccess(_ context.Context, id string, tl Timeline) {
	m.calls.WithLabelValues(id, "success").Inc()
	m.duration.WithLabelValues(id).Observe(tl.Duration().Seconds())
}

func (m *MetricsObserver) OnFailure(_ context.Context, id string, tl Timeline) {
	outcome := "failure"
	if tl.FinalErr != nil {
		outcome = tl.FinalErr.Kind.String()
	}
	m.calls.WithLabelValues(id, outcome).Inc()
	m.duration.WithLabelValues(id).Observe(tl.Duration().Seconds())
}

func (m *MetricsObserver) Calls() *prometheus.CounterVec       { return m.calls }
func (m *MetricsObserver) Attempts() *prometheus.CounterVec    { return m.attempts }
func (m *MetricsObserver) Duration() *prometheus.HistogramVec { return m.duration }
