package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity reconciler.
type Metrics struct {
	// Event application outcomes by operation and result
	EventOutcome *prometheus.CounterVec

	// Reconcile latency by operation
	ApplyLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all reconciler metrics registered.
func New() *Metrics {
	return &Metrics{
		EventOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idsync_identity_event_outcomes_total",
			Help: "Total identity event outcomes by operation and result",
		}, []string{"operation", "result"}), // operation: "sync", "delete"; result: "applied", "duplicate", "missing", "error"

		ApplyLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idsync_identity_apply_duration_seconds",
			Help:    "Duration of identity event application including ledger access",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

// IncrementOutcome records an event application outcome.
func (m *Metrics) IncrementOutcome(operation, result string) {
	if m != nil {
		m.EventOutcome.WithLabelValues(operation, result).Inc()
	}
}

// ObserveApplyLatency records the duration of one event application.
func (m *Metrics) ObserveApplyLatency(operation string, d time.Duration) {
	if m != nil {
		m.ApplyLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}
