package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the session validator.
type Metrics struct {
	// Validation outcomes: cache_hit, valid, invalid, banned, scope_denied, error
	Outcome *prometheus.CounterVec

	// Full validation latency including cache and store access
	ValidateLatency prometheus.Histogram

	// Cache read failures degraded to the miss path
	CacheDegraded prometheus.Counter

	// JIT provisioning attempts
	JITProvisions prometheus.Counter
}

// New creates a Metrics instance with all validator metrics registered.
func New() *Metrics {
	return &Metrics{
		Outcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idsync_session_validate_outcomes_total",
			Help: "Total session validation outcomes",
		}, []string{"outcome"}),

		ValidateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "idsync_session_validate_duration_seconds",
			Help:    "Duration of full session validation including cache and store access",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		CacheDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idsync_session_cache_degraded_total",
			Help: "Total cache read failures degraded to the full verification path",
		}),

		JITProvisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idsync_session_jit_provisions_total",
			Help: "Total just-in-time provisioning attempts",
		}),
	}
}

// IncrementOutcome records a validation outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Outcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveValidateLatency records the duration of one validation call.
func (m *Metrics) ObserveValidateLatency(d time.Duration) {
	if m != nil {
		m.ValidateLatency.Observe(d.Seconds())
	}
}

// IncrementCacheDegraded records a cache read failure handled as a miss.
func (m *Metrics) IncrementCacheDegraded() {
	if m != nil {
		m.CacheDegraded.Inc()
	}
}

// IncrementJITProvisions records a just-in-time provisioning attempt.
func (m *Metrics) IncrementJITProvisions() {
	if m != nil {
		m.JITProvisions.Inc()
	}
}
