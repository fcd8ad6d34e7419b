package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the broker's Prometheus surface, generalizing the teacher's
// engine.Metrics (same shape: latency histogram, traffic counter, error
// counter by type, circuit breaker gauge, buffer fill gauge) from the
// UAG's per-agent/per-capability labels to the broker's own dimensions.
type Metrics struct {
	RequestDuration     *prometheus.HistogramVec
	RequestsTotal       *prometheus.CounterVec
	DecisionsTotal      *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
	RateLimitFallback   prometheus.Gauge
	ForwarderBufferFill prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "broker_request_duration_seconds",
			Help:    "Histogram of RequestAccess latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"tool_id", "outcome"}),

		RequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "broker_requests_total",
			Help: "Total number of processed access requests.",
		}, []string{"tool_id"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "broker_decisions_total",
			Help: "Total number of PolicyEngine decisions by outcome.",
		}, []string{"outcome"}),

		ErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "broker_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "broker_circuit_breaker_state",
			Help: "Current state of each dependency's circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"dependency"}),

		RateLimitFallback: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "broker_rate_limit_fallback_active",
			Help: "1 when the RateLimiter is currently degraded to its in-memory fallback.",
		}),

		ForwarderBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "broker_audit_forwarder_buffer_utilization",
			Help: "Current number of entries queued in the audit observability forwarder.",
		}),
	}
}
