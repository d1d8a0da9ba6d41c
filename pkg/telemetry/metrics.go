package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the pipeline updates at each
// stage boundary. All are registered against a caller-supplied Registerer
// so cmd/sentineld controls whether they land on the default registry or a
// scoped one (the latter is what the test suite uses, to avoid collisions
// between parallel test binaries).
type Metrics struct {
	AlertsReceived     *prometheus.CounterVec
	IncidentsDeduped   prometheus.Counter
	AnalysisDuration   prometheus.Histogram
	ActionsExecuted    *prometheus.CounterVec
	VerificationResult *prometheus.CounterVec
	CircuitBreakerOpen prometheus.Gauge
}

// NewMetrics constructs and registers every collector against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_alerts_received_total",
			Help: "Alerts accepted by the ingress server, by source.",
		}, []string{"source"}),
		IncidentsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_incidents_deduped_total",
			Help: "Alerts suppressed as duplicates of an already-open incident.",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_analysis_duration_seconds",
			Help:    "Wall time spent in the Analysis Engine per incident.",
			Buckets: prometheus.DefBuckets,
		}),
		ActionsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_actions_executed_total",
			Help: "Executor outcomes, by status.",
		}, []string{"status"}),
		VerificationResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_verification_result_total",
			Help: "Post-execution verification outcomes, by verb and pass/fail.",
		}, []string{"verb", "passed"}),
		CircuitBreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_circuit_breaker_open",
			Help: "1 when the executor's circuit breaker is open, else 0.",
		}),
	}

	reg.MustRegister(
		m.AlertsReceived,
		m.IncidentsDeduped,
		m.AnalysisDuration,
		m.ActionsExecuted,
		m.VerificationResult,
		m.CircuitBreakerOpen,
	)
	return m
}
