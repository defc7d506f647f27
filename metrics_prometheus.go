package resilience

import "github.com/prometheus/client_golang/prometheus"

// PrometheusCollector exposes the process-wide metrics registry as a
// prometheus.Collector, independent of the directly-resettable in-process
// Metrics snapshot GetMetrics returns. It is read-only: scraping it never
// mutates the registry ResetMetrics operates on.
type PrometheusCollector struct {
	errorsByCategory    *prometheus.Desc
	errorsBySeverity    *prometheus.Desc
	retryAttemptsTotal  *prometheus.Desc
	breakerTripsTotal   *prometheus.Desc
	fallbackActiveTotal *prometheus.Desc
	recoveryExecTotal   *prometheus.Desc
	recoveryDurationAvg *prometheus.Desc
}

// NewPrometheusCollector builds a collector bound to the package's
// singleton metrics registry.
func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		errorsByCategory: prometheus.NewDesc(
			"resilience_errors_by_category_total", "Total classified errors observed, by category.",
			[]string{"category"}, nil),
		errorsBySeverity: prometheus.NewDesc(
			"resilience_errors_by_severity_total", "Total classified errors observed, by severity.",
			[]string{"severity"}, nil),
		retryAttemptsTotal: prometheus.NewDesc(
			"resilience_retry_attempts_total", "Total retry attempts made.", nil, nil),
		breakerTripsTotal: prometheus.NewDesc(
			"resilience_circuit_breaker_trips_total", "Total CLOSED to OPEN transitions.", nil, nil),
		fallbackActiveTotal: prometheus.NewDesc(
			"resilience_fallback_activations_total", "Total fallback candidates invoked.", nil, nil),
		recoveryExecTotal: prometheus.NewDesc(
			"resilience_recovery_executions_total", "Total recovery workflow executions.",
			[]string{"status"}, nil),
		recoveryDurationAvg: prometheus.NewDesc(
			"resilience_recovery_duration_avg_ms", "Mean duration of successful recovery executions, in ms.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.errorsByCategory
	ch <- c.errorsBySeverity
	ch <- c.retryAttemptsTotal
	ch <- c.breakerTripsTotal
	ch <- c.fallbackActiveTotal
	ch <- c.recoveryExecTotal
	ch <- c.recoveryDurationAvg
}

// Collect implements prometheus.Collector.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := GetMetrics()

	for category, count := range snap.ErrorsByCategory {
		ch <- prometheus.MustNewConstMetric(c.errorsByCategory, prometheus.CounterValue,
			float64(count), string(category))
	}
	for severity, count := range snap.ErrorsBySeverity {
		ch <- prometheus.MustNewConstMetric(c.errorsBySeverity, prometheus.CounterValue,
			float64(count), string(severity))
	}

	ch <- prometheus.MustNewConstMetric(c.retryAttemptsTotal, prometheus.CounterValue, float64(snap.RetryAttempts))
	ch <- prometheus.MustNewConstMetric(c.breakerTripsTotal, prometheus.CounterValue, float64(snap.CircuitBreakerTrips))
	ch <- prometheus.MustNewConstMetric(c.fallbackActiveTotal, prometheus.CounterValue, float64(snap.FallbackActivations))

	ch <- prometheus.MustNewConstMetric(c.recoveryExecTotal, prometheus.CounterValue, float64(snap.SuccessfulRecoveries), "success")
	ch <- prometheus.MustNewConstMetric(c.recoveryExecTotal, prometheus.CounterValue, float64(snap.PartialRecoveries), "partial")
	ch <- prometheus.MustNewConstMetric(c.recoveryExecTotal, prometheus.CounterValue, float64(snap.FailedRecoveries), "failed")

	ch <- prometheus.MustNewConstMetric(c.recoveryDurationAvg, prometheus.GaugeValue, snap.AverageRecoveryTime)
}
