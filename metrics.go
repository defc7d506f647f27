package resilience

import "sync"

// Metrics is a snapshot of the counters the resilience components keep.
// It is a value type so callers can hold onto it without aliasing the
// live registry.
type Metrics struct {
	TotalErrors         int64
	ErrorsByCategory    map[Category]int64
	ErrorsBySeverity    map[Severity]int64
	RetryAttempts       int64
	SuccessfulRetries   int64
	FallbackActivations int64
	CircuitBreakerTrips int64

	RecoveryExecutions   int64
	SuccessfulRecoveries int64
	PartialRecoveries    int64
	FailedRecoveries     int64
	AverageRecoveryTime  float64 // milliseconds, mean over successful executions
}

// metricsRegistry is the process-wide counter store every component
// reports into. A single instance (defaultMetrics) is shared, matching
// the "global singleton, explicit ownership by a top-level container"
// design the components are built around.
type metricsRegistry struct {
	mu sync.Mutex

	totalErrors      int64
	errorsByCategory map[Category]int64
	errorsBySeverity map[Severity]int64

	retryAttempts       int64
	successfulRetries   int64
	fallbackActivations int64
	circuitBreakerTrips int64

	recoveryExecutions     int64
	successfulRecoveries   int64
	partialRecoveries      int64
	failedRecoveries       int64
	recoveryTimeTotalMs    float64
	recoverySuccessSamples int64
}

func newMetricsRegistry() *metricsRegistry {
	return &metricsRegistry{
		errorsByCategory: make(map[Category]int64),
		errorsBySeverity: make(map[Severity]int64),
	}
}

var defaultMetrics = newMetricsRegistry()

func (m *metricsRegistry) recordError(c Classification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalErrors++
	m.errorsByCategory[c.Category]++
	m.errorsBySeverity[c.Severity]++
}

func (m *metricsRegistry) recordRetryAttempt() {
	m.mu.Lock()
	m.retryAttempts++
	m.mu.Unlock()
}

func (m *metricsRegistry) recordSuccessfulRetry() {
	m.mu.Lock()
	m.successfulRetries++
	m.mu.Unlock()
}

func (m *metricsRegistry) recordFallbackActivation() {
	m.mu.Lock()
	m.fallbackActivations++
	m.mu.Unlock()
}

func (m *metricsRegistry) recordCircuitBreakerTrip() {
	m.mu.Lock()
	m.circuitBreakerTrips++
	m.mu.Unlock()
}

// recordRecoveryExecution records exactly one of success/partial/failed
// per workflow run, and folds the duration into the success-only moving
// average (per the spec's resolution of the averaging ambiguity).
func (m *metricsRegistry) recordRecoveryExecution(status ExecutionStatus, durationMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveryExecutions++
	switch status {
	case ExecutionSuccess:
		m.successfulRecoveries++
		m.recoverySuccessSamples++
		m.recoveryTimeTotalMs += durationMs
	case ExecutionPartial:
		m.partialRecoveries++
	default:
		m.failedRecoveries++
	}
}

// Snapshot returns a consistent, independently-owned copy of all counters.
func (m *metricsRegistry) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	avg := 0.0
	if m.recoverySuccessSamples > 0 {
		avg = m.recoveryTimeTotalMs / float64(m.recoverySuccessSamples)
	}

	byCategory := make(map[Category]int64, len(m.errorsByCategory))
	for k, v := range m.errorsByCategory {
		byCategory[k] = v
	}
	bySeverity := make(map[Severity]int64, len(m.errorsBySeverity))
	for k, v := range m.errorsBySeverity {
		bySeverity[k] = v
	}

	return Metrics{
		TotalErrors:          m.totalErrors,
		ErrorsByCategory:     byCategory,
		ErrorsBySeverity:     bySeverity,
		RetryAttempts:        m.retryAttempts,
		SuccessfulRetries:    m.successfulRetries,
		FallbackActivations:  m.fallbackActivations,
		CircuitBreakerTrips:  m.circuitBreakerTrips,
		RecoveryExecutions:   m.recoveryExecutions,
		SuccessfulRecoveries: m.successfulRecoveries,
		PartialRecoveries:    m.partialRecoveries,
		FailedRecoveries:     m.failedRecoveries,
		AverageRecoveryTime:  avg,
	}
}

// Reset zeroes every counter atomically.
func (m *metricsRegistry) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalErrors = 0
	m.errorsByCategory = make(map[Category]int64)
	m.errorsBySeverity = make(map[Severity]int64)
	m.retryAttempts = 0
	m.successfulRetries = 0
	m.fallbackActivations = 0
	m.circuitBreakerTrips = 0
	m.recoveryExecutions = 0
	m.successfulRecoveries = 0
	m.partialRecoveries = 0
	m.failedRecoveries = 0
	m.recoveryTimeTotalMs = 0
	m.recoverySuccessSamples = 0
}

// GetMetrics returns a snapshot of the process-wide resilience metrics.
func GetMetrics() Metrics {
	return defaultMetrics.Snapshot()
}

// ResetMetrics zeroes every counter in the process-wide registry.
func ResetMetrics() {
	defaultMetrics.Reset()
}
