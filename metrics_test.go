package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_ResetZeroesEverything(t *testing.T) {
	defaultMetrics.recordError(Classification{Category: CategoryNetwork, Severity: SeverityMedium})
	defaultMetrics.recordRetryAttempt()
	defaultMetrics.recordSuccessfulRetry()
	defaultMetrics.recordFallbackActivation()
	defaultMetrics.recordCircuitBreakerTrip()
	defaultMetrics.recordRecoveryExecution(ExecutionSuccess, 120)

	snap := defaultMetrics.Snapshot()
	assert.NotZero(t, snap.TotalErrors)
	assert.NotZero(t, snap.RetryAttempts)
	assert.NotZero(t, snap.RecoveryExecutions)

	ResetMetrics()

	snap = GetMetrics()
	assert.Zero(t, snap.TotalErrors)
	assert.Zero(t, snap.RetryAttempts)
	assert.Zero(t, snap.SuccessfulRetries)
	assert.Zero(t, snap.FallbackActivations)
	assert.Zero(t, snap.CircuitBreakerTrips)
	assert.Zero(t, snap.RecoveryExecutions)
	assert.Zero(t, snap.SuccessfulRecoveries)
	assert.Zero(t, snap.PartialRecoveries)
	assert.Zero(t, snap.FailedRecoveries)
	assert.Zero(t, snap.AverageRecoveryTime)
	assert.Empty(t, snap.ErrorsByCategory)
	assert.Empty(t, snap.ErrorsBySeverity)
}

func TestMetrics_AverageRecoveryTimeOnlyCountsSuccesses(t *testing.T) {
	ResetMetrics()
	defer ResetMetrics()

	defaultMetrics.recordRecoveryExecution(ExecutionSuccess, 100)
	defaultMetrics.recordRecoveryExecution(ExecutionSuccess, 200)
	defaultMetrics.recordRecoveryExecution(ExecutionFailed, 9999)

	snap := GetMetrics()
	assert.Equal(t, float64(150), snap.AverageRecoveryTime)
	assert.Equal(t, int64(3), snap.RecoveryExecutions)
	assert.Equal(t, int64(2), snap.SuccessfulRecoveries)
	assert.Equal(t, int64(1), snap.FailedRecoveries)
}

func TestMetrics_SnapshotIsACopy(t *testing.T) {
	ResetMetrics()
	defer ResetMetrics()

	defaultMetrics.recordError(Classification{Category: CategoryTimeout, Severity: SeverityLow})
	snap := GetMetrics()
	snap.ErrorsByCategory[CategoryTimeout] = 999

	fresh := GetMetrics()
	assert.Equal(t, int64(1), fresh.ErrorsByCategory[CategoryTimeout])
}
