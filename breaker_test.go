package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysFail(ctx context.Context) (any, error) {
	return nil, errors.New("boom")
}

func alwaysSucceed(ctx context.Context) (any, error) {
	return "ok", nil
}

func TestBreaker_TripsAfterExactThreshold(t *testing.T) {
	r := NewBreakerRegistry()
	cfg := &BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute, HalfOpenRequests: 1}

	for i := 0; i < 2; i++ {
		_, err := r.Execute(context.Background(), "svc", alwaysFail, cfg)
		require.Error(t, err)
	}
	st, ok := r.GetStatus("svc")
	require.True(t, ok)
	assert.Equal(t, StateClosed, st.State)

	_, err := r.Execute(context.Background(), "svc", alwaysFail, cfg)
	require.Error(t, err)
	st, _ = r.GetStatus("svc")
	assert.Equal(t, StateOpen, st.State)
}

func TestBreaker_FailsFastWithoutInvokingOpWhileOpen(t *testing.T) {
	r := NewBreakerRegistry()
	cfg := &BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour, HalfOpenRequests: 1}

	_, err := r.Execute(context.Background(), "svc", alwaysFail, cfg)
	require.Error(t, err)

	invoked := false
	op := func(ctx context.Context) (any, error) {
		invoked = true
		return nil, nil
	}
	_, err = r.Execute(context.Background(), "svc", op, cfg)
	require.Error(t, err)
	assert.False(t, invoked)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "Service unavailable")
}

func TestBreaker_HalfOpenProbeAfterResetTimeout(t *testing.T) {
	r := NewBreakerRegistry()
	cfg := &BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenRequests: 1}

	_, err := r.Execute(context.Background(), "svc", alwaysFail, cfg)
	require.Error(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = r.Execute(context.Background(), "svc", alwaysSucceed, cfg)
	require.NoError(t, err)

	st, _ := r.GetStatus("svc")
	assert.Equal(t, StateClosed, st.State)
}

func TestBreaker_ReturnsToOpenOnProbeFailure(t *testing.T) {
	r := NewBreakerRegistry()
	cfg := &BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenRequests: 2}

	_, _ = r.Execute(context.Background(), "svc", alwaysFail, cfg)
	time.Sleep(20 * time.Millisecond)

	_, err := r.Execute(context.Background(), "svc", alwaysFail, cfg)
	require.Error(t, err)

	st, _ := r.GetStatus("svc")
	assert.Equal(t, StateOpen, st.State)
}

func TestBreaker_ClosesWithZeroedCountersAfterHalfOpenSuccesses(t *testing.T) {
	r := NewBreakerRegistry()
	cfg := &BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenRequests: 2}

	_, _ = r.Execute(context.Background(), "svc", alwaysFail, cfg)
	time.Sleep(20 * time.Millisecond)

	_, err := r.Execute(context.Background(), "svc", alwaysSucceed, cfg)
	require.NoError(t, err)
	st, _ := r.GetStatus("svc")
	assert.Equal(t, StateHalfOpen, st.State)

	_, err = r.Execute(context.Background(), "svc", alwaysSucceed, cfg)
	require.NoError(t, err)
	st, _ = r.GetStatus("svc")
	assert.Equal(t, StateClosed, st.State)
	assert.Zero(t, st.FailureCount)
	assert.Zero(t, st.SuccessCount)
}

func TestBreaker_GetActiveBreakersExcludesClosed(t *testing.T) {
	r := NewBreakerRegistry()
	cfg := &BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour, HalfOpenRequests: 1}

	_, _ = r.Execute(context.Background(), "closed-svc", alwaysSucceed, cfg)
	_, _ = r.Execute(context.Background(), "open-svc", alwaysFail, cfg)

	active := r.GetActiveBreakers()
	assert.NotContains(t, active, "closed-svc")
	assert.Contains(t, active, "open-svc")
}

func TestBreaker_ResetForcesClosed(t *testing.T) {
	r := NewBreakerRegistry()
	cfg := &BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour, HalfOpenRequests: 1}

	_, _ = r.Execute(context.Background(), "svc", alwaysFail, cfg)
	st, _ := r.GetStatus("svc")
	require.Equal(t, StateOpen, st.State)

	r.Reset("svc")
	st, _ = r.GetStatus("svc")
	assert.Equal(t, StateClosed, st.State)
	assert.Zero(t, st.FailureCount)
}

func TestBreaker_FailuresFlowIntoMetrics(t *testing.T) {
	ResetMetrics()
	defer ResetMetrics()

	r := NewBreakerRegistry()
	cfg := &BreakerConfig{FailureThreshold: 5, ResetTimeout: time.Hour, HalfOpenRequests: 1}

	_, err := r.Execute(context.Background(), "svc", alwaysFail, cfg)
	require.Error(t, err)

	snap := GetMetrics()
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.Equal(t, int64(1), snap.ErrorsByCategory[CategoryUnknown])
}

func TestBreaker_IndependentKeysDoNotShareState(t *testing.T) {
	r := NewBreakerRegistry()
	cfg := &BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour, HalfOpenRequests: 1}

	_, _ = r.Execute(context.Background(), "a", alwaysFail, cfg)
	_, err := r.Execute(context.Background(), "b", alwaysSucceed, cfg)
	require.NoError(t, err)

	stA, _ := r.GetStatus("a")
	stB, _ := r.GetStatus("b")
	assert.Equal(t, StateOpen, stA.State)
	assert.Equal(t, StateClosed, stB.State)
}
