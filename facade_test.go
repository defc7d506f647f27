package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacade_HandleWithRetry(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) (any, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("network error")
		}
		return "ok", nil
	}
	result, err := HandleWithRetry(context.Background(), op, &RetryPolicy{MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestFacade_HandleWithCircuitBreaker(t *testing.T) {
	op := func(ctx context.Context) (any, error) { return "ok", nil }
	result, err := HandleWithCircuitBreaker(context.Background(), "facade-test", op, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestFacade_HandleWithFallback(t *testing.T) {
	result, err := HandleWithFallback(context.Background(), ChainOptions{
		Primary: func(ctx context.Context) (any, error) { return nil, errors.New("down") },
		Fallbacks: []FallbackEntry{
			{Run: func(ctx context.Context) (any, error) { return "fb", nil },
				Config: FallbackConfig{Name: "f1", Priority: 1}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "fb", result)
}

func TestFacade_ClassifyError(t *testing.T) {
	c := ClassifyError(errors.New("rate limit exceeded"))
	assert.Equal(t, CategoryRateLimit, c.Category)
}
