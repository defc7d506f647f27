package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nooikko/resilience/internal/logger"
)

// Operation is a suspendable, context-aware unit of work. Every wrapper in
// this package operates over Operation[T]; the fallback chain's primary and
// candidates are Operation[any] values (see fallback.go).
type Operation[T any] func(ctx context.Context) (T, error)

// RetryPolicy configures the retry engine. It is immutable once passed to
// ExecuteWithRetry.
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64

	// RetryPredicate decides whether a failed attempt should be retried.
	// Defaults to Classify(err).Retryable.
	RetryPredicate func(err error) bool

	// OnRetry is invoked once per retry, after the predicate allowed it
	// and before the backoff sleep.
	OnRetry func(err error, attempt int)
}

// DefaultRetryPolicy returns the package defaults: 3 attempts, a 1s
// initial delay doubling each time up to 30s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (p *RetryPolicy) withDefaults() *RetryPolicy {
	cp := *p
	if cp.MaxAttempts < 1 {
		cp.MaxAttempts = 1
	}
	if cp.InitialDelay <= 0 {
		cp.InitialDelay = time.Second
	}
	if cp.BackoffMultiplier < 1 {
		cp.BackoffMultiplier = 1
	}
	if cp.MaxDelay < cp.InitialDelay {
		cp.MaxDelay = cp.InitialDelay
	}
	if cp.RetryPredicate == nil {
		cp.RetryPredicate = func(err error) bool { return Classify(err).Retryable }
	}
	return &cp
}

// jitteredBackOff implements backoff.BackOff with the spec's exact
// formula: raw = initial * multiplier^(n-1), jitter = raw * U[0.5, 1.0),
// delay = min(jitter, maxDelay). cenkalti/backoff drives the attempt loop
// and the Permanent/Stop signalling; this type only supplies the delay
// shape.
type jitteredBackOff struct {
	attempt int
	policy  *RetryPolicy
}

func (b *jitteredBackOff) NextBackOff() time.Duration {
	b.attempt++
	raw := float64(b.policy.InitialDelay) * math.Pow(b.policy.BackoffMultiplier, float64(b.attempt-1))
	jitter := raw * (0.5 + rand.Float64()*0.5)
	if jitter > float64(b.policy.MaxDelay) {
		jitter = float64(b.policy.MaxDelay)
	}
	return time.Duration(jitter)
}

func (b *jitteredBackOff) Reset() { b.attempt = 0 }

var retryLog = logger.Named("retry")

// ExecuteWithRetry runs op, retrying on retryable failures with
// exponential, jittered backoff up to policy.MaxAttempts total
// invocations. On success it returns the result; on terminal failure it
// re-raises the original last error unchanged, never a wrapping error.
func ExecuteWithRetry[T any](ctx context.Context, op Operation[T], policy *RetryPolicy) (T, error) {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	policy = policy.withDefaults()

	var result T
	attempt := 0
	retried := false

	bo := backoff.WithMaxRetries(&jitteredBackOff{policy: policy}, uint64(policy.MaxAttempts-1))

	operation := func() error {
		attempt++
		r, err := op(ctx)
		if err == nil {
			result = r
			return nil
		}
		defaultMetrics.recordError(Classify(err))
		if !policy.RetryPredicate(err) {
			retryLog.Debug("non-retryable error, surfacing immediately",
				logger.String("error", err.Error()), logger.Int("attempt", attempt))
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, _ time.Duration) {
		retried = true
		defaultMetrics.recordRetryAttempt()
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt)
		}
		retryLog.Debug("retrying operation",
			logger.String("error", err.Error()), logger.Int("attempt", attempt))
	}

	err := backoff.RetryNotify(operation, bo, notify)
	if err == nil && retried {
		defaultMetrics.recordSuccessfulRetry()
	}
	return result, err
}
