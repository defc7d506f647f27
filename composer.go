package resilience

import "context"

// ComposerOptions configures CreateResilient. BreakerKey identifies the
// circuit breaker instance this operation shares; Fallbacks are tried, in
// priority order, once retry and the breaker have both surfaced a
// failure.
type ComposerOptions struct {
	RetryPolicy   *RetryPolicy
	BreakerKey    string
	BreakerConfig *BreakerConfig
	Fallbacks     []FallbackEntry
	OnFallback    OnFallbackFunc
}

// CreateResilient wraps op in the fixed order retry → circuit breaker →
// fallback (innermost first): the breaker only ever sees a failure once
// retry has exhausted its attempts, and the fallback chain only ever sees
// a failure once the breaker has also surfaced one (whether from the
// wrapped op or a fail-fast while OPEN).
func CreateResilient(op Operation[any], opts ComposerOptions) Operation[any] {
	retryPolicy := opts.RetryPolicy
	if retryPolicy == nil {
		retryPolicy = DefaultRetryPolicy()
	}

	retried := func(ctx context.Context) (any, error) {
		return ExecuteWithRetry(ctx, op, retryPolicy)
	}

	breakerKey := opts.BreakerKey
	if breakerKey == "" {
		breakerKey = "default"
	}
	guarded := func(ctx context.Context) (any, error) {
		return defaultBreakers.Execute(ctx, breakerKey, retried, opts.BreakerConfig)
	}

	if len(opts.Fallbacks) == 0 {
		return guarded
	}

	chain := CreateChain(ChainOptions{
		Primary:    guarded,
		Fallbacks:  opts.Fallbacks,
		OnFallback: opts.OnFallback,
	})
	return chain.Execute
}
