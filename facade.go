package resilience

import "context"

// Facade is the top-level, process-wide container a composer (or a
// caller that doesn't need the full composer) reaches for: one shared
// breaker registry and one shared recovery engine. Metrics are not held
// by a Facade; every component reports into the single package-wide
// registry that GetMetrics reads. Of the package-level functions below,
// HandleWithCircuitBreaker goes through DefaultFacade; HandleWithRetry,
// HandleWithFallback and ClassifyError call the package's engines
// directly.
type Facade struct {
	Breakers *BreakerRegistry
	Recovery *RecoveryEngine
}

// NewFacade wires a fresh breaker registry and recovery engine together;
// most callers want the package-level DefaultFacade instead.
func NewFacade() *Facade {
	return &Facade{
		Breakers: NewBreakerRegistry(),
		Recovery: NewRecoveryEngine(),
	}
}

// DefaultFacade is the process-wide instance; its breaker registry is the
// same one CreateResilient and the package-level breaker functions use.
var DefaultFacade = &Facade{
	Breakers: defaultBreakers,
	Recovery: NewRecoveryEngine(),
}

// HandleWithRetry runs op under policy (nil for the default policy).
func HandleWithRetry(ctx context.Context, op Operation[any], policy *RetryPolicy) (any, error) {
	return ExecuteWithRetry(ctx, op, policy)
}

// HandleWithCircuitBreaker runs op through the named breaker in the
// default facade's registry.
func HandleWithCircuitBreaker(ctx context.Context, key string, op Operation[any], config *BreakerConfig) (any, error) {
	return DefaultFacade.Breakers.Execute(ctx, key, op, config)
}

// HandleWithFallback builds and immediately executes a one-shot chain.
func HandleWithFallback(ctx context.Context, opts ChainOptions) (any, error) {
	return CreateChain(opts).Execute(ctx)
}

// ClassifyError exposes Classify under the facade naming used by the
// spec's external-interface table.
func ClassifyError(err error) Classification {
	return Classify(err)
}
