package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/nooikko/resilience/internal/logger"
)

// BreakerState is one of the three states a circuit breaker can be in.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig is the immutable configuration of a single breaker.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenRequests int

	OnOpen     func(key string)
	OnClose    func(key string)
	OnHalfOpen func(key string)
}

// DefaultBreakerConfig returns {failureThreshold:5, resetTimeout:60s,
// halfOpenRequests:3}, matching the spec's defaults.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		HalfOpenRequests: 3,
	}
}

// mergeBreakerConfig merges a caller-supplied partial config onto the
// defaults; zero fields fall back to the default value.
func mergeBreakerConfig(cfg *BreakerConfig) *BreakerConfig {
	def := DefaultBreakerConfig()
	if cfg == nil {
		return def
	}
	merged := *cfg
	if merged.FailureThreshold <= 0 {
		merged.FailureThreshold = def.FailureThreshold
	}
	if merged.ResetTimeout <= 0 {
		merged.ResetTimeout = def.ResetTimeout
	}
	if merged.HalfOpenRequests <= 0 {
		merged.HalfOpenRequests = def.HalfOpenRequests
	}
	return &merged
}

// BreakerStatus is a point-in-time, defensively-copied view of a single
// breaker, returned by GetStatus/GetActiveBreakers so callers never see a
// live pointer into the registry.
type BreakerStatus struct {
	Key             string
	State           BreakerState
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
	NextRetryTime   time.Time
}

type breaker struct {
	mu sync.Mutex

	key    string
	config *BreakerConfig

	state           BreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	nextRetryTime   time.Time
}

func newBreaker(key string, config *BreakerConfig) *breaker {
	return &breaker{key: key, config: config, state: StateClosed}
}

var breakerLog = logger.Named("breaker")

func (b *breaker) status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStatus{
		Key:             b.key,
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
		NextRetryTime:   b.nextRetryTime,
	}
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.lastFailureTime = time.Time{}
	b.nextRetryTime = time.Time{}
}

// beforeCall decides whether the call is allowed to proceed. It returns a
// non-nil error only when the breaker is OPEN and still cooling down.
func (b *breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		now := time.Now()
		if !now.Before(b.nextRetryTime) {
			b.state = StateHalfOpen
			b.failureCount = 0
			b.successCount = 0
			breakerLog.Info("breaker probing", logger.String("key", b.key))
			if b.config.OnHalfOpen != nil {
				b.config.OnHalfOpen(b.key)
			}
			return nil
		}
		return circuitOpenError(b.nextRetryTime)
	default:
		return nil
	}
}

// afterCall records the outcome and applies the state table from the
// spec's Circuit Breaker Registry section.
func (b *breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.onSuccess()
		return
	}
	defaultMetrics.recordError(Classify(err))
	b.onFailure()
}

func (b *breaker) onSuccess() {
	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.HalfOpenRequests {
			b.transitionToClosed()
		}
	case StateClosed:
		b.failureCount = 0
	}
}

func (b *breaker) onFailure() {
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.transitionToOpen()
		}
	case StateHalfOpen:
		b.transitionToOpen()
	}
}

func (b *breaker) transitionToOpen() {
	b.state = StateOpen
	b.nextRetryTime = time.Now().Add(b.config.ResetTimeout)
	defaultMetrics.recordCircuitBreakerTrip()
	breakerLog.Warn("breaker tripped", logger.String("key", b.key),
		logger.Int("failures", b.failureCount))
	if b.config.OnOpen != nil {
		b.config.OnOpen(b.key)
	}
}

func (b *breaker) transitionToClosed() {
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.lastFailureTime = time.Time{}
	b.nextRetryTime = time.Time{}
	breakerLog.Info("breaker closed", logger.String("key", b.key))
	if b.config.OnClose != nil {
		b.config.OnClose(b.key)
	}
}

// BreakerRegistry is a lazily-populated, per-key collection of breakers.
// A single key maps to exactly one breaker instance, created on first use.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*breaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: make(map[string]*breaker)}
}

// getOrCreate does a double-checked lookup under a short-lived lock so
// concurrent first-use callers for the same key never race past each
// other into two different breaker instances.
func (r *BreakerRegistry) getOrCreate(key string, config *BreakerConfig) *breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[key]; ok {
		return b
	}
	b = newBreaker(key, mergeBreakerConfig(config))
	r.breakers[key] = b
	return b
}

// Execute runs op through the breaker for key, lazily creating it with
// config (or the defaults, merged onto any caller-supplied partial
// config) on first use.
func (r *BreakerRegistry) Execute(ctx context.Context, key string, op Operation[any], config *BreakerConfig) (any, error) {
	b := r.getOrCreate(key, config)

	if err := b.beforeCall(); err != nil {
		return nil, err
	}

	result, err := op(ctx)
	b.afterCall(err)
	return result, err
}

// GetStatus returns the current snapshot for key, if it has ever been
// used.
func (r *BreakerRegistry) GetStatus(key string) (BreakerStatus, bool) {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if !ok {
		return BreakerStatus{}, false
	}
	return b.status(), true
}

// Reset forces the breaker for key back to CLOSED with zeroed counters.
func (r *BreakerRegistry) Reset(key string) {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		b.reset()
	}
}

// ResetAll resets every breaker in the registry.
func (r *BreakerRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.reset()
	}
}

// GetActiveBreakers returns a snapshot of every breaker currently not
// CLOSED.
func (r *BreakerRegistry) GetActiveBreakers() map[string]BreakerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make(map[string]BreakerStatus)
	for key, b := range r.breakers {
		st := b.status()
		if st.State != StateClosed {
			active[key] = st
		}
	}
	return active
}

var defaultBreakers = NewBreakerRegistry()

// ExecuteWithBreaker runs op through the process-wide breaker registry's
// entry for key.
func ExecuteWithBreaker(ctx context.Context, key string, op Operation[any], config *BreakerConfig) (any, error) {
	return defaultBreakers.Execute(ctx, key, op, config)
}

// GetBreakerStatus inspects the process-wide registry.
func GetBreakerStatus(key string) (BreakerStatus, bool) { return defaultBreakers.GetStatus(key) }

// ResetBreaker forces one breaker in the process-wide registry closed.
func ResetBreaker(key string) { defaultBreakers.Reset(key) }

// ResetAllBreakers forces every breaker in the process-wide registry closed.
func ResetAllBreakers() { defaultBreakers.ResetAll() }

// GetActiveBreakers returns every non-CLOSED breaker in the process-wide
// registry.
func GetActiveBreakers() map[string]BreakerStatus { return defaultBreakers.GetActiveBreakers() }
