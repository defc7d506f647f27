package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nooikko/resilience/internal/logger"
)

// FallbackConfig describes one candidate in a fallback chain.
type FallbackConfig struct {
	Name            string
	Priority        int
	HealthCheck     func() bool
	ErrorCategories []Category
	MaxLatencyMs    float64
}

// FallbackEntry pairs a runnable with its gating configuration.
type FallbackEntry struct {
	Run    Operation[any]
	Config FallbackConfig
}

// OnFallbackFunc is invoked once per attempted fallback candidate, just
// before it runs; it is not invoked for the primary. index is the
// candidate's position in priority order, starting at 0.
type OnFallbackFunc func(index int, name string, primaryErr error)

// ChainOptions configures a fallback chain.
type ChainOptions struct {
	Primary    Operation[any]
	Fallbacks  []FallbackEntry
	OnFallback OnFallbackFunc
}

var fallbackLog = logger.Named("fallback")

// Chain is the product of CreateChain: a combined operation plus
// introspection over the health/latency caches it maintains.
type Chain struct {
	opts FallbackOptionsInternal
}

// FallbackOptionsInternal is the storage backing a Chain (all its fields
// are unexported); kept
// distinct from ChainOptions so the caller-facing config stays a plain
// value type while the chain itself owns mutable caches.
type FallbackOptionsInternal struct {
	primary    Operation[any]
	fallbacks  []FallbackEntry
	onFallback OnFallbackFunc

	mu       sync.Mutex
	health   map[string]bool
	latency  map[string]*latencyRingBuffer
}

// CreateChain builds a Chain from primary + ordered fallbacks. Fallbacks
// are tried in ascending priority order on primary failure.
func CreateChain(opts ChainOptions) *Chain {
	sorted := make([]FallbackEntry, len(opts.Fallbacks))
	copy(sorted, opts.Fallbacks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Config.Priority < sorted[j].Config.Priority
	})

	c := &Chain{opts: FallbackOptionsInternal{
		primary:    opts.Primary,
		fallbacks:  sorted,
		onFallback: opts.OnFallback,
		health:     make(map[string]bool),
		latency:    make(map[string]*latencyRingBuffer),
	}}
	return c
}

func (c *Chain) latencyBuffer(name string) *latencyRingBuffer {
	c.opts.mu.Lock()
	defer c.opts.mu.Unlock()
	rb, ok := c.opts.latency[name]
	if !ok {
		rb = newLatencyRingBuffer(100)
		c.opts.latency[name] = rb
	}
	return rb
}

func (c *Chain) setHealth(name string, healthy bool) {
	c.opts.mu.Lock()
	c.opts.health[name] = healthy
	c.opts.mu.Unlock()
}

func (c *Chain) invokeTracked(ctx context.Context, name string, op Operation[any]) (any, error) {
	start := time.Now()
	result, err := op(ctx)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	c.latencyBuffer(name).record(elapsed)
	c.setHealth(name, err == nil)
	return result, err
}

// skipReason evaluates the gating predicates for a candidate against the
// primary error's classification; an empty string means the candidate is
// eligible.
func skipReason(cfg FallbackConfig, primaryClass Classification, avgLatency func(string) float64) string {
	if cfg.HealthCheck != nil && !cfg.HealthCheck() {
		return "unhealthy"
	}
	if cfg.MaxLatencyMs > 0 && avgLatency(cfg.Name) > cfg.MaxLatencyMs {
		return "latency exceeded"
	}
	if len(cfg.ErrorCategories) > 0 {
		matched := false
		for _, cat := range cfg.ErrorCategories {
			if cat == primaryClass.Category {
				matched = true
				break
			}
		}
		if !matched {
			return "category mismatch"
		}
	}
	return ""
}

// Execute runs the chain: primary first, then each eligible fallback in
// ascending priority order, returning the first success. If every
// candidate is skipped or fails it raises the wire-stable
// fallbacks-exhausted error.
func (c *Chain) Execute(ctx context.Context) (any, error) {
	result, primaryErr := c.invokeTracked(ctx, "primary", c.opts.primary)
	if primaryErr == nil {
		return result, nil
	}

	primaryClass := Classify(primaryErr)
	defaultMetrics.recordError(primaryClass)

	for idx, entry := range c.opts.fallbacks {
		reason := skipReason(entry.Config, primaryClass, func(name string) float64 {
			return c.latencyBuffer(name).average()
		})
		if reason != "" {
			fallbackLog.Debug("skipping fallback candidate",
				logger.String("name", entry.Config.Name), logger.String("reason", reason))
			continue
		}

		if c.opts.onFallback != nil {
			c.opts.onFallback(idx, entry.Config.Name, primaryErr)
		}
		defaultMetrics.recordFallbackActivation()

		result, err := c.invokeTracked(ctx, entry.Config.Name, entry.Run)
		if err == nil {
			return result, nil
		}
		fallbackLog.Warn("fallback candidate failed",
			logger.String("name", entry.Config.Name), logger.String("error", err.Error()))
	}

	return nil, fallbacksExhaustedError(primaryErr)
}

// GetServiceHealth returns a snapshot of the last observed outcome per
// service name (including "primary").
func (c *Chain) GetServiceHealth() map[string]bool {
	c.opts.mu.Lock()
	defer c.opts.mu.Unlock()
	out := make(map[string]bool, len(c.opts.health))
	for k, v := range c.opts.health {
		out[k] = v
	}
	return out
}

// GetLatencyMetrics returns the current average latency per service name.
func (c *Chain) GetLatencyMetrics() map[string]float64 {
	c.opts.mu.Lock()
	names := make([]string, 0, len(c.opts.latency))
	buffers := make([]*latencyRingBuffer, 0, len(c.opts.latency))
	for name, rb := range c.opts.latency {
		names = append(names, name)
		buffers = append(buffers, rb)
	}
	c.opts.mu.Unlock()

	out := make(map[string]float64, len(names))
	for i, name := range names {
		out[name] = buffers[i].average()
	}
	return out
}
