// Package resilience wraps unreliable asynchronous operations — LLM calls,
// tool invocations, outbound HTTP — with four composable fault-tolerance
// patterns: retry with classified backoff, a per-key circuit breaker,
// a prioritized fallback chain, and event-driven recovery workflows. An
// error classifier routes failures through these patterns, and a composer
// combinator stacks all four around a single operation.
//
// The package does not implement the HTTP controller surface, the
// downstream agent that produces a reply, or the pub/sub transport used to
// relay streamed output — those are external collaborators the caller
// supplies.
package resilience
