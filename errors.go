package resilience

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinel errors a caller can match with errors.Is. These wrap the two
// wire-observable synthetic error strings the spec requires to stay
// stable, plus the one condition under which executeWorkflow itself
// returns an error rather than encoding failure on the execution record.
var (
	// ErrCircuitOpen is wrapped by the fail-fast error returned while a
	// breaker is OPEN. The capitalized wording matches the wire-stable
	// message required by callers parsing the returned text.
	ErrCircuitOpen = errors.New("Circuit breaker is open")

	// ErrFallbacksExhausted is wrapped by the error returned once every
	// fallback candidate has been skipped or has failed.
	ErrFallbacksExhausted = errors.New("All fallbacks exhausted")

	// ErrWorkflowNotFound is returned by executeWorkflow when the given id
	// was never registered.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowTimeout marks an execution that missed its deadline.
	ErrWorkflowTimeout = errors.New("workflow execution timeout")
)

// circuitOpenError formats the stable wire message: "Circuit breaker is
// open. Service unavailable. Retry in <N>s". N is the ceiling of the
// remaining seconds until nextRetryTime.
func circuitOpenError(nextRetry time.Time) error {
	remaining := time.Until(nextRetry)
	seconds := int(math.Ceil(remaining.Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Errorf("%w. Service unavailable. Retry in %ds", ErrCircuitOpen, seconds)
}

// fallbacksExhaustedError formats the stable wire message: "All fallbacks
// exhausted. Primary error: <msg>".
func fallbacksExhaustedError(primary error) error {
	return fmt.Errorf("%w. Primary error: %s", ErrFallbacksExhausted, primary.Error())
}
