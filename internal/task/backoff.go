package task

import (
	"time"
)

// Retry delay parameters: exponential, starting at baseDelay and doubling
// per attempt, capped at maxDelay.
const (
	baseDelay     = time.Second
	backoffFactor = 2
	maxDelay      = 5 * time.Minute
)

// Backoff returns the delay before re-running a task that has completed
// `attempt` attempts (attempt >= 1).
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseDelay
	for i := 1; i < attempt; i++ {
		d *= backoffFactor
		if d >= maxDelay {
			return maxDelay
		}
	}
	return d
}
