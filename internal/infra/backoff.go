package infra

import (
	"math/rand/v2"
	"time"
)

// Backoff bounds for reconnecting workers.
const (
	BackoffBase = 1 * time.Second
	BackoffMax  = 60 * time.Second
)

// CalculateBackoff returns the delay before reconnect attempt retry:
// exponential from BackoffBase, capped at maxDelay, with up to 20% jitter.
func CalculateBackoff(retry int, maxDelay time.Duration) time.Duration {
	if maxDelay <= 0 {
		maxDelay = BackoffMax
	}
	delay := BackoffBase
	for i := 0; i < retry && delay < maxDelay; i++ {
		delay *= 2
	}
	delay = min(delay, maxDelay)

	jitter := time.Duration(rand.Int64N(int64(delay)/5 + 1))
	return delay - jitter
}
