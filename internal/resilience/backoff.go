package resilience

import (
	"math/rand"
	"time"
)

// Backoff returns the exponential delay before retry attempt (1-based). jitter is a fraction of
// the delay, so 0.2 spreads it by up to 20% either way.
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << (max(attempt, 1) - 1)
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * min(jitter, 1)
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
