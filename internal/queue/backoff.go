package queue

import (
	"math/rand/v2"
	"time"
)

const (
	backoffBase   = time.Second
	backoffMax    = 30 * time.Second
	backoffJitter = 0.2
)

// Backoff returns the delay before retry number attempt (1-based):
// 1s doubling per attempt, capped at 30s, with ±20% jitter.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffMax
	if attempt <= 6 {
		d = min(backoffBase<<(attempt-1), backoffMax)
	}
	jitter := float64(d) * backoffJitter * (2*rand.Float64() - 1)
	return d + time.Duration(jitter)
}
