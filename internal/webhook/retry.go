package webhook

import (
	"math/rand/v2"
	"time"
)

// retryDelays is indexed by completed attempts minus one.
var retryDelays = []time.Duration{
	time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	12 * time.Hour,
}

const (
	// DefaultMaxAttempts caps callback deliveries per notification.
	DefaultMaxAttempts = 5

	// JitterFactor is the ±fraction applied to each delay.
	JitterFactor = 0.2
)

// NextRetryDelay returns the wait before the next attempt, given how many
// attempts have already failed (0-indexed).
func NextRetryDelay(failed int) time.Duration {
	failed = max(failed, 0)
	failed = min(failed, len(retryDelays)-1)

	base := float64(retryDelays[failed])
	jitter := (rand.Float64()*2 - 1) * base * JitterFactor
	return time.Duration(base + jitter)
}

// IsExhausted reports whether no attempts remain.
func IsExhausted(attempts, maxAttempts int) bool {
	return attempts >= maxAttempts
}

// MaxDeliveryWindow is the longest a notification allowed maxAttempts can
// stay undelivered, jitter included. Older notifications are given up on
// even if attempts remain, e.g. after a long outage of the delivery worker.
func MaxDeliveryWindow(maxAttempts int) time.Duration {
	var total time.Duration
	for i := range max(maxAttempts-1, 0) {
		total += retryDelays[min(i, len(retryDelays)-1)]
	}
	return total + time.Duration(float64(total)*JitterFactor)
}
