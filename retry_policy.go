package graflow

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy computes the delay before the next retry attempt.
// nextDelay(attempt) = min(maxInterval, initialInterval * multiplier^attempt * jitter)
// with jitter uniform in [1.0, 1.25).
type RetryPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxAttempts     int
}

// DefaultRetryPolicy matches the spec's documented defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 1 * time.Second,
		Multiplier:      2.0,
		MaxInterval:     60 * time.Second,
		MaxAttempts:     3,
	}
}

// NextDelay returns the backoff delay for the given attempt number
// (0-indexed: the first retry is attempt 0).
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	jitter := 1.0 + rand.Float64()*0.25
	raw := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt)) * jitter
	if raw > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(raw)
}

// NextRetryAt is now + NextDelay(attempt).
func (p RetryPolicy) NextRetryAt(attempt int, now time.Time) time.Time {
	return now.Add(p.NextDelay(attempt))
}
