package client

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy yields the wait before retry number attempt (0-based).
// The EC client and token source share one strategy across their retry
// loops; tests swap in fixed delays.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff grows the delay geometrically and spreads it with
// jitter so parallel retries against the same tenant fan out.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // fraction of the delay, 0 disables
}

// DefaultBackoff is tuned for the EC API: 100ms doubling to a 5s ceiling
// with 20% jitter.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the wait for the given attempt. Attempts below zero get the
// base delay.
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := math.Min(
		float64(b.Base)*math.Pow(b.Factor, float64(attempt)),
		float64(b.Max),
	)
	if b.Jitter > 0 {
		// Uniform in [delay*(1-Jitter), delay*(1+Jitter)].
		delay *= 1 + b.Jitter*(2*rand.Float64()-1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
