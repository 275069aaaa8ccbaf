package reliability

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy decides whether a failed attempt should be retried and how long to
// wait before the next one.
type Policy interface {
	// ShouldRetry determines if a retry should be attempted after the given
	// zero-based attempt failed with err.
	ShouldRetry(attempt int, err error) (bool, time.Duration)
	// MaxAttempts returns the total attempt budget.
	MaxAttempts() int
}

// ExponentialBackoff grows the delay exponentially from BaseDelay up to
// MaxDelay and spreads concurrent retriers with random jitter.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Attempts   int
	Jitter     bool
}

// NewExponentialBackoff creates an exponential backoff policy with jitter
// enabled.
func NewExponentialBackoff(base, max time.Duration, multiplier float64, attempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  base,
		MaxDelay:   max,
		Multiplier: multiplier,
		Attempts:   attempts,
		Jitter:     true,
	}
}

// ShouldRetry implements Policy.
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= e.Attempts-1 {
		return false, 0
	}
	if !IsRetryable(err) {
		return false, 0
	}
	return true, e.delay(attempt)
}

// MaxAttempts implements Policy.
func (e *ExponentialBackoff) MaxAttempts() int {
	return e.Attempts
}

func (e *ExponentialBackoff) delay(attempt int) time.Duration {
	d := float64(e.BaseDelay) * math.Pow(e.Multiplier, float64(attempt))
	if d > float64(e.MaxDelay) {
		d = float64(e.MaxDelay)
	}
	if e.Jitter {
		// ±15% spread to avoid synchronized retry storms across instances.
		d = d * (0.85 + rand.Float64()*0.3)
	}
	return time.Duration(d)
}

// FixedDelay waits the same interval between every attempt.
type FixedDelay struct {
	Delay    time.Duration
	Attempts int
}

// ShouldRetry implements Policy.
func (f *FixedDelay) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= f.Attempts-1 {
		return false, 0
	}
	if !IsRetryable(err) {
		return false, 0
	}
	return true, f.Delay
}

// MaxAttempts implements Policy.
func (f *FixedDelay) MaxAttempts() int {
	return f.Attempts
}

// Retry runs fn until it succeeds, the policy gives up, or ctx is cancelled.
// Cancellation is cooperative: an attempt already in flight finishes, but no
// further attempt is scheduled.
func Retry(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		again, delay := policy.ShouldRetry(attempt, err)
		if !again {
			return lastErr
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
