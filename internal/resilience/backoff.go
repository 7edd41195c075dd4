package resilience

import (
	"math"
	"time"
)

// Backoff is an exponential retry schedule with a bounded number of attempts
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int // 0 means unlimited
}

// DefaultBackoff starts at half a second and doubles up to 30s over 8 attempts
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     500 * time.Millisecond,
		Max:         30 * time.Second,
		Multiplier:  2.0,
		MaxAttempts: 8,
	}
}

// Delay returns the wait before retry number attempt (0-based)
func (b Backoff) Delay(attempt int) time.Duration {
	return CalculateBackoff(attempt, b.Initial, b.Max, b.Multiplier)
}

// Exhausted reports whether attempt retries have used up the budget
func (b Backoff) Exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt >= b.MaxAttempts
}

// CalculateBackoff calculates the backoff duration for a given attempt
func CalculateBackoff(attempt int, initialBackoff time.Duration, maxBackoff time.Duration, multiplier float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if multiplier < 1 {
		multiplier = 1
	}
	backoff := float64(initialBackoff) * math.Pow(multiplier, float64(attempt))
	if maxBackoff > 0 && backoff > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(backoff)
}
