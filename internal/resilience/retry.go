package resilience

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	Backoff Backoff
	Jitter  bool // add up to 25% random jitter to each wait
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		Backoff: Backoff{
			Initial:     100 * time.Millisecond,
			Max:         5 * time.Second,
			Multiplier:  2.0,
			MaxAttempts: 3,
		},
		Jitter: true,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// IsRetryableError checks if an error is retryable
type IsRetryableError func(error) bool

// Retry runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. MaxAttempts counts calls to fn.
func Retry(ctx context.Context, fn RetryableFunc, config *RetryConfig, isRetryable IsRetryableError) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempts := config.Backoff.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		wait := config.Backoff.Delay(attempt)
		if config.Jitter && wait > 0 {
			wait += time.Duration(rand.Int64N(int64(wait)/4 + 1))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// IsRetryableNetworkError checks if an error is a retryable network error
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, fragment := range []string{
		// Connection errors
		"connection refused",
		"connection reset",
		"connection closed",
		"transport is closing",
		"unavailable",
		"network is unreachable",
		"no route to host",
		"no servers available",
		// Timeout errors
		"deadline exceeded",
		"timeout",
		// Resource exhaustion (may be temporary)
		"resource exhausted",
		"too many connections",
		"rate limit",
	} {
		if strings.Contains(errStr, fragment) {
			return true
		}
	}
	return false
}
