// Package utils holds small shared helpers.
package utils

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig holds configuration for bounded retry with backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt)
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay caps the growth of the per-attempt delay
	MaxDelay time.Duration

	// Linear selects delay*attempt growth; otherwise the delay doubles
	// after every attempt
	Linear bool

	// RetryableErrors determines which errors trigger a retry.
	// If nil, all errors are considered retryable.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns the retry configuration used for outbound calls:
// 3 attempts, linear delay*attempt backoff starting at one second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Linear:       true,
	}
}

// Delay returns the wait before retrying after the given 1-based attempt.
func (c RetryConfig) Delay(attempt int) time.Duration {
	var d time.Duration
	if c.Linear {
		d = c.InitialDelay * time.Duration(attempt)
	} else {
		d = c.InitialDelay << (attempt - 1)
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// RetryWithBackoff executes fn up to MaxAttempts times with growing delays
// between attempts. A non-retryable error (per RetryableErrors) is returned
// immediately. Context cancellation interrupts the wait between attempts but
// never an attempt already in flight.
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err

			if config.RetryableErrors != nil && !config.RetryableErrors(err) {
				return err
			}

			if attempt == config.MaxAttempts {
				break
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(config.Delay(attempt)):
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
