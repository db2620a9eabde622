package client

import (
	"context"
	"time"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// Budget is the maximum number of retries after the initial attempt.
	// A persistent 5xx therefore costs Budget+1 HTTP calls.
	Budget int

	// BaseBackoff is multiplied by the attempt number (linear backoff).
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Budget:      3,
		BaseBackoff: 1 * time.Second,
	}
}

// Backoff returns the wait before retry number retryCount+1:
// BaseBackoff * (retryCount + 1).
func (c RetryConfig) Backoff(retryCount int) time.Duration {
	return c.BaseBackoff * time.Duration(retryCount+1)
}

// shouldRetry determines if a failure is retried. Only server errors are:
// network failures fail fast and timeouts fall back to the cache.
func shouldRetry(code Code, retryCount, budget int) bool {
	return code == CodeServerError && retryCount < budget
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the production SleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
