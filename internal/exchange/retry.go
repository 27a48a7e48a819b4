package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	apperrors "marketcache/internal/errors"
)

// RetryConfig represents retry configuration
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Factor      float64
	Jitter      float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Factor:      2.0,
		Jitter:      0.1,
	}
}

// IsRetryableError reports whether err is a transient upstream failure.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr.IsRetryable()
	}
	return false
}

// next returns the wait after wait, grown by Factor with +/- Jitter applied.
func (c *RetryConfig) next(wait time.Duration) time.Duration {
	jitter := 1.0 + (c.Jitter * (2*rand.Float64() - 1))
	wait = time.Duration(float64(wait) * c.Factor * jitter)
	if wait > c.MaxWait {
		wait = c.MaxWait
	}
	return wait
}

// WithRetry wraps a function with retry logic
func WithRetry(ctx context.Context, fn func(context.Context) error, config *RetryConfig) error {
	_, err := RetryWithResult(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, config)
	return err
}

// RetryWithResult calls fn until it succeeds, returns a non-retryable error,
// or runs out of attempts. The first wait is InitialWait.
func RetryWithResult[T any](ctx context.Context, fn func(context.Context) (T, error), config *RetryConfig) (T, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var (
		result T
		err    error
		wait   = config.InitialWait
	)

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}

		if !IsRetryableError(err) {
			return result, err
		}

		if attempt == config.MaxRetries {
			return result, fmt.Errorf("max retries exceeded: %w", err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
		wait = config.next(wait)
	}

	return result, err
}
