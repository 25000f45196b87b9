package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions contains configuration for retry behavior.
type RetryOptions struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// StartupRetryOptions builds retry options from the configured attempt count and delays.
func StartupRetryOptions(maxRetries uint64, delay, maxDelay time.Duration) RetryOptions {
	return RetryOptions{
		MaxElapsedTime:  0,
		InitialInterval: delay,
		MaxInterval:     maxDelay,
		MaxRetries:      maxRetries,
	}
}

// Permanent wraps err so that WithRetry returns it without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// WithRetry executes the given operation with exponential backoff using provided options.
func WithRetry[T any](ctx context.Context, operation func() (T, error), opts RetryOptions) (T, error) {
	var result T

	// Configure exponential backoff
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(opts.MaxElapsedTime),
		backoff.WithInitialInterval(opts.InitialInterval),
		backoff.WithMaxInterval(opts.MaxInterval),
	), opts.MaxRetries)

	err := backoff.Retry(func() error {
		var err error
		result, err = operation()
		return err
	}, backoff.WithContext(b, ctx))

	return result, err
}
