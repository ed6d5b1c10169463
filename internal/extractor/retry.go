package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds how often a failed fetch is retried.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig matches the http.* configuration defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

type (
	operation   func() error
	shouldRetry func(error) bool
	onRetry     func(err error, wait time.Duration)
)

// retry runs op with exponential backoff until it succeeds, returns an error
// shouldRetry rejects, exhausts cfg.MaxRetries, or ctx ends. The last
// operation error is returned unwrapped.
func retry(ctx context.Context, cfg RetryConfig, op operation, retryable shouldRetry, notify onRetry) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx)

	var lastErr error
	err := backoff.RetryNotify(func() error {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, wait)
		}
	})
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && lastErr == nil {
		return fmt.Errorf("retry aborted: %w", ctxErr)
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}
