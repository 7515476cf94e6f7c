package resilience

import (
	"context"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrRetriesExhausted marks the error returned once every attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrRetryAborted marks the error returned when ShouldContinue stopped the loop.
	ErrRetryAborted = errors.New("retry aborted")
)

// RetryConfig defines configuration for retry logic
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. 0 disables retrying.
	MaxRetries int

	// InitialBackoff is the wait before the first retry
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts. Zero means no cap.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait after every retry. Values <= 1 keep a fixed delay.
	BackoffMultiplier float64

	// Jitter adds up to 10% randomness to every wait
	Jitter bool

	// RetryableErrors decides whether an error is worth another attempt. Nil retries everything.
	RetryableErrors func(error) bool

	// OnRetry is called after a failed attempt, before waiting for the next one.
	OnRetry func(attempt int, err error, wait time.Duration)

	// ShouldContinue is consulted before every retry; returning false stops the loop.
	ShouldContinue func() bool
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 1,
		RetryableErrors:   DefaultRetryableErrors,
	}
}

// DefaultRetryableErrors determines if an error is retryable by default
func DefaultRetryableErrors(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitBreakerOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) {
		return false
	}
	return true
}

// RetryableFunc is one attempt. attempt starts at 0.
type RetryableFunc func(ctx context.Context, attempt int) error

// Retry runs fn until it succeeds, the retry budget is spent, the error is
// not retryable, ShouldContinue says stop, or ctx is done.
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return errors.Wrap(err, "non-retryable error")
		}
		if attempt == config.MaxRetries {
			break
		}
		if config.ShouldContinue != nil && !config.ShouldContinue() {
			return errors.Mark(errors.Wrap(err, "retry aborted"), ErrRetryAborted)
		}

		backoff := CalculateBackoff(attempt, config)
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), "retry cancelled")
		case <-timer.C:
		}
		if config.ShouldContinue != nil && !config.ShouldContinue() {
			return errors.Mark(errors.Wrap(err, "retry aborted"), ErrRetryAborted)
		}
	}

	return errors.Mark(errors.Wrapf(lastErr, "max retries exceeded (%d)", config.MaxRetries), ErrRetriesExhausted)
}

// CalculateBackoff returns the wait before retry number attempt+1.
func CalculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff)
	if config.BackoffMultiplier > 1 {
		backoff *= math.Pow(config.BackoffMultiplier, float64(attempt))
	}
	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}
	if config.Jitter {
		backoff += rand.Float64() * 0.1 * backoff
	}
	return time.Duration(backoff)
}
