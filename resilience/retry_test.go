package resilience

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) RetryConfig {
	return RetryConfig{
		MaxRetries:        retries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryableErrors:   DefaultRetryableErrors,
	}
}

func TestRetry_Success(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		assert.Equal(t, attempts, attempt)
		attempts++
		if attempts < 2 {
			return errors.New("temporary error")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	boom := errors.New("persistent error")
	attempts := 0
	var retried []int
	config := fastConfig(2)
	config.OnRetry = func(attempt int, err error, wait time.Duration) {
		retried = append(retried, attempt)
		assert.ErrorIs(t, err, boom)
	}

	err := Retry(context.Background(), config, func(context.Context, int) error {
		attempts++
		return boom
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial attempt + 2 retries
	assert.Equal(t, []int{1, 2}, retried)
	assert.ErrorIs(t, err, boom)
	assert.True(t, cerrors.Is(err, ErrRetriesExhausted))
}

func TestRetry_ZeroRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(0), func(context.Context, int) error {
		attempts++
		return errors.New("nope")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_NonRetryableError(t *testing.T) {
	config := fastConfig(3)
	config.RetryableErrors = func(err error) bool { return err.Error() != "non-retryable" }

	attempts := 0
	err := Retry(context.Background(), config, func(context.Context, int) error {
		attempts++
		return errors.New("non-retryable")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ShouldContinue(t *testing.T) {
	config := fastConfig(5)
	stop := false
	config.ShouldContinue = func() bool { return !stop }

	attempts := 0
	err := Retry(context.Background(), config, func(context.Context, int) error {
		attempts++
		stop = attempts == 2
		return errors.New("flaky")
	})
	assert.True(t, cerrors.Is(err, ErrRetryAborted))
	assert.Equal(t, 2, attempts)
}

func TestRetry_ContextCancellation(t *testing.T) {
	config := fastConfig(5)
	config.InitialBackoff = 100 * time.Millisecond
	config.MaxBackoff = 0

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := Retry(ctx, config, func(context.Context, int) error {
		attempts++
		return errors.New("temporary error")
	})
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
}

func TestCalculateBackoff(t *testing.T) {
	fixed := RetryConfig{InitialBackoff: 100 * time.Millisecond, BackoffMultiplier: 1}
	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, fixed))
	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(4, fixed))

	exp := RetryConfig{InitialBackoff: 100 * time.Millisecond, BackoffMultiplier: 2, MaxBackoff: time.Second}
	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, exp))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, exp))
	assert.Equal(t, time.Second, CalculateBackoff(10, exp))

	exp.Jitter = true
	d := CalculateBackoff(0, exp)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.LessOrEqual(t, d, 110*time.Millisecond)
}

func TestDefaultRetryableErrors(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{errors.New("network error"), true},
		{ErrCircuitBreakerOpen, false},
		{cerrors.Wrap(ErrCircuitBreakerOpen, "fetch"), false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{io.EOF, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.retryable, DefaultRetryableErrors(tt.err), "%v", tt.err)
	}
}
