package query

import (
	"context"

	"github.com/agentuity/go-query/lifecycle"
	"github.com/agentuity/go-query/logger"
	"github.com/agentuity/go-query/resilience"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("@agentuity/go-query/query")

// FetchFunc loads the current value of a resource.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Options configures a Runner. Start from DefaultOptions: the zero value
// disables the runner and refetch on mount.
type Options[T any] struct {
	Config

	// OnSuccess is called after every successful fetch.
	OnSuccess func(data T)
	// OnError is called once per fetch cycle, after the retries ran out.
	OnError func(err error)
	// OnCacheEvicted replaces the default reaction to the removal of the
	// cached entry, which is a background refetch while active.
	OnCacheEvicted func()

	Lifecycle      lifecycle.Signal
	Focus          lifecycle.FocusSignal
	Logger         logger.Logger
	Tracer         trace.Tracer
	CircuitBreaker *resilience.CircuitBreaker
}

// DefaultOptions returns options holding DefaultConfig and no callbacks.
func DefaultOptions[T any]() Options[T] {
	return Options[T]{Config: DefaultConfig()}
}

func (o Options[T]) retryConfig() resilience.RetryConfig {
	retries := o.Retry
	if retries < 0 {
		retries = 0
	}
	return resilience.RetryConfig{
		MaxRetries:        retries,
		InitialBackoff:    o.RetryDelay,
		MaxBackoff:        o.MaxRetryDelay,
		BackoffMultiplier: o.RetryBackoff,
		RetryableErrors:   retryableFetchError,
	}
}

// retryableFetchError retries every fetch failure, EOF and deadline errors
// returned by the fetch function included, except an open circuit breaker.
// Cancellation of the runner context is caught by Retry between attempts.
func retryableFetchError(err error) bool {
	return err != nil && !errors.Is(err, resilience.ErrCircuitBreakerOpen)
}
