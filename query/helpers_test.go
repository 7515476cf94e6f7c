package query

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-query/cache"
	"github.com/agentuity/go-query/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*cache.Store, *fakeClock) {
	clock := newFakeClock()
	s := cache.NewStore(cache.WithClock(clock.Now), cache.WithLogger(logger.NewTestLogger()))
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func testOptions[T any]() Options[T] {
	opts := DefaultOptions[T]()
	opts.RetryDelay = time.Millisecond
	opts.MaxRetryDelay = 10 * time.Millisecond
	opts.Logger = logger.NewTestLogger()
	return opts
}

// scripted returns a fetch function that fails the first failures calls and
// then returns the call number.
func scripted(failures int, calls *atomic.Int32) FetchFunc[int] {
	return func(context.Context) (int, error) {
		n := int(calls.Add(1))
		if n <= failures {
			return 0, errFetch
		}
		return n, nil
	}
}

type recorder[T any] struct {
	mu     sync.Mutex
	states []State[T]
}

func record[T any](r *Runner[T]) *recorder[T] {
	rec := &recorder[T]{}
	r.Subscribe(func(s State[T]) {
		rec.mu.Lock()
		rec.states = append(rec.states, s)
		rec.mu.Unlock()
	})
	return rec
}

func (r *recorder[T]) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.states))
	for i, s := range r.states {
		out[i] = s.Status()
	}
	return out
}

func (r *recorder[T]) all() []State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State[T](nil), r.states...)
}
