package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentuity/go-query/cache"
	"github.com/agentuity/go-query/logger"
	"github.com/agentuity/go-query/resilience"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Runner keeps the resource stored under one key fresh and publishes its
// state. Create it with NewRunner, activate it with Mount and release it
// with Dispose. The cached entry outlives the runner.
type Runner[T any] struct {
	id     string
	store  *cache.Store
	key    string
	fetch  FetchFunc[T]
	opts   Options[T]
	logger logger.Logger
	tracer trace.Tracer
	flight singleflight.Group

	// lifeMu serializes Mount and Dispose.
	lifeMu sync.Mutex

	mu         sync.Mutex
	state      State[T]
	subs       subscribers[State[T]]
	active     bool
	disposed   bool
	fetching   int
	retryCount int
	bgCtx      context.Context
	stop       chan struct{}
	listenerID cache.ListenerID
	unwatch    []func()
}

// NewRunner returns an idle runner for key. Nothing is fetched until Mount
// or Refetch, but the runner follows store changes to key right away, so a
// removal never leaves it showing deleted data. Call Dispose to detach it.
func NewRunner[T any](store *cache.Store, key string, fetch FetchFunc[T], opts Options[T]) *Runner[T] {
	r := &Runner[T]{
		id:     uuid.NewString(),
		store:  store,
		key:    key,
		fetch:  fetch,
		opts:   opts,
		logger: logger.WithKV(logger.OrDefault(opts.Logger).WithPrefix("[query]"), "key", key),
		tracer: opts.Tracer,
		state:  Idle[T]{},
		bgCtx:  context.Background(),
	}
	if r.tracer == nil {
		r.tracer = tracer
	}
	r.listenerID = store.AddListener(key, r.onEntry)
	return r
}

// Key returns the cache key owned by the runner.
func (r *Runner[T]) Key() string { return r.key }

// State returns the current state.
func (r *Runner[T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsFetching reports whether a fetch is in flight.
func (r *Runner[T]) IsFetching() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetching > 0
}

// RetryCount returns the number of retries spent by the current fetch
// cycle. It drops back to zero once the cycle settles.
func (r *Runner[T]) RetryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryCount
}

// IsActive reports whether the runner is mounted and not disposed.
func (r *Runner[T]) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active && !r.disposed
}

// Subscribe registers fn for every subsequent state transition and returns a
// function that unregisters it. fn runs outside the runner lock.
func (r *Runner[T]) Subscribe(fn func(State[T])) func() {
	r.mu.Lock()
	id := r.subs.add(fn)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.subs.remove(id)
		r.mu.Unlock()
	}
}

// Mount activates the runner: it starts listening to the lifecycle and
// focus signals, starts the refetch interval and performs the initial load. The initial load runs on the calling goroutine. Mounting twice or
// after Dispose does nothing.
//
// With RefetchOnMount, fresh cached data is adopted without fetching and
// anything else triggers a fetch. Without it, cached data is adopted however
// old it is and a fetch happens only when nothing is cached.
func (r *Runner[T]) Mount(ctx context.Context) {
	r.lifeMu.Lock()
	r.mu.Lock()
	if r.disposed || r.active {
		r.mu.Unlock()
		r.lifeMu.Unlock()
		return
	}
	r.active = true
	r.bgCtx = context.WithoutCancel(ctx)
	r.mu.Unlock()

	unwatch := r.watchSignals()
	var stop chan struct{}
	if r.opts.RefetchInterval > 0 {
		stop = make(chan struct{})
		go r.tick(stop)
	}

	r.mu.Lock()
	r.unwatch = unwatch
	r.stop = stop
	r.mu.Unlock()
	r.lifeMu.Unlock()

	if r.adoptCached(r.opts.RefetchOnMount) || !r.opts.Enabled {
		return
	}
	r.load(ctx, r.opts.KeepPreviousData)
}

// Dispose detaches the runner from the store and the signals and stops its
// interval. An in-flight fetch cycle is not cancelled: its attempts and
// retries run to completion and the outcome still reaches the store, but the
// runner no longer changes state or calls its callbacks.
func (r *Runner[T]) Dispose() {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	r.active = false
	stop, id, unwatch := r.stop, r.listenerID, r.unwatch
	r.stop, r.listenerID, r.unwatch = nil, "", nil
	r.subs.clear()
	r.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if id != "" {
		r.store.RemoveListener(r.key, id)
	}
	for _, fn := range unwatch {
		fn()
	}
}

// Refetch fetches now, ignoring staleness and Enabled, and returns the state
// the fetch settled in. Failures are reported through the state and OnError,
// never returned.
func (r *Runner[T]) Refetch(ctx context.Context) State[T] {
	r.load(ctx, r.opts.KeepPreviousData)
	return r.State()
}

// SetData replaces the value without fetching: the runner moves to Success
// and the store is updated.
func (r *Runner[T]) SetData(data T) {
	now := r.store.Now()
	r.mu.Lock()
	var pending transition[State[T]]
	if !r.disposed {
		r.retryCount = 0
		pending = r.setLocked(Success[T]{Data: data, FetchedAt: now})
	}
	r.mu.Unlock()
	pending.deliver(r.logger)
	r.store.Set(r.key, r.entry(data, now))
}

func (r *Runner[T]) entry(data T, at time.Time) cache.Entry {
	return cache.NewEntry(data, at, r.opts.StaleTime, r.opts.CacheTime).WithSource(r.id)
}

// setLocked records s and snapshots the subscribers. Callers must hold r.mu
// and deliver the transition after releasing it.
func (r *Runner[T]) setLocked(s State[T]) transition[State[T]] {
	r.state = s
	return transition[State[T]]{state: s, fns: r.subs.snapshot()}
}

// canAutoFetch reports whether background triggers may fetch.
func (r *Runner[T]) canAutoFetch() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active && !r.disposed && r.opts.Enabled
}

// background runs fn on its own goroutine with a context that outlives the
// one given to Mount.
func (r *Runner[T]) background(fn func(ctx context.Context)) {
	r.mu.Lock()
	ctx := r.bgCtx
	r.mu.Unlock()
	go fn(ctx)
}

// adopt moves to Success with data read from the store.
func (r *Runner[T]) adopt(data T, fetchedAt time.Time) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	pending := r.setLocked(Success[T]{Data: data, FetchedAt: fetchedAt})
	r.mu.Unlock()
	pending.deliver(r.logger)
}

// adoptCached adopts the cached value when there is one, and when freshOnly
// is set, only if it is not stale. It reports whether a value was adopted.
func (r *Runner[T]) adoptCached(freshOnly bool) bool {
	entry, ok := r.store.Get(r.key)
	if !ok || !entry.HasData() {
		return false
	}
	if freshOnly && entry.IsStaleAt(r.store.Now()) {
		return false
	}
	data, ok := entry.Data().(T)
	if !ok {
		r.logger.Warn("cached value has type %T, ignoring it", entry.Data())
		return false
	}
	r.adopt(data, entry.FetchedAt())
	return true
}

// refreshIfStale is the reaction to app and window focus: fetch only when
// the cached value is stale or missing.
func (r *Runner[T]) refreshIfStale(ctx context.Context) {
	if !r.canAutoFetch() || r.adoptCached(true) || r.IsFetching() {
		return
	}
	r.load(ctx, r.opts.KeepPreviousData)
}

// onEntry reacts to store notifications for the runner key.
func (r *Runner[T]) onEntry(e *cache.Entry) {
	switch {
	case e == nil:
		r.onRemoved()
	case e.Invalidated():
		if r.canAutoFetch() && !r.IsFetching() {
			r.background(func(ctx context.Context) { r.load(ctx, true) })
		}
	case e.HasData() && e.Source() != r.id:
		data, ok := e.Data().(T)
		if !ok {
			r.logger.Warn("cached value has type %T, ignoring it", e.Data())
			return
		}
		r.adopt(data, e.FetchedAt())
	}
}

// onRemoved never leaves a Success pointing at deleted data: the runner goes
// back to Idle, then either calls OnCacheEvicted or refetches when active.
// A removal during a fetch is ignored since the fetch repopulates the key.
func (r *Runner[T]) onRemoved() {
	r.mu.Lock()
	if r.disposed || r.fetching > 0 {
		r.mu.Unlock()
		return
	}
	refetch := r.active && r.opts.Enabled
	var pending transition[State[T]]
	if _, idle := r.state.(Idle[T]); !idle {
		pending = r.setLocked(Idle[T]{})
	}
	r.mu.Unlock()
	pending.deliver(r.logger)

	switch {
	case r.opts.OnCacheEvicted != nil:
		r.opts.OnCacheEvicted()
	case refetch:
		r.logger.Debug("cached entry removed, refetching")
		r.background(func(ctx context.Context) { r.load(ctx, false) })
	}
}

func (r *Runner[T]) watchSignals() []func() {
	var unwatch []func()
	if sig := r.opts.Lifecycle; sig != nil && r.opts.RefetchOnAppFocus {
		id := sig.OnForeground(func() { r.background(r.refreshIfStale) })
		unwatch = append(unwatch, func() { sig.RemoveForeground(id) })
	}
	if focus := r.opts.Focus; focus != nil && r.opts.RefetchOnWindowFocus && focus.IsSupported() {
		id := focus.OnFocus(func() { r.background(r.refreshIfStale) })
		unwatch = append(unwatch, func() { focus.RemoveFocus(id) })
	}
	return unwatch
}

func (r *Runner[T]) tick(stop <-chan struct{}) {
	ticker := time.NewTicker(r.opts.RefetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !r.canAutoFetch() || r.paused() {
				continue
			}
			r.mu.Lock()
			ctx := r.bgCtx
			r.mu.Unlock()
			r.load(ctx, r.opts.KeepPreviousData)
		}
	}
}

func (r *Runner[T]) paused() bool {
	return r.opts.PauseRefetchInBackground && r.opts.Lifecycle != nil && r.opts.Lifecycle.IsBackground()
}

// load runs one fetch cycle, coalesced with a concurrent one when
// SingleFlight is on.
func (r *Runner[T]) load(ctx context.Context, keepPrevious bool) {
	if !r.opts.SingleFlight {
		r.execute(ctx, r.fetch, keepPrevious, false)
		return
	}
	r.flight.Do(r.key, func() (any, error) {
		r.execute(ctx, r.fetch, keepPrevious, false)
		return nil, nil
	})
}

// previous returns the value a Refetching state would keep visible.
func (r *Runner[T]) previous() (T, time.Time, bool) {
	r.mu.Lock()
	s := r.state
	r.mu.Unlock()
	switch v := s.(type) {
	case Success[T]:
		return v.Data, v.FetchedAt, true
	case Refetching[T]:
		return v.PreviousData, v.FetchedAt, true
	}
	var zero T
	entry, ok := r.store.Peek(r.key)
	if !ok || !entry.HasData() {
		return zero, time.Time{}, false
	}
	data, ok := entry.Data().(T)
	return data, entry.FetchedAt(), ok
}

// execute runs fetch with retries and applies the outcome. When exclusive is
// set it does nothing if another fetch is in flight. It reports whether the
// fetch ran.
func (r *Runner[T]) execute(ctx context.Context, fetch FetchFunc[T], keepPrevious, exclusive bool) bool {
	prev, prevAt, hasPrev := r.previous()

	r.mu.Lock()
	if r.disposed || (exclusive && r.fetching > 0) {
		r.mu.Unlock()
		return false
	}
	r.fetching++
	var next State[T] = Loading[T]{}
	if keepPrevious && hasPrev {
		next = Refetching[T]{PreviousData: prev, FetchedAt: prevAt}
	}
	pending := r.setLocked(next)
	r.mu.Unlock()
	pending.deliver(r.logger)

	defer func() {
		r.mu.Lock()
		r.fetching--
		r.mu.Unlock()
	}()

	data, err := r.fetchWithRetry(ctx, fetch)
	if err != nil {
		r.fail(err)
		return true
	}
	r.succeed(data)
	return true
}

func (r *Runner[T]) fetchWithRetry(ctx context.Context, fetch FetchFunc[T]) (T, error) {
	var data T
	var lastErr error
	config := r.opts.retryConfig()
	config.OnRetry = func(attempt int, err error, wait time.Duration) {
		r.mu.Lock()
		disposed := r.disposed
		if !disposed {
			r.retryCount = attempt
		}
		r.mu.Unlock()
		if !disposed {
			r.logger.Debug("fetch failed, retry %d/%d in %s: %v", attempt, config.MaxRetries, wait, err)
		}
	}

	err := resilience.Retry(ctx, config, func(ctx context.Context, attempt int) error {
		v, err := r.attempt(ctx, fetch, attempt)
		if err != nil {
			lastErr = err
			return err
		}
		data = v
		return nil
	})
	switch {
	case err == nil:
		return data, nil
	case ctx.Err() != nil:
		return data, err
	case lastErr != nil:
		return data, lastErr
	}
	return data, err
}

// attempt is a single traced call of fetch, guarded by the circuit breaker
// when one is configured.
func (r *Runner[T]) attempt(ctx context.Context, fetch FetchFunc[T], attempt int) (T, error) {
	ctx, span := r.tracer.Start(ctx, "query.fetch", trace.WithAttributes(
		attribute.String("query.key", r.key),
		attribute.Int("query.attempt", attempt),
	))
	defer span.End()

	var data T
	call := func(ctx context.Context) error {
		v, err := fetch(ctx)
		if err != nil {
			return err
		}
		data = v
		return nil
	}
	var err error
	if r.opts.CircuitBreaker != nil {
		err = r.opts.CircuitBreaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return data, err
	}
	span.SetStatus(codes.Ok, "fetched")
	return data, nil
}

func (r *Runner[T]) succeed(data T) {
	now := r.store.Now()
	r.mu.Lock()
	disposed := r.disposed
	var pending transition[State[T]]
	if !disposed {
		r.retryCount = 0
		pending = r.setLocked(Success[T]{Data: data, FetchedAt: now})
	}
	r.mu.Unlock()
	pending.deliver(r.logger)

	r.store.Set(r.key, r.entry(data, now))
	if !disposed && r.opts.OnSuccess != nil {
		r.opts.OnSuccess(data)
	}
}

// fail records err. The store only receives an error entry when it holds no
// data for the key, so other runners keep their last good value.
func (r *Runner[T]) fail(err error) {
	if entry, ok := r.store.Peek(r.key); !ok || !entry.HasData() {
		r.store.Set(r.key, cache.NewErrorEntry(err, r.store.Now(), r.opts.StaleTime, r.opts.CacheTime).WithSource(r.id))
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.retryCount = 0
	pending := r.setLocked(Error[T]{Err: err, Stack: fmt.Sprintf("%+v", errors.WithStack(err))})
	r.mu.Unlock()
	pending.deliver(r.logger)

	r.logger.Warn("fetch failed: %v", err)
	if r.opts.OnError != nil {
		r.opts.OnError(err)
	}
}
