package query

import (
	"context"
	"sync"

	"github.com/agentuity/go-query/cache"
	"github.com/agentuity/go-query/lifecycle"
	"github.com/agentuity/go-query/logger"
	"github.com/agentuity/go-query/resilience"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/trace"
)

// ErrTypeMismatch is returned by Use when the key is already served by a
// runner of another value type.
var ErrTypeMismatch = errors.New("query: key is in use with a different type")

// Client shares one store, one set of signals and one default Config between
// the runners it creates. Runners are reference counted per key: the first
// Use creates and mounts the runner, the last release disposes it.
type Client struct {
	store     *cache.Store
	ownsStore bool
	config    Config
	lifecycle lifecycle.Signal
	focus     lifecycle.FocusSignal
	logger    logger.Logger
	tracer    trace.Tracer
	breaker   *resilience.CircuitBreaker

	mu      sync.Mutex
	queries map[string]*registration
}

type registration struct {
	runner  any
	refs    int
	dispose func()
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithConfig sets the Config runners start from.
func WithConfig(cfg Config) ClientOption {
	return func(c *Client) { c.config = cfg }
}

// WithLifecycle sets the application signal handed to every runner.
func WithLifecycle(sig lifecycle.Signal) ClientOption {
	return func(c *Client) { c.lifecycle = sig }
}

// WithFocus sets the window focus signal handed to every runner.
func WithFocus(sig lifecycle.FocusSignal) ClientOption {
	return func(c *Client) { c.focus = sig }
}

// WithLogger sets the logger handed to every runner.
func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithTracer sets the tracer handed to every runner and mutation.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *Client) { c.tracer = t }
}

// WithCircuitBreaker guards every fetch of every runner with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *Client) { c.breaker = cb }
}

// NewClient returns a client over store. The store stays owned by the
// caller.
func NewClient(store *cache.Store, opts ...ClientOption) *Client {
	c := &Client{
		store:   store,
		config:  DefaultConfig(),
		focus:   lifecycle.Unsupported(),
		queries: make(map[string]*registration),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrDefault(c.logger)
	return c
}

// NewDefaultClient returns a client over a new store with default options.
// Close also closes that store.
func NewDefaultClient(opts ...ClientOption) *Client {
	c := NewClient(cache.NewStore(), opts...)
	c.ownsStore = true
	return c
}

// Store returns the shared store.
func (c *Client) Store() *cache.Store { return c.store }

// Config returns the Config runners start from.
func (c *Client) Config() Config { return c.config }

// ClientOptions returns runner options prefilled with the client defaults
// and collaborators.
func ClientOptions[T any](c *Client) Options[T] {
	return fillOptions(c, Options[T]{})
}

// Use returns the runner serving key, creating and mounting it on first use.
// configure adjusts the options of a newly created runner and is ignored when
// the runner already exists. Call release once the caller is done; the last
// release disposes the runner.
func Use[T any](ctx context.Context, c *Client, key string, fetch FetchFunc[T], configure ...func(*Options[T])) (*Runner[T], func(), error) {
	c.mu.Lock()
	if reg, ok := c.queries[key]; ok {
		r, ok := reg.runner.(*Runner[T])
		if !ok {
			c.mu.Unlock()
			return nil, nil, errors.Wrapf(ErrTypeMismatch, "key %q", key)
		}
		reg.refs++
		c.mu.Unlock()
		return r, c.releaser(key, reg), nil
	}

	opts := ClientOptions[T](c)
	for _, fn := range configure {
		fn(&opts)
	}
	r := NewRunner(c.store, key, fetch, opts)
	reg := &registration{runner: r, refs: 1, dispose: r.Dispose}
	c.queries[key] = reg
	c.mu.Unlock()

	r.Mount(ctx)
	return r, c.releaser(key, reg), nil
}

// UseInfinite is Use for infinite runners. A zero Config in opts is replaced
// by the client Config, and unset collaborators by the client ones.
func UseInfinite[TPage, TParam any](ctx context.Context, c *Client, key string, fetch PageFetchFunc[TPage, TParam], opts InfiniteOptions[TPage, TParam]) (*InfiniteRunner[TPage, TParam], func(), error) {
	c.mu.Lock()
	if reg, ok := c.queries[key]; ok {
		r, ok := reg.runner.(*InfiniteRunner[TPage, TParam])
		if !ok {
			c.mu.Unlock()
			return nil, nil, errors.Wrapf(ErrTypeMismatch, "key %q", key)
		}
		reg.refs++
		c.mu.Unlock()
		return r, c.releaser(key, reg), nil
	}

	opts.Options = fillOptions(c, opts.Options)
	r := NewInfiniteRunner(c.store, key, fetch, opts)
	reg := &registration{runner: r, refs: 1, dispose: r.Dispose}
	c.queries[key] = reg
	c.mu.Unlock()

	r.Mount(ctx)
	return r, c.releaser(key, reg), nil
}

func (c *Client) releaser(key string, reg *registration) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			reg.refs--
			last := reg.refs == 0 && c.queries[key] == reg
			if last {
				delete(c.queries, key)
			}
			c.mu.Unlock()
			if last {
				reg.dispose()
			}
		})
	}
}

// NewClientMutation returns a mutation sharing the client logger and tracer
// when opts leaves them unset.
func NewClientMutation[TData, TVars any](c *Client, fn MutationFunc[TData, TVars], opts MutationOptions[TData, TVars]) *Mutation[TData, TVars] {
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	if opts.Tracer == nil {
		opts.Tracer = c.tracer
	}
	return NewMutation(fn, opts)
}

func fillOptions[T any](c *Client, o Options[T]) Options[T] {
	if o.Config == (Config{}) {
		o.Config = c.config
	}
	if o.Lifecycle == nil {
		o.Lifecycle = c.lifecycle
	}
	if o.Focus == nil {
		o.Focus = c.focus
	}
	if o.Logger == nil {
		o.Logger = c.logger
	}
	if o.Tracer == nil {
		o.Tracer = c.tracer
	}
	if o.CircuitBreaker == nil {
		o.CircuitBreaker = c.breaker
	}
	return o
}

// ActiveQueries returns the number of keys with a live runner.
func (c *Client) ActiveQueries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

// GetQueryData returns the cached value of key when it is live and of type T.
func GetQueryData[T any](c *Client, key string) (T, bool) {
	return cache.GetData[T](c.store, key)
}

// SetQueryData writes v under key with the client StaleTime and CacheTime.
// Runners on key adopt it.
func SetQueryData[T any](c *Client, key string, v T) {
	cache.SetData(c.store, key, v, c.config.StaleTime, c.config.CacheTime)
}

// InvalidateOptions tunes InvalidateQueries.
type InvalidateOptions struct {
	// MarkAsStale keeps the data and marks it stale instead of removing it.
	// Active runners refetch in the background while still showing it.
	MarkAsStale bool
}

// InvalidateQueries removes, or marks stale, every entry whose key contains
// pattern. It returns the number of entries affected.
func (c *Client) InvalidateQueries(pattern string, opts InvalidateOptions) int {
	var n int
	if opts.MarkAsStale {
		n = c.store.MarkStaleByPattern(pattern)
	} else {
		n = c.store.RemoveByPattern(pattern)
	}
	c.logger.Debug("invalidated %d queries matching %q", n, pattern)
	return n
}

// RemoveQueries removes every entry whose key contains pattern.
func (c *Client) RemoveQueries(pattern string) int {
	return c.store.RemoveByPattern(pattern)
}

// InvalidateAll removes every entry.
func (c *Client) InvalidateAll() {
	c.store.Clear()
}

// Stats returns the store counters.
func (c *Client) Stats() cache.Stats {
	return c.store.Stats()
}

// Close disposes every runner and, for clients built by NewDefaultClient,
// closes the store.
func (c *Client) Close() error {
	c.mu.Lock()
	regs := make([]*registration, 0, len(c.queries))
	for key, reg := range c.queries {
		regs = append(regs, reg)
		delete(c.queries, key)
	}
	c.mu.Unlock()
	for _, reg := range regs {
		reg.dispose()
	}
	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}
