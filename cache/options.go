package cache

import (
	"time"

	"github.com/agentuity/go-query/logger"
)

const (
	// DefaultMaxSize is the capacity used when WithMaxSize is not given.
	DefaultMaxSize = 100
	// DefaultCleanupFloor is the shortest delay between two passive sweeps.
	DefaultCleanupFloor = time.Second
	// DefaultCleanupCeiling is the longest delay between two passive sweeps.
	DefaultCleanupCeiling = 5 * time.Minute
	// DefaultCleanupInterval is used when the store is empty.
	DefaultCleanupInterval = time.Minute
)

// config holds the resolved configuration for a Store.
type config struct {
	maxSize         int
	cleanupFloor    time.Duration
	cleanupCeiling  time.Duration
	cleanupInterval time.Duration
	metrics         Metrics
	logger          logger.Logger
	now             func() time.Time
}

// Option configures a Store.
type Option func(*config)

func defaultConfig() config {
	return config{
		maxSize:         DefaultMaxSize,
		cleanupFloor:    DefaultCleanupFloor,
		cleanupCeiling:  DefaultCleanupCeiling,
		cleanupInterval: DefaultCleanupInterval,
		metrics:         NoopMetrics{},
		now:             time.Now,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cleanupCeiling < cfg.cleanupFloor {
		cfg.cleanupCeiling = cfg.cleanupFloor
	}
	if cfg.metrics == nil {
		cfg.metrics = NoopMetrics{}
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	cfg.logger = logger.OrDefault(cfg.logger).WithPrefix("[cache]")
	return cfg
}

// WithMaxSize sets the capacity. Values <= 0 disable capacity eviction.
func WithMaxSize(n int) Option {
	return func(c *config) { c.maxSize = n }
}

// WithCleanupBounds clamps the delay of the self-rescheduling sweep.
func WithCleanupBounds(floor, ceiling time.Duration) Option {
	return func(c *config) {
		c.cleanupFloor = floor
		c.cleanupCeiling = ceiling
	}
}

// WithCleanupInterval sets the sweep delay used while the store is empty.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *config) { c.cleanupInterval = d }
}

// WithMetrics reports hits, misses, evictions and expirations to m.
func WithMetrics(m Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithLogger sets the logger used for listener failures and sweeps.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}
