package query

import (
	"io"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by ConfigFromEnv.
const EnvPrefix = "GOQUERY_"

// Config is the part of the runner options that can be loaded from a file
// or the environment.
type Config struct {
	// StaleTime is how long fetched data counts as fresh.
	StaleTime time.Duration `yaml:"stale_time" env:"STALE_TIME" json:"stale_time"`
	// CacheTime is how long an entry stays in the store after it was fetched.
	// It is expected to be at least StaleTime.
	CacheTime time.Duration `yaml:"cache_time" env:"CACHE_TIME" json:"cache_time"`

	RefetchOnMount           bool `yaml:"refetch_on_mount" env:"REFETCH_ON_MOUNT" json:"refetch_on_mount"`
	RefetchOnWindowFocus     bool `yaml:"refetch_on_window_focus" env:"REFETCH_ON_WINDOW_FOCUS" json:"refetch_on_window_focus"`
	RefetchOnAppFocus        bool `yaml:"refetch_on_app_focus" env:"REFETCH_ON_APP_FOCUS" json:"refetch_on_app_focus"`
	PauseRefetchInBackground bool `yaml:"pause_refetch_in_background" env:"PAUSE_REFETCH_IN_BACKGROUND" json:"pause_refetch_in_background"`

	// RefetchInterval polls the resource when positive.
	RefetchInterval time.Duration `yaml:"refetch_interval" env:"REFETCH_INTERVAL" json:"refetch_interval"`

	// Retry is the number of retries after the first failed attempt.
	Retry         int           `yaml:"retry" env:"RETRY" json:"retry"`
	RetryDelay    time.Duration `yaml:"retry_delay" env:"RETRY_DELAY" json:"retry_delay"`
	RetryBackoff  float64       `yaml:"retry_backoff" env:"RETRY_BACKOFF" json:"retry_backoff"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" env:"MAX_RETRY_DELAY" json:"max_retry_delay"`

	// Enabled gates every automatic fetch. Manual Refetch still runs.
	Enabled          bool `yaml:"enabled" env:"ENABLED" json:"enabled"`
	KeepPreviousData bool `yaml:"keep_previous_data" env:"KEEP_PREVIOUS_DATA" json:"keep_previous_data"`
	// SingleFlight coalesces overlapping fetches of one runner. Off by
	// default: overlapping fetches race and the last write wins.
	SingleFlight bool `yaml:"single_flight" env:"SINGLE_FLIGHT" json:"single_flight"`
}

// DefaultConfig returns the default runner configuration
func DefaultConfig() Config {
	return Config{
		StaleTime:      5 * time.Minute,
		CacheTime:      30 * time.Minute,
		RefetchOnMount: true,
		Retry:          3,
		RetryDelay:     time.Second,
		RetryBackoff:   1,
		MaxRetryDelay:  30 * time.Second,
		Enabled:        true,
	}
}

// fileConfig mirrors Config with optional fields so a file only overrides
// what it names. Durations are strings so day and week units work.
type fileConfig struct {
	StaleTime                *string  `yaml:"stale_time"`
	CacheTime                *string  `yaml:"cache_time"`
	RefetchOnMount           *bool    `yaml:"refetch_on_mount"`
	RefetchOnWindowFocus     *bool    `yaml:"refetch_on_window_focus"`
	RefetchOnAppFocus        *bool    `yaml:"refetch_on_app_focus"`
	PauseRefetchInBackground *bool    `yaml:"pause_refetch_in_background"`
	RefetchInterval          *string  `yaml:"refetch_interval"`
	Retry                    *int     `yaml:"retry"`
	RetryDelay               *string  `yaml:"retry_delay"`
	RetryBackoff             *float64 `yaml:"retry_backoff"`
	MaxRetryDelay            *string  `yaml:"max_retry_delay"`
	Enabled                  *bool    `yaml:"enabled"`
	KeepPreviousData         *bool    `yaml:"keep_previous_data"`
	SingleFlight             *bool    `yaml:"single_flight"`
}

func (f fileConfig) apply(cfg Config) (Config, error) {
	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"stale_time", f.StaleTime, &cfg.StaleTime},
		{"cache_time", f.CacheTime, &cfg.CacheTime},
		{"refetch_interval", f.RefetchInterval, &cfg.RefetchInterval},
		{"retry_delay", f.RetryDelay, &cfg.RetryDelay},
		{"max_retry_delay", f.MaxRetryDelay, &cfg.MaxRetryDelay},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := str2duration.ParseDuration(*d.src)
		if err != nil {
			return cfg, errors.Wrapf(err, "query: invalid %s %q", d.name, *d.src)
		}
		*d.dst = v
	}
	flags := []struct {
		src *bool
		dst *bool
	}{
		{f.RefetchOnMount, &cfg.RefetchOnMount},
		{f.RefetchOnWindowFocus, &cfg.RefetchOnWindowFocus},
		{f.RefetchOnAppFocus, &cfg.RefetchOnAppFocus},
		{f.PauseRefetchInBackground, &cfg.PauseRefetchInBackground},
		{f.Enabled, &cfg.Enabled},
		{f.KeepPreviousData, &cfg.KeepPreviousData},
		{f.SingleFlight, &cfg.SingleFlight},
	}
	for _, b := range flags {
		if b.src != nil {
			*b.dst = *b.src
		}
	}
	if f.Retry != nil {
		cfg.Retry = *f.Retry
	}
	if f.RetryBackoff != nil {
		cfg.RetryBackoff = *f.RetryBackoff
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a YAML document on top of DefaultConfig. Durations accept
// Go syntax plus day and week units ("1d12h", "2w").
func LoadConfig(r io.Reader) (Config, error) {
	var f fileConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "query: decode config")
	}
	return f.apply(DefaultConfig())
}

// ConfigFromEnv overlays GOQUERY_* environment variables on base. Variables
// that are not set leave the base value untouched.
func ConfigFromEnv(base Config) (Config, error) {
	cfg := base
	err := env.ParseWithOptions(&cfg, env.Options{
		Prefix: EnvPrefix,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): func(v string) (interface{}, error) {
				return str2duration.ParseDuration(v)
			},
		},
	})
	if err != nil {
		return base, errors.Wrap(err, "query: parse env")
	}
	return cfg, cfg.Validate()
}

// Validate rejects negative durations and retry counts.
func (c Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"stale_time":       c.StaleTime,
		"cache_time":       c.CacheTime,
		"refetch_interval": c.RefetchInterval,
		"retry_delay":      c.RetryDelay,
		"max_retry_delay":  c.MaxRetryDelay,
	} {
		if d < 0 {
			return errors.Newf("query: %s must not be negative, got %s", name, d)
		}
	}
	if c.Retry < 0 {
		return errors.Newf("query: retry must not be negative, got %d", c.Retry)
	}
	return nil
}
