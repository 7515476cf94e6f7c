package query

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Minute, cfg.StaleTime)
	assert.Equal(t, 30*time.Minute, cfg.CacheTime)
	assert.True(t, cfg.RefetchOnMount)
	assert.False(t, cfg.RefetchOnWindowFocus)
	assert.False(t, cfg.RefetchOnAppFocus)
	assert.Zero(t, cfg.RefetchInterval)
	assert.Equal(t, 3, cfg.Retry)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.True(t, cfg.Enabled)
	assert.False(t, cfg.KeepPreviousData)
	assert.False(t, cfg.SingleFlight)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(`
stale_time: 1d
cache_time: 2w
refetch_interval: 30s
retry: 5
retry_backoff: 2
keep_previous_data: true
refetch_on_mount: false
`))
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.StaleTime)
	assert.Equal(t, 14*24*time.Hour, cfg.CacheTime)
	assert.Equal(t, 30*time.Second, cfg.RefetchInterval)
	assert.Equal(t, 5, cfg.Retry)
	assert.Equal(t, 2.0, cfg.RetryBackoff)
	assert.True(t, cfg.KeepPreviousData)
	assert.False(t, cfg.RefetchOnMount)
	// untouched fields keep their defaults
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.True(t, cfg.Enabled)
}

func TestLoadConfigEmpty(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("stale_time: soon\n"))
	assert.ErrorContains(t, err, "stale_time")

	_, err = LoadConfig(strings.NewReader("stale_tme: 1m\n"))
	assert.Error(t, err)

	_, err = LoadConfig(strings.NewReader("retry: -1\n"))
	assert.ErrorContains(t, err, "retry")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GOQUERY_STALE_TIME", "1d")
	t.Setenv("GOQUERY_RETRY", "7")
	t.Setenv("GOQUERY_REFETCH_ON_APP_FOCUS", "true")
	t.Setenv("GOQUERY_RETRY_DELAY", "250ms")

	base := DefaultConfig()
	base.CacheTime = time.Hour
	cfg, err := ConfigFromEnv(base)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.StaleTime)
	assert.Equal(t, 7, cfg.Retry)
	assert.True(t, cfg.RefetchOnAppFocus)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, time.Hour, cfg.CacheTime)
}

func TestConfigFromEnvInvalid(t *testing.T) {
	t.Setenv("GOQUERY_RETRY", "many")
	base := DefaultConfig()
	cfg, err := ConfigFromEnv(base)
	assert.Error(t, err)
	assert.Equal(t, base, cfg)
}
