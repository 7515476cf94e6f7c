package cache

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg, "goquery")
	require.NoError(t, err)

	s, clock := newTestStore(t, WithMetrics(m), WithMaxSize(1))
	require.NoError(t, reg.Register(SizeGauge(s, "goquery")))

	s.Get("missing")
	s.Set("a", NewEntry(1, clock.Now(), time.Second, time.Minute))
	s.Get("a")
	s.Set("b", NewEntry(2, clock.Now(), time.Second, time.Second))
	clock.Advance(2 * time.Second)
	s.Get("b")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.hits))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.misses))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.evictions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.expirations))

	_, err = NewPrometheusMetrics(reg, "goquery")
	assert.Error(t, err)
}
