package cache

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics exports store events as prometheus counters.
type PrometheusMetrics struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	evictions   prometheus.Counter
	expirations prometheus.Counter
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the counters under namespace_cache_* and
// registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) (*PrometheusMetrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		})
	}
	m := &PrometheusMetrics{
		hits:        counter("hits_total", "Lookups that found a live entry."),
		misses:      counter("misses_total", "Lookups that found nothing usable."),
		evictions:   counter("evictions_total", "Entries dropped to stay within capacity."),
		expirations: counter("expirations_total", "Entries dropped after their cache time elapsed."),
	}
	for _, c := range []prometheus.Collector{m.hits, m.misses, m.evictions, m.expirations} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "cache: registering metrics")
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) Hit()      { m.hits.Inc() }
func (m *PrometheusMetrics) Miss()     { m.misses.Inc() }
func (m *PrometheusMetrics) Eviction() { m.evictions.Inc() }
func (m *PrometheusMetrics) Expire()   { m.expirations.Inc() }

// SizeGauge returns a collector reporting the live entry count of s.
func SizeGauge(s *Store, namespace string) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Entries currently held by the store.",
	}, func() float64 { return float64(s.Len()) })
}
