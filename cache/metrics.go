package cache

// Metrics receives store events. Implementations must be safe for concurrent use.
type Metrics interface {
	// Hit is called when Get finds a live entry.
	Hit()
	// Miss is called when Get finds nothing, or finds an entry past its cacheTime.
	Miss()
	// Eviction is called when an entry is dropped to stay within capacity.
	Eviction()
	// Expire is called when an entry is dropped because it outlived its cacheTime.
	Expire()
}

// NoopMetrics ignores every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit()      {}
func (NoopMetrics) Miss()     {}
func (NoopMetrics) Eviction() {}
func (NoopMetrics) Expire()   {}

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	Size        int
}

// HitRate returns Hits / (Hits + Misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
