package cache

import "time"

// Entry is an immutable snapshot of one cached resource. Data and Err are
// mutually exclusive in practice; an entry with neither is pending.
type Entry struct {
	data        any
	hasData     bool
	err         error
	fetchedAt   time.Time
	staleTime   time.Duration
	cacheTime   time.Duration
	invalidated bool
	source      string
}

// NewEntry returns an entry holding data fetched at fetchedAt.
func NewEntry(data any, fetchedAt time.Time, staleTime, cacheTime time.Duration) Entry {
	return Entry{
		data:      data,
		hasData:   true,
		fetchedAt: fetchedAt,
		staleTime: staleTime,
		cacheTime: cacheTime,
	}
}

// NewErrorEntry returns an entry recording a failed fetch.
func NewErrorEntry(err error, fetchedAt time.Time, staleTime, cacheTime time.Duration) Entry {
	return Entry{
		err:       err,
		fetchedAt: fetchedAt,
		staleTime: staleTime,
		cacheTime: cacheTime,
	}
}

func (e Entry) Data() any                { return e.data }
func (e Entry) HasData() bool            { return e.hasData }
func (e Entry) Err() error               { return e.err }
func (e Entry) FetchedAt() time.Time     { return e.fetchedAt }
func (e Entry) StaleTime() time.Duration { return e.staleTime }
func (e Entry) CacheTime() time.Duration { return e.cacheTime }

// Source identifies the writer of the entry, empty when unset.
func (e Entry) Source() string { return e.source }

// WithSource returns a copy of e tagged with the writer id src. Query runners
// tag their own writes so they can tell them apart from writes by others.
func (e Entry) WithSource(src string) Entry {
	e.source = src
	return e
}

// Invalidated reports whether the entry was explicitly marked stale through
// Store.MarkStaleByPattern rather than having aged out.
func (e Entry) Invalidated() bool { return e.invalidated }

// IsStaleAt reports now - fetchedAt > staleTime.
func (e Entry) IsStaleAt(now time.Time) bool {
	return now.Sub(e.fetchedAt) > e.staleTime
}

// ShouldEvictAt reports now - fetchedAt > cacheTime. A cacheTime shorter than
// staleTime is allowed: such entries are evicted before they ever read as stale.
func (e Entry) ShouldEvictAt(now time.Time) bool {
	return now.Sub(e.fetchedAt) > e.cacheTime
}

func (e Entry) IsStale() bool     { return e.IsStaleAt(time.Now()) }
func (e Entry) ShouldEvict() bool { return e.ShouldEvictAt(time.Now()) }

// evictAt is the instant after which ShouldEvictAt turns true.
func (e Entry) evictAt() time.Time {
	return e.fetchedAt.Add(e.cacheTime)
}

// markStale rewrites fetchedAt so the entry reads as stale at now while
// keeping its data.
func (e Entry) markStale(now time.Time) Entry {
	e.fetchedAt = now.Add(-e.staleTime - time.Millisecond)
	e.invalidated = true
	return e
}
