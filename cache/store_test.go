package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agentuity/go-query/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeClock) {
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now), WithLogger(logger.NewTestLogger())}, opts...)
	s := NewStore(opts...)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func TestStoreSetGet(t *testing.T) {
	s, clock := newTestStore(t)

	_, ok := s.Get("user-1")
	assert.False(t, ok)

	s.Set("user-1", NewEntry("alice", clock.Now(), time.Minute, 5*time.Minute))
	entry, ok := s.Get("user-1")
	require.True(t, ok)
	assert.True(t, entry.HasData())
	assert.Equal(t, "alice", entry.Data())
	assert.NoError(t, entry.Err())

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.0001)
}

func TestStoreSetStampsZeroFetchedAt(t *testing.T) {
	s, clock := newTestStore(t)
	s.Set("k", NewEntry(1, time.Time{}, time.Minute, time.Hour))
	entry, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), entry.FetchedAt())
}

func TestEntryStaleness(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := NewEntry("x", now, time.Minute, 10*time.Minute)

	assert.False(t, entry.IsStaleAt(now))
	assert.False(t, entry.IsStaleAt(now.Add(time.Minute)))
	assert.True(t, entry.IsStaleAt(now.Add(time.Minute+time.Nanosecond)))

	assert.False(t, entry.ShouldEvictAt(now.Add(10*time.Minute)))
	assert.True(t, entry.ShouldEvictAt(now.Add(10*time.Minute+time.Nanosecond)))

	// with cacheTime >= staleTime eviction never precedes staleness
	for d := time.Duration(0); d < 12*time.Minute; d += 30 * time.Second {
		at := now.Add(d)
		if entry.ShouldEvictAt(at) {
			assert.True(t, entry.IsStaleAt(at), "evictable at %s but not stale", d)
		}
	}
}

func TestEntryCacheTimeShorterThanStaleTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := NewEntry("x", now, 10*time.Minute, time.Minute)
	at := now.Add(2 * time.Minute)
	assert.True(t, entry.ShouldEvictAt(at))
	assert.False(t, entry.IsStaleAt(at))
}

func TestStoreGetEvictsExpired(t *testing.T) {
	s, clock := newTestStore(t)
	var got []*Entry
	s.AddListener("k", func(e *Entry) { got = append(got, e) })

	s.Set("k", NewEntry("v", clock.Now(), time.Second, 2*time.Second))
	clock.Advance(3 * time.Second)

	_, ok := s.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
	require.Len(t, got, 2)
	assert.NotNil(t, got[0])
	assert.Nil(t, got[1])

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Expirations)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestStoreCapacityEviction(t *testing.T) {
	s, clock := newTestStore(t, WithMaxSize(3))
	var evicted []string
	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("k%d", i)
		s.AddListener(key, func(e *Entry) {
			if e == nil {
				evicted = append(evicted, key)
			}
		})
	}

	for i := 0; i < 3; i++ {
		s.Set(fmt.Sprintf("k%d", i), NewEntry(i, clock.Now(), time.Minute, time.Hour))
	}
	assert.Equal(t, uint64(0), s.Stats().Evictions)

	s.Set("k3", NewEntry(3, clock.Now(), time.Minute, time.Hour))

	assert.Equal(t, uint64(1), s.Stats().Evictions)
	assert.Equal(t, []string{"k0"}, evicted)
	assert.Equal(t, []string{"k3", "k2", "k1"}, s.Keys())
}

func TestStoreCapacityRespectsRecency(t *testing.T) {
	s, clock := newTestStore(t, WithMaxSize(2))
	s.Set("a", NewEntry(1, clock.Now(), time.Minute, time.Hour))
	s.Set("b", NewEntry(2, clock.Now(), time.Minute, time.Hour))

	_, ok := s.Get("a")
	require.True(t, ok)
	s.Set("c", NewEntry(3, clock.Now(), time.Minute, time.Hour))

	_, ok = s.Peek("b")
	assert.False(t, ok)
	_, ok = s.Peek("a")
	assert.True(t, ok)
}

func TestStoreRemoveByPattern(t *testing.T) {
	s, clock := newTestStore(t)
	for _, k := range []string{"user-1", "user-2", "post-1"} {
		s.Set(k, NewEntry(k, clock.Now(), time.Minute, time.Hour))
	}

	assert.Equal(t, 2, s.RemoveByPattern("user"))

	_, ok := s.Get("user-1")
	assert.False(t, ok)
	_, ok = s.Get("user-2")
	assert.False(t, ok)
	_, ok = s.Get("post-1")
	assert.True(t, ok)

	// substring, not regex
	assert.Equal(t, 0, s.RemoveByPattern("post.*"))
	assert.True(t, s.Remove("post-1"))
	assert.False(t, s.Remove("post-1"))
}

func TestStoreMarkStaleByPattern(t *testing.T) {
	s, clock := newTestStore(t)
	s.Set("user-1", NewEntry("alice", clock.Now(), time.Minute, time.Hour))
	s.Set("post-1", NewEntry("hello", clock.Now(), time.Minute, time.Hour))

	var notified *Entry
	s.AddListener("user-1", func(e *Entry) { notified = e })

	assert.Equal(t, 1, s.MarkStaleByPattern("user"))

	entry, ok := s.Get("user-1")
	require.True(t, ok)
	assert.Equal(t, "alice", entry.Data())
	assert.True(t, entry.IsStaleAt(clock.Now()))
	assert.True(t, entry.Invalidated())
	require.NotNil(t, notified)
	assert.True(t, notified.Invalidated())

	post, ok := s.Get("post-1")
	require.True(t, ok)
	assert.False(t, post.IsStaleAt(clock.Now()))
}

func TestStoreClear(t *testing.T) {
	s, clock := newTestStore(t)
	removed := 0
	s.AddListener("a", func(e *Entry) {
		if e == nil {
			removed++
		}
	})
	s.Set("a", NewEntry(1, clock.Now(), time.Minute, time.Hour))
	s.Set("b", NewEntry(2, clock.Now(), time.Minute, time.Hour))

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.ListenerCount("a"))
}

func TestStoreListenerPanicIsContained(t *testing.T) {
	log := logger.NewTestLogger()
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now), WithLogger(log))
	defer s.Close()

	var second int
	s.AddListener("k", func(*Entry) { panic("bad subscriber") })
	s.AddListener("k", func(*Entry) { second++ })

	assert.NotPanics(t, func() {
		s.Set("k", NewEntry(1, clock.Now(), time.Minute, time.Hour))
	})
	assert.Equal(t, 1, second)
	assert.Equal(t, 1, log.Count("ERROR", "bad subscriber"))

	entry, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, entry.Data())
}

func TestStoreRemoveListener(t *testing.T) {
	s, clock := newTestStore(t)
	var a, b int
	idA := s.AddListener("k", func(*Entry) { a++ })
	s.AddListener("k", func(*Entry) { b++ })

	s.RemoveListener("k", idA)
	s.Set("k", NewEntry(1, clock.Now(), time.Minute, time.Hour))
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)

	s.RemoveAllListeners("k")
	s.Set("k", NewEntry(2, clock.Now(), time.Minute, time.Hour))
	assert.Equal(t, 1, b)
	assert.Equal(t, 0, s.ListenerCount("k"))
}

func TestStoreBackgroundSweep(t *testing.T) {
	s := NewStore(
		WithLogger(logger.NewTestLogger()),
		WithCleanupBounds(5*time.Millisecond, time.Second),
		WithCleanupInterval(time.Hour),
	)
	defer s.Close()

	gone := make(chan struct{})
	s.AddListener("short", func(e *Entry) {
		if e == nil {
			close(gone)
		}
	})
	s.Set("long", NewEntry("keep", time.Now(), time.Minute, time.Hour))
	s.Set("short", NewEntry("drop", time.Now(), 10*time.Millisecond, 30*time.Millisecond))

	select {
	case <-gone:
	case <-time.After(2 * time.Second):
		t.Fatal("short-lived entry was not swept")
	}
	assert.Equal(t, []string{"long"}, s.Keys())
	assert.Equal(t, uint64(1), s.Stats().Expirations)
}

func TestStoreSchedule(t *testing.T) {
	s, clock := newTestStore(t,
		WithCleanupBounds(time.Second, time.Minute),
		WithCleanupInterval(10*time.Minute),
	)

	assert.Equal(t, 10*time.Minute, s.schedule())

	s.Set("a", NewEntry(1, clock.Now(), time.Second, 30*time.Second))
	assert.Equal(t, 30*time.Second, s.schedule())

	s.Set("b", NewEntry(1, clock.Now(), time.Second, 10*time.Millisecond))
	assert.Equal(t, time.Second, s.schedule())

	s.Clear()
	s.Set("c", NewEntry(1, clock.Now(), time.Second, time.Hour))
	assert.Equal(t, time.Minute, s.schedule())
}

func TestStoreCloseIsIdempotent(t *testing.T) {
	s := NewStore(WithLogger(logger.NewTestLogger()))
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestTypedHelpers(t *testing.T) {
	s, _ := newTestStore(t)
	SetData(s, "n", 42, time.Minute, time.Hour)

	n, ok := GetData[int](s, "n")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = GetData[string](s, "n")
	assert.False(t, ok)

	s.Set("err", NewErrorEntry(fmt.Errorf("boom"), s.Now(), time.Minute, time.Hour))
	_, ok = GetData[int](s, "err")
	assert.False(t, ok)
}
