package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agentuity/go-query/logger"
)

type item struct {
	key   string
	entry Entry
}

// Store is the shared, process-wide cache. Keys are kept in recency order
// (front is most recently used). All methods are safe for concurrent use;
// listeners are always invoked after the store lock is released.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*list.Element
	order     *list.List
	listeners map[string][]listenerSlot

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	cfg       config
	logger    logger.Logger
	nextSweep time.Time
	nudge     chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	once      sync.Once
}

// NewStore returns an empty Store and starts its passive cleanup goroutine.
// Call Close to stop it.
func NewStore(opts ...Option) *Store {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		entries:   make(map[string]*list.Element),
		order:     list.New(),
		listeners: make(map[string][]listenerSlot),
		cfg:       cfg,
		logger:    cfg.logger,
		nudge:     make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.waitGroup.Add(1)
	go s.run()
	return s
}

// Now returns the store clock. Runners stamp entries with it so staleness
// is judged against a single time source.
func (s *Store) Now() time.Time {
	return s.cfg.now()
}

// Get returns the entry for key. An entry past its cacheTime is removed and
// reported as a miss.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	el, ok := s.entries[key]
	if !ok {
		s.misses++
		s.mu.Unlock()
		s.cfg.metrics.Miss()
		return Entry{}, false
	}
	it := el.Value.(*item)
	if it.entry.ShouldEvictAt(s.cfg.now()) {
		s.unlinkLocked(el)
		s.expirations++
		s.misses++
		n := s.pendingLocked(key, nil)
		s.mu.Unlock()
		s.cfg.metrics.Expire()
		s.cfg.metrics.Miss()
		s.notify(n)
		return Entry{}, false
	}
	s.hits++
	s.order.MoveToFront(el)
	entry := it.entry
	s.mu.Unlock()
	s.cfg.metrics.Hit()
	return entry, true
}

// Peek returns the entry for key without touching counters, recency or
// eviction. Expired entries are still reported as absent.
func (s *Store) Peek(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	entry := el.Value.(*item).entry
	if entry.ShouldEvictAt(s.cfg.now()) {
		return Entry{}, false
	}
	return entry, true
}

// Set stores entry under key, marks it most recently used, evicts the least
// recently used keys beyond capacity and notifies the listeners of key.
func (s *Store) Set(key string, entry Entry) {
	if entry.fetchedAt.IsZero() {
		entry.fetchedAt = s.cfg.now()
	}
	s.mu.Lock()
	if el, ok := s.entries[key]; ok {
		el.Value.(*item).entry = entry
		s.order.MoveToFront(el)
	} else {
		s.entries[key] = s.order.PushFront(&item{key: key, entry: entry})
	}

	var pending []notification
	var evicted int
	for s.cfg.maxSize > 0 && s.order.Len() > s.cfg.maxSize {
		back := s.order.Back()
		victim := back.Value.(*item).key
		s.unlinkLocked(back)
		s.evictions++
		evicted++
		pending = append(pending, s.pendingLocked(victim, nil))
	}
	pending = append(pending, s.pendingLocked(key, &entry))
	wake := s.nextSweep.IsZero() || entry.evictAt().Before(s.nextSweep)
	s.mu.Unlock()

	for i := 0; i < evicted; i++ {
		s.cfg.metrics.Eviction()
	}
	if evicted > 0 {
		s.logger.Debug("evicted %d entries over capacity %d", evicted, s.cfg.maxSize)
	}
	if wake {
		s.wake()
	}
	s.notify(pending...)
}

// Remove deletes key and reports whether it was present.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	el, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.unlinkLocked(el)
	n := s.pendingLocked(key, nil)
	s.mu.Unlock()
	s.notify(n)
	return true
}

// RemoveByPattern deletes every key containing substr and returns how many
// were removed. Matching is plain substring containment.
func (s *Store) RemoveByPattern(substr string) int {
	s.mu.Lock()
	var pending []notification
	for key, el := range s.entries {
		if strings.Contains(key, substr) {
			s.unlinkLocked(el)
			pending = append(pending, s.pendingLocked(key, nil))
		}
	}
	s.mu.Unlock()
	s.notify(pending...)
	return len(pending)
}

// MarkStaleByPattern rewrites every entry whose key contains substr so it
// reads as stale, keeping its data, and notifies listeners with the rewritten
// entry. Returns the number of entries touched.
func (s *Store) MarkStaleByPattern(substr string) int {
	now := s.cfg.now()
	s.mu.Lock()
	var pending []notification
	for key, el := range s.entries {
		if !strings.Contains(key, substr) {
			continue
		}
		it := el.Value.(*item)
		it.entry = it.entry.markStale(now)
		entry := it.entry
		pending = append(pending, s.pendingLocked(key, &entry))
	}
	s.mu.Unlock()
	s.notify(pending...)
	return len(pending)
}

// Clear removes every entry. Listeners stay registered.
func (s *Store) Clear() {
	s.mu.Lock()
	pending := make([]notification, 0, len(s.entries))
	for key := range s.entries {
		pending = append(pending, s.pendingLocked(key, nil))
	}
	s.entries = make(map[string]*list.Element)
	s.order.Init()
	s.mu.Unlock()
	s.notify(pending...)
}

// Keys returns the live keys, most recently used first.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*item).key)
	}
	return keys
}

// Len returns the number of stored entries, including ones awaiting the sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		Expirations: s.expirations,
		Size:        s.order.Len(),
	}
}

// Close stops the cleanup goroutine. Entries remain readable.
func (s *Store) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.waitGroup.Wait()
	})
	return nil
}

func (s *Store) unlinkLocked(el *list.Element) {
	delete(s.entries, el.Value.(*item).key)
	s.order.Remove(el)
}
