package cache

import "time"

// GetData returns the data stored under key when it is present, live and of
// type T.
func GetData[T any](s *Store, key string) (T, bool) {
	var zero T
	entry, ok := s.Get(key)
	if !ok || !entry.HasData() {
		return zero, false
	}
	val, ok := entry.Data().(T)
	if !ok {
		return zero, false
	}
	return val, true
}

// SetData stores val under key, stamped with the store clock.
func SetData[T any](s *Store, key string, val T, staleTime, cacheTime time.Duration) Entry {
	entry := NewEntry(val, s.Now(), staleTime, cacheTime)
	s.Set(key, entry)
	return entry
}
