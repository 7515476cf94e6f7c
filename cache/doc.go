// Package cache is the shared store behind every query runner.
//
// # Entries
//
// An [Entry] is an immutable snapshot: data or error, the time it was
// fetched, and two durations. An entry is stale once more than its staleTime
// has passed since it was fetched; stale data is still served but callers
// should refresh it in the background. It is due for eviction once more than
// its cacheTime has passed. cacheTime is expected to be at least staleTime but
// this is not enforced: an entry with a shorter cacheTime simply disappears
// before it ever reads as stale.
//
// # Store
//
// [Store] keeps entries in recency order and holds at most a configured
// number of them ([WithMaxSize]); writing a new key beyond capacity drops the
// least recently used one. Entries past their cacheTime are removed lazily by
// [Store.Get] and eagerly by a background sweep. The sweep does not poll at a
// fixed fine interval: it sleeps until the earliest entry is due, clamped by
// [WithCleanupBounds], and falls back to [WithCleanupInterval] when the store
// is empty.
//
// Invalidation is hierarchical and uses plain substring matching:
//
//	s.RemoveByPattern("user-")    // drops user-1, user-2, ...
//	s.MarkStaleByPattern("post")  // keeps data, forces a background refetch
//
// # Listeners
//
// Every change to a key is pushed synchronously to its listeners
// ([Store.AddListener]) after the store lock has been released. A nil entry
// means the key was removed, evicted or expired. A listener that panics is
// logged and skipped; it cannot corrupt the store or starve other listeners.
//
// # Keys
//
// [Key] derives stable keys from parameters:
//
//	cache.Key("user", 42)                              // "user-42"
//	cache.Key("search", map[string]any{"q": "go"})     // "search-<xxhash>"
package cache
