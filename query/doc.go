// Package query keeps remote resources cached, fresh and observable.
//
// A Runner owns one cache key: it fetches through a caller supplied
// function, retries failures, publishes every state transition to its
// subscribers and reacts to writes, invalidations and evictions of its key
// in the shared cache.Store. Mutation runs a single write with optimistic
// update hooks, and InfiniteRunner pages through a cursor based resource
// under a single key. Client ties them together around one store.
package query
