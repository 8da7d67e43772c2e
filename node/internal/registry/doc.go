// Package registry is the freshness tracker for versioned keys.
//
// A Registry records, per key, the highest edition whose content was fetched
// (known good) and the highest edition whose slot was observed (latest slot).
// It owns the background fetchers, the LRU pool of temporary fetchers and the
// passive subscriber sets, and fans every advance out to subscribers through
// an ordered dispatcher. Bookkeeping happens under one lock; fetcher
// scheduling, cancellation and subscriber callbacks always run after it is
// released.
//
// Registry state is never persisted.
package registry
