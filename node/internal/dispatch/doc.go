// Package dispatch holds subscriber membership and delivers freshness updates.
//
// Set is an ordered set of subscribers keyed by identity. Adding an existing
// subscriber is a no-op; removal is a direct unlink. It is not safe for
// concurrent use; the owner (a fetcher or the registry) guards it.
//
// Dispatcher delivers updates asynchronously with per-subscriber ordering.
// Each subscriber has a mailbox. Enqueue appends under the caller's lock and
// reports whether a drain must be started; the caller starts it with Start
// once its own locks are released. A mailbox is drained by at most one task
// at a time, so a subscriber sees updates in exactly the order they were
// enqueued. Ordering across different subscribers is unspecified.
package dispatch
