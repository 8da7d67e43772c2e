// Package executor runs units of work on independent concurrency contexts.
//
// Everything asynchronous in freshwatch (fetcher polling loops, subscriber
// notification, hint probes, prefetches) goes through an Executor so that
// tests can swap in a deterministic implementation.
//
// Go runs each task on its own goroutine and can Wait for all of them.
// Inline runs tasks synchronously on the caller's goroutine; it is only
// suitable where callers never hold a lock across Execute.
package executor
