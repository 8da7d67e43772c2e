// Package fetcher implements the polling effort for one versioned key.
//
// A Fetcher probes for editions it has not seen yet, preferring hinted
// editions over the sequential lookahead window, and reports what it finds to
// a Reporter. Background fetchers run until cancelled; temporary fetchers live
// in the registry's LRU pool and may be told to retire once their last
// subscriber leaves.
package fetcher
