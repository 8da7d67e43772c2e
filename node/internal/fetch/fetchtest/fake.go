// Package fetchtest provides an in-memory fetch.Subsystem for tests.
package fetchtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/freshwatch/freshwatch/node/internal/fetch"
	"github.com/freshwatch/freshwatch/pkg/types"
)

// Fake is an in-memory fetch.Subsystem. Published editions answer both their
// slot URI (probes) and their USK URI (probes and content). Every call is
// recorded.
type Fake struct {
	mu         sync.Mutex
	available  map[string]bool
	brokenBody map[string]bool
	probes     []string
	fetches    []string
	policy     fetch.BackoffPolicy
	probed     chan string
}

// New returns an empty Fake with a millisecond backoff policy.
func New() *Fake {
	return &Fake{
		available:  make(map[string]bool),
		brokenBody: make(map[string]bool),
		policy: fetch.BackoffPolicy{
			Initial:    time.Millisecond,
			Max:        5 * time.Millisecond,
			Multiplier: 2,
		},
		probed: make(chan string, 1024),
	}
}

// Publish makes edition ed of k fetchable.
func (f *Fake) Publish(k types.ClearKey, ed types.Edition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available[k.SlotURI(ed)] = true
	f.available[k.At(ed).URI()] = true
}

// BreakContent makes content fetches of edition ed fail while probes still
// succeed.
func (f *Fake) BreakContent(k types.ClearKey, ed types.Edition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brokenBody[k.At(ed).URI()] = true
}

// Probe implements fetch.Subsystem.
func (f *Fake) Probe(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.probes = append(f.probes, uri)
	ok := f.available[uri]
	f.mu.Unlock()

	select {
	case f.probed <- uri:
	default:
	}
	if !ok {
		return fmt.Errorf("probe %s: %w", uri, fetch.ErrNotFound)
	}
	return nil
}

// FetchContent implements fetch.Subsystem.
func (f *Fake) FetchContent(ctx context.Context, uri string) (fetch.Content, error) {
	if err := ctx.Err(); err != nil {
		return fetch.Content{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, uri)
	if !f.available[uri] {
		return fetch.Content{}, fmt.Errorf("fetch %s: %w", uri, fetch.ErrNotFound)
	}
	if f.brokenBody[uri] {
		return fetch.Content{}, fmt.Errorf("fetch %s: truncated body", uri)
	}
	return fetch.Content{URI: uri, ContentType: "application/octet-stream", Size: 42}, nil
}

// Backoff implements fetch.Subsystem.
func (f *Fake) Backoff() fetch.BackoffPolicy { return f.policy }

// Probes returns a copy of every probed URI in call order.
func (f *Fake) Probes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probes...)
}

// ProbeCount returns how many times uri was probed.
func (f *Fake) ProbeCount(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.probes {
		if p == uri {
			n++
		}
	}
	return n
}

// Fetches returns a copy of every content URI fetched in call order.
func (f *Fake) Fetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetches...)
}

// Probed delivers probed URIs as they happen. Best effort: URIs are dropped
// when nobody reads.
func (f *Fake) Probed() <-chan string { return f.probed }
