package fetch

import (
	"context"
	"errors"
)

// ErrNotFound means the gateway does not have the requested block.
var ErrNotFound = errors.New("fetch: not found")

// Content describes a successfully retrieved (and discarded) payload.
type Content struct {
	URI         string
	ContentType string
	// Size is the decoded size in bytes.
	Size int64
}

// Subsystem is the fetch collaborator. Implementations must be safe for
// concurrent use; callers run every call on their own executor task.
type Subsystem interface {
	// Probe checks that the single block at uri exists.
	Probe(ctx context.Context, uri string) error

	// FetchContent retrieves the full content addressed by uri.
	FetchContent(ctx context.Context, uri string) (Content, error)

	// Backoff returns the pacing policy for unproductive polling rounds.
	Backoff() BackoffPolicy
}
