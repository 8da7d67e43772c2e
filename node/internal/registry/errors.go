package registry

import "errors"

var (
	// ErrInvalidSubscriber is returned for a nil subscriber or one whose
	// dynamic type cannot be used as a map key.
	ErrInvalidSubscriber = errors.New("registry: invalid subscriber")

	// ErrClosed is returned by operations on a closed Registry.
	ErrClosed = errors.New("registry: closed")

	// ErrNotPersistent is returned by every attempt to serialize a Registry.
	ErrNotPersistent = errors.New("registry: freshness state is not persistent")
)
