package stagcache

import "errors"

var (
	// ErrNotFound is returned by Fetch when no live entry exists under the
	// key (or its version does not match).
	ErrNotFound = errors.New("stagcache: key not found")

	// ErrAlreadyLoaded is returned by Load on a cache that is already
	// loaded. Loading twice is a programming error, not a state to recover
	// from.
	ErrAlreadyLoaded = errors.New("stagcache: cache already loaded")

	// ErrNotLoaded is returned by Unload on a cache that was never loaded.
	ErrNotLoaded = errors.New("stagcache: cache not loaded")
)
