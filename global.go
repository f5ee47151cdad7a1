package stagcache

import "sync"

// The process-wide cache is lazily initialized shared state with one
// canonical instance per process: an explicit accessor over a private,
// lock-protected slot rather than ambient mutable state.
var (
	globalMu    sync.Mutex
	globalCache *Cache
)

// Global returns the process-wide Cache. Every call returns the identical
// instance. The instance is memory-only; construct your own Cache with
// Options.CacheDir for a disk tier.
func Global() *Cache {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCache == nil {
		// Memory-only construction cannot fail.
		globalCache, _ = New(Options{})
	}
	return globalCache
}
