package stagcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// An entry read hit an envelope whose format version this build does
	// not implement. The error is also surfaced to the caller.
	EnvelopeError(key string, err error)

	// A disk-tier write failed (disk full, permissions). The error is
	// also surfaced to the caller of Set.
	DiskWriteError(key string, err error)

	// FlushDeferred finished a drain; applied is the number of queued
	// updates applied, failed the number that errored.
	DeferredDrained(applied, failed int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) EnvelopeError(string, error)  {}
func (NopHooks) DiskWriteError(string, error) {}
func (NopHooks) DeferredDrained(int, int)     {}
