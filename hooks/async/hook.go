// Package asynchook moves hook callbacks off the cache's hot paths onto a
// small worker pool. Events are dropped, not queued unboundedly, when the
// pool falls behind.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    EnvelopeErrorEvery: 10, // sample logs: ~every 10th envelope error
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := stagcache.New(stagcache.Options{
//	    CacheDir: dir,
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/stagcache"
)

type Hooks struct {
	inner stagcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ stagcache.Hooks = (*Hooks)(nil)

func New(inner stagcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) EnvelopeError(k string, err error)  { h.try(func() { h.inner.EnvelopeError(k, err) }) }
func (h *Hooks) DiskWriteError(k string, err error) { h.try(func() { h.inner.DiskWriteError(k, err) }) }
func (h *Hooks) DeferredDrained(applied, failed int) {
	h.try(func() { h.inner.DeferredDrained(applied, failed) })
}
