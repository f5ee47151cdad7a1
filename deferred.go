package stagcache

import "github.com/unkn0wn-root/stagcache/value"

// The deferred path is batched-commit semantics, not concurrency: writes
// queue in order and become visible only when FlushDeferred is called.
// Reads never drain the queue implicitly.

type deferredOp uint8

const (
	opSet deferredOp = iota
	opPush
)

type deferredUpdate struct {
	op      deferredOp
	key     string
	val     value.Value
	items   []value.Value
	version string
	keep    bool
}

// SetDeferred enqueues a Set. The entry becomes visible after the next
// FlushDeferred; until then Get observes the prior state.
func (c *Cache) SetDeferred(key string, v value.Value, opts ...EntryOption) {
	cfg := applyEntryOpts(opts)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deferred = append(c.deferred, deferredUpdate{
		op:      opSet,
		key:     key,
		val:     v,
		version: cfg.version,
		keep:    cfg.keep,
	})
}

// LPushDeferred enqueues an LPush.
func (c *Cache) LPushDeferred(key string, items ...value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deferred = append(c.deferred, deferredUpdate{
		op:    opPush,
		key:   key,
		items: append([]value.Value(nil), items...),
	})
}

// FlushDeferred applies every queued update in enqueue order, under the
// lock, then empties the queue. Each drain applies an update exactly
// once; no reads interleave mid-drain. Returns the number of updates
// applied. Failed updates (disk-tier write errors) are dropped, logged
// and reported via Hooks.
func (c *Cache) FlushDeferred() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	queued := c.deferred
	c.deferred = nil

	applied, failed := 0, 0
	for _, u := range queued {
		kd := c.parseKey(u.key, u.version)
		var err error
		switch u.op {
		case opSet:
			err = c.setLocked(kd, u.val, u.keep)
		case opPush:
			err = c.lpushLocked(kd, u.items)
		}
		if err != nil {
			failed++
			c.log.Warn("deferred update failed", Fields{"key": u.key, "err": err})
			continue
		}
		applied++
	}
	if applied > 0 || failed > 0 {
		c.hooks.DeferredDrained(applied, failed)
	}
	return applied
}
