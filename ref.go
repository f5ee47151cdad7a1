package stagcache

import "github.com/unkn0wn-root/stagcache/value"

// Ref is a lightweight handle bound to one (cache, key) pair. It forwards
// writes without repeating the key. A deferred Ref routes Set and Push
// through the deferred queue; the owner must still call FlushDeferred for
// those writes to become visible.
type Ref struct {
	c        *Cache
	name     string
	deferred bool
}

// CreateRef binds a handle to key. With deferred true, Set and Push
// enqueue instead of mutating.
func (c *Cache) CreateRef(key string, deferred bool) *Ref {
	return &Ref{c: c, name: key, deferred: deferred}
}

// Name returns the bound key.
func (r *Ref) Name() string { return r.name }

// Set writes the bound entry.
func (r *Ref) Set(v value.Value, opts ...EntryOption) error {
	if r.deferred {
		r.c.SetDeferred(r.name, v, opts...)
		return nil
	}
	return r.c.Set(r.name, v, opts...)
}

// Push appends items to the bound list entry.
func (r *Ref) Push(items ...value.Value) error {
	if r.deferred {
		r.c.LPushDeferred(r.name, items...)
		return nil
	}
	return r.c.LPush(r.name, items...)
}

// Pop removes and returns the FIRST element of the bound list entry (the
// handle drains its list in push order, unlike Cache.Pop which takes the
// last).
func (r *Ref) Pop() (value.Value, bool) {
	return r.c.PopAt(r.name, 0)
}
