package stagcache

import (
	"fmt"
	"sync"

	"github.com/unkn0wn-root/stagcache/diskstore"
	"github.com/unkn0wn-root/stagcache/value"
)

// entry is one record of the in-memory table.
type entry struct {
	val     value.Value
	version string
	keep    bool
}

// Cache is a keyed store spanning memory and disk. Keys may embed an
// entry version ("name@3") and a residency marker ("$name" routes the
// entry to the disk tier). One mutex guards the table, the revision
// counters and the deferred-update queue, so all operations are
// linearizable with respect to each other.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	revs     map[string]int64
	deferred []deferredUpdate
	volatile map[string]struct{}
	disk     *diskstore.Store
	version  string
	loaded   bool
	log      Logger
	hooks    Hooks
}

// Version returns the cache's default entry version.
func (c *Cache) Version() string { return c.version }

// Set writes or overwrites the entry under key and bumps its revision.
// A version mismatch against the previous entry still replaces it; the
// old value is discarded.
func (c *Cache) Set(key string, v value.Value, opts ...EntryOption) error {
	cfg := applyEntryOpts(opts)
	kd := c.parseKey(key, cfg.version)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(kd, v, cfg.keep)
}

func (c *Cache) setLocked(kd keyDesc, v value.Value, keep bool) error {
	if kd.disk && c.disk != nil {
		if err := c.disk.SetVersion(kd.name, v, kd.version); err != nil {
			c.hooks.DiskWriteError(kd.name, err)
			c.log.Error("disk set failed", Fields{"key": kd.name, "err": err})
			return err
		}
	} else {
		c.entries[kd.name] = &entry{val: v, version: kd.version, keep: keep}
	}
	c.revs[kd.revKey()]++
	return nil
}

// Get returns the value under key. A missing entry and a version
// mismatch are misses ((zero, false, nil)); the error is non-nil only
// when stored data cannot be interpreted (see bundle.FormatError), which
// is never downgraded to a miss.
func (c *Cache) Get(key string, opts ...EntryOption) (value.Value, bool, error) {
	cfg := applyEntryOpts(opts)
	kd := c.parseKey(key, cfg.version)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(kd)
}

func (c *Cache) getLocked(kd keyDesc) (value.Value, bool, error) {
	if kd.disk && c.disk != nil {
		v, ok, err := c.disk.GetVersion(kd.name, kd.version)
		if err != nil {
			c.hooks.EnvelopeError(kd.name, err)
			c.log.Error("disk entry unreadable", Fields{"key": kd.name, "err": err})
			return value.Null(), false, err
		}
		return v, ok, nil
	}
	e, ok := c.entries[kd.name]
	if !ok {
		return value.Null(), false, nil
	}
	if e.version != "" && kd.version != "" && e.version != kd.version {
		return value.Null(), false, nil
	}
	return e.val, true, nil
}

// GetDefault is Get with a fallback: def is returned on a miss. A decode
// failure still surfaces as the error alongside def.
func (c *Cache) GetDefault(key string, def value.Value, opts ...EntryOption) (value.Value, error) {
	v, ok, err := c.Get(key, opts...)
	if !ok {
		return def, err
	}
	return v, nil
}

// Fetch is the loud indexed access: a miss is an error (ErrNotFound),
// unlike the defaulted Get.
func (c *Cache) Fetch(key string) (value.Value, error) {
	v, ok, err := c.Get(key)
	if err != nil {
		return value.Null(), err
	}
	if !ok {
		return value.Null(), fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return v, nil
}

// Contains reports whether key has a live entry, ignoring versions.
func (c *Cache) Contains(key string) bool {
	kd := c.parseKey(key, "")
	c.mu.Lock()
	defer c.mu.Unlock()
	if kd.disk && c.disk != nil {
		return c.disk.Contains(kd.name)
	}
	_, ok := c.entries[kd.name]
	return ok
}

// Remove deletes one or more keys and returns how many actually existed.
func (c *Cache) Remove(keys ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, key := range keys {
		kd := c.parseKey(key, "")
		if c.removeLocked(kd) {
			removed++
		}
	}
	return removed
}

func (c *Cache) removeLocked(kd keyDesc) bool {
	existed := false
	if kd.disk && c.disk != nil {
		existed, _ = c.disk.Delete(kd.name)
	} else if _, ok := c.entries[kd.name]; ok {
		delete(c.entries, kd.name)
		existed = true
	}
	if existed {
		delete(c.revs, kd.revKey())
	}
	return existed
}

// Inc atomically adds delta to the integer under key and returns the new
// total. A missing key starts from 0. Concurrent calls never lose an
// update; the whole read-add-write runs under the lock.
func (c *Cache) Inc(key string, delta int64) (int64, error) {
	kd := c.parseKey(key, "")
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := int64(0)
	v, ok, err := c.getLocked(kd)
	if err != nil {
		return 0, err
	}
	if ok {
		if i, isInt := v.AsInt(); isInt {
			cur = i
		}
	}
	next := cur + delta
	if err := c.setLocked(kd, value.Int(next), false); err != nil {
		return 0, err
	}
	return next, nil
}

// Dec is Inc with a negated delta.
func (c *Cache) Dec(key string, delta int64) (int64, error) {
	return c.Inc(key, -delta)
}

// LPush appends items to the list under key, creating the list if the
// key is absent. A non-list entry is replaced by a list of the items.
func (c *Cache) LPush(key string, items ...value.Value) error {
	kd := c.parseKey(key, "")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lpushLocked(kd, items)
}

// LPushSeq is the unpacking form of LPush: a sequence or tuple argument
// is spread into individual items; any other value is pushed as one item.
func (c *Cache) LPushSeq(key string, seq value.Value) error {
	if items, ok := seq.Items(); ok {
		return c.LPush(key, items...)
	}
	return c.LPush(key, seq)
}

func (c *Cache) lpushLocked(kd keyDesc, items []value.Value) error {
	existing := []value.Value(nil)
	v, ok, err := c.getLocked(kd)
	if err != nil {
		return err
	}
	if ok && v.Kind() == value.KindSeq {
		existing, _ = v.Items()
	}
	return c.setLocked(kd, value.SeqOf(append(existing, items...)...), false)
}

// Pop removes and returns the last element of the list under key.
// If the entry holds a plain value rather than a list, the whole value
// is returned and the key deleted - callers depend on this polymorphic
// behavior, so it is kept as-is. A missing key or empty list is a miss.
func (c *Cache) Pop(key string) (value.Value, bool) {
	return c.PopAt(key, -1)
}

// PopAt is Pop at an explicit index; negative indexes count from the
// end. An out-of-range index is a miss.
func (c *Cache) PopAt(key string, index int) (value.Value, bool) {
	kd := c.parseKey(key, "")
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok, err := c.getLocked(kd)
	if err != nil || !ok {
		return value.Null(), false
	}
	if v.Kind() != value.KindSeq {
		c.removeLocked(kd)
		return v, true
	}
	items, _ := v.Items()
	if len(items) == 0 {
		return value.Null(), false
	}
	idx := index
	if idx < 0 {
		idx += len(items)
	}
	if idx < 0 || idx >= len(items) {
		return value.Null(), false
	}
	popped := items[idx]
	rest := append(items[:idx:idx], items[idx+1:]...)
	if err := c.setLocked(kd, value.SeqOf(rest...), false); err != nil {
		return value.Null(), false
	}
	return popped, true
}

// GetRevision returns the key's change counter; 0 for an absent key.
func (c *Cache) GetRevision(key string) int64 {
	kd := c.parseKey(key, "")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revs[kd.revKey()]
}

// IncreaseRevision bumps and returns the key's revision without touching
// the stored value. Used to signal that the key's referent changed
// externally.
func (c *Cache) IncreaseRevision(key string) int64 {
	kd := c.parseKey(key, "")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revs[kd.revKey()]++
	return c.revs[kd.revKey()]
}

// Clear drops every memory entry not marked keep, along with its
// revision counter. Disk-resident entries are untouched.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, e := range c.entries {
		if e.keep {
			continue
		}
		delete(c.entries, name)
		delete(c.revs, name)
	}
}

// Memoize returns the cached value under key, or calls build exactly
// once, stores its result and returns it. Version options apply to both
// the lookup and the store, so a version change rebuilds.
func (c *Cache) Memoize(key string, build func() (value.Value, error), opts ...EntryOption) (value.Value, error) {
	v, ok, err := c.Get(key, opts...)
	if err != nil {
		return value.Null(), err
	}
	if ok {
		return v, nil
	}
	v, err = build()
	if err != nil {
		return value.Null(), err
	}
	if err := c.Set(key, v, opts...); err != nil {
		return value.Null(), err
	}
	return v, nil
}

// Load transitions the cache into its loaded state. Loading an already
// loaded cache fails with ErrAlreadyLoaded.
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return ErrAlreadyLoaded
	}
	c.loaded = true
	c.log.Debug("cache loaded", nil)
	return nil
}

// Unload drops every non-persistent entry, deletes registered volatile
// disk members and leaves the cache unloaded. Unloading a cache that was
// never loaded fails with ErrNotLoaded.
func (c *Cache) Unload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return ErrNotLoaded
	}
	c.loaded = false
	c.entries = make(map[string]*entry)
	c.revs = make(map[string]int64)
	c.deferred = nil
	if c.disk != nil {
		for name := range c.volatile {
			_, _ = c.disk.Delete(name)
		}
	}
	c.log.Debug("cache unloaded", Fields{"volatile": len(c.volatile)})
	return nil
}

// Loaded reports the lifecycle state.
func (c *Cache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// AddVolatileMember registers a disk member (stored under a "." prefix)
// to be removed at Unload instead of persisting across runs.
func (c *Cache) AddVolatileMember(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volatile["."+name] = struct{}{}
}

// IsVolatileMember reports whether name was registered volatile.
func (c *Cache) IsVolatileMember(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.volatile["."+name]
	return ok
}
