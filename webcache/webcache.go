// Package webcache is a disk-backed cache for opaque byte blobs keyed by
// an identifier string (typically a URL). Freshness is judged purely by
// file modification time against a caller-supplied maximum age; there is
// no envelope. Eviction is coarse: when the running total size reaches the
// configured cap, the entire store is flushed.
package webcache

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/unkn0wn-root/stagcache"
	"github.com/unkn0wn-root/stagcache/internal/util"
	"github.com/unkn0wn-root/stagcache/provider"
)

const (
	// DefaultMaxAge bounds the age of any file kept by Cleanup.
	DefaultMaxAge = 7 * time.Hour
	// DefaultMaxSize is the whole-store size cap in bytes.
	DefaultMaxSize = 200_000_000
)

// Cache stores one file per identifier under baseDir/appName. Safe for
// concurrent use.
type Cache struct {
	mu          sync.Mutex
	baseDir     string
	appName     string
	dir         string
	maxAge      time.Duration
	maxSize     int64
	totalSize   int64
	filesStored int
	cleaned     bool
	log         stagcache.Logger
	mem         provider.Provider
}

// Options tune a Cache. The zero value is usable.
type Options struct {
	// BaseDir defaults to the OS temp directory.
	BaseDir string
	// AppName namespaces the store's root directory.
	AppName string
	// MaxAge is the general age bound applied by Cleanup; 0 => 7h.
	MaxAge time.Duration
	// MaxSize is the whole-store byte cap; 0 => 200 MB.
	MaxSize int64
	Logger  stagcache.Logger
	// Memory is an optional byte-store layer (e.g. provider/bigcache)
	// serving hot fetches without disk I/O.
	Memory provider.Provider
}

// New constructs a Cache. The backing directory is created lazily on the
// first Store.
func New(opts Options) *Cache {
	c := &Cache{
		baseDir: opts.BaseDir,
		appName: opts.AppName,
		maxAge:  opts.MaxAge,
		maxSize: opts.MaxSize,
		mem:     opts.Memory,
	}
	if c.baseDir == "" {
		c.baseDir = filepath.Join(os.TempDir(), "stagcache")
	}
	if c.appName == "" {
		c.appName = "stagcache"
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.maxSize <= 0 {
		c.maxSize = DefaultMaxSize
	}
	c.log = opts.Logger
	if c.log == nil {
		c.log = stagcache.NopLogger{}
	}
	c.dir = filepath.Join(c.baseDir, c.appName)
	return c
}

var (
	defaultMu    sync.Mutex
	defaultCache *Cache
)

// Default returns the process-wide blob cache.
func Default() *Cache {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCache == nil {
		defaultCache = New(Options{})
	}
	return defaultCache
}

// EncodedName maps an identifier onto its safe filename.
func EncodedName(identifier string) string { return util.EncodeName(identifier) }

// Dir returns the store's current root directory.
func (c *Cache) Dir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir
}

// TotalSize returns the running byte total of the store.
func (c *Cache) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalSize
}

// SetAppName re-namespaces the store and immediately runs a cleanup pass
// under the new directory.
func (c *Cache) SetAppName(name string) {
	c.mu.Lock()
	c.appName = name
	c.dir = filepath.Join(c.baseDir, name)
	_ = os.MkdirAll(c.dir, 0o755)
	c.mu.Unlock()
	c.Cleanup()
}

func (c *Cache) path(identifier string) string {
	return filepath.Join(c.dir, util.EncodeName(identifier))
}

// Store writes data under the identifier's hashed filename. Reaching the
// size cap flushes the whole store first - a coarse policy kept for its
// simplicity over hit-rate optimality.
func (c *Cache) Store(identifier string, data []byte) error {
	c.mu.Lock()
	if !c.cleaned {
		c.cleanupLocked()
	}
	c.filesStored++
	if c.filesStored == 1 {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	if c.totalSize >= c.maxSize {
		c.flushLocked()
	}
	full := c.path(identifier)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		c.mu.Unlock()
		return err
	}
	c.totalSize += int64(len(data))
	// Stamp the memory copy with the file's own mtime so both layers
	// age identically.
	mtime := time.Now()
	if st, err := os.Stat(full); err == nil {
		mtime = st.ModTime()
	}
	mem := c.mem
	c.mu.Unlock()

	if mem != nil {
		_, _ = mem.Set(context.Background(), util.EncodeName(identifier),
			frameBlob(mtime, data), int64(len(data)), c.maxAge)
	}
	return nil
}

// Fetch returns the stored bytes when a blob exists and its age is within
// maxAge. A blob found but older than maxAge is deleted on the spot
// (staleness is a signal to reclaim space) and reported as a miss.
func (c *Cache) Fetch(identifier string, maxAge time.Duration) ([]byte, bool) {
	name := util.EncodeName(identifier)
	if c.mem != nil {
		if raw, ok, _ := c.mem.Get(context.Background(), name); ok {
			if mtime, data, ok := unframeBlob(raw); ok && time.Since(mtime) <= maxAge {
				return data, true
			}
			_ = c.mem.Del(context.Background(), name)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	full := filepath.Join(c.dir, name)
	st, err := os.Stat(full)
	if err != nil {
		return nil, false
	}
	if time.Since(st.ModTime()) > maxAge {
		c.removeOutdatedLocked(full)
		return nil, false
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Find resolves the identifier to its on-disk path without an age check.
func (c *Cache) Find(identifier string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	full := c.path(identifier)
	if _, err := os.Stat(full); err != nil {
		return "", false
	}
	return full, true
}

// removeOutdatedLocked drops a stale file and its share of the running
// total.
func (c *Cache) removeOutdatedLocked(full string) {
	if st, err := os.Stat(full); err == nil {
		c.totalSize -= st.Size()
	}
	_ = os.Remove(full)
}

// Cleanup scans the whole store once: files older than the general max
// age are deleted and the running size total is recomputed. A store still
// over the size cap afterwards is flushed.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
}

func (c *Cache) cleanupLocked() {
	c.cleaned = true
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	c.totalSize = 0
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		full := filepath.Join(c.dir, de.Name())
		st, err := os.Stat(full)
		if err != nil {
			continue
		}
		if time.Since(st.ModTime()) > c.maxAge {
			_ = os.Remove(full)
		} else {
			c.totalSize += st.Size()
		}
	}
	if c.totalSize >= c.maxSize {
		c.flushLocked()
	}
}

// Flush removes every blob in the store.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Cache) flushLocked() error {
	c.totalSize = 0
	if err := os.RemoveAll(c.dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	if c.mem != nil {
		_ = c.mem.Reset(context.Background())
	}
	c.log.Debug("blob store flushed", stagcache.Fields{"dir": c.dir})
	return os.MkdirAll(c.dir, 0o755)
}

// StoreContext is Store, suspendable on ctx: the blocking file write runs
// on its own goroutine.
func (c *Cache) StoreContext(ctx context.Context, identifier string, data []byte) error {
	ch := make(chan error, 1)
	go func() { ch <- c.Store(identifier, data) }()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchContext is Fetch, suspendable on ctx.
func (c *Cache) FetchContext(ctx context.Context, identifier string, maxAge time.Duration) ([]byte, bool, error) {
	type res struct {
		data []byte
		ok   bool
	}
	ch := make(chan res, 1)
	go func() {
		data, ok := c.Fetch(identifier, maxAge)
		ch <- res{data, ok}
	}()
	select {
	case r := <-ch:
		return r.data, r.ok, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Memory-layer framing: mtime(unix nano, u64 be) | blob. The timestamp
// rides with the bytes so per-call maxAge checks work without a stat.
func frameBlob(mtime time.Time, data []byte) []byte {
	out := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(out[:8], uint64(mtime.UnixNano()))
	copy(out[8:], data)
	return out
}

func unframeBlob(raw []byte) (time.Time, []byte, bool) {
	if len(raw) < 8 {
		return time.Time{}, nil, false
	}
	ns := int64(binary.BigEndian.Uint64(raw[:8]))
	return time.Unix(0, ns), raw[8:], true
}
