package webcache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// memStore is a minimal in-memory provider.Provider for tests.
type memStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemStore() *memStore { return &memStore{m: make(map[string][]byte)} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.m[key] = cp
	return true, nil
}

func (s *memStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *memStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string][]byte)
	return nil
}

func (s *memStore) Close(_ context.Context) error { return nil }

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	if opts.BaseDir == "" {
		opts.BaseDir = t.TempDir()
	}
	if opts.AppName == "" {
		opts.AppName = "test_app"
	}
	return New(opts)
}

func TestStoreAndFetch(t *testing.T) {
	c := newTestCache(t, Options{})
	data := []byte("cached content")
	if err := c.Store("http://example.com/page", data); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, ok := c.Fetch("http://example.com/page", time.Hour)
	if !ok {
		t.Fatalf("fresh blob must hit")
	}
	if string(got) != string(data) {
		t.Fatalf("got %q", got)
	}
}

func TestFetchMissing(t *testing.T) {
	c := newTestCache(t, Options{})
	if _, ok := c.Fetch("http://example.com/nothing", time.Hour); ok {
		t.Fatalf("absent blob must miss")
	}
}

func TestFetchStaleDeletesFile(t *testing.T) {
	c := newTestCache(t, Options{})
	id := "http://example.com/old"
	if err := c.Store(id, []byte("old data")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	full := filepath.Join(c.Dir(), EncodedName(id))
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(full, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if _, ok := c.Fetch(id, time.Hour); ok {
		t.Fatalf("stale blob must miss")
	}
	if _, err := os.Stat(full); !os.IsNotExist(err) {
		t.Fatalf("stale file must be deleted, stat err = %v", err)
	}
	if _, ok := c.Find(id); ok {
		t.Fatalf("Find must miss after stale delete")
	}
}

func TestFind(t *testing.T) {
	c := newTestCache(t, Options{})
	_ = c.Store("http://example.com/a", []byte("data"))
	path, ok := c.Find("http://example.com/a")
	if !ok {
		t.Fatalf("Find miss")
	}
	if filepath.Base(path) != EncodedName("http://example.com/a") {
		t.Fatalf("path = %q", path)
	}
	if _, ok := c.Find("http://example.com/other"); ok {
		t.Fatalf("Find must miss absent blob")
	}
}

func TestTotalSizeTracksStores(t *testing.T) {
	c := newTestCache(t, Options{})
	_ = c.Store("a", make([]byte, 100))
	_ = c.Store("b", make([]byte, 50))
	if got := c.TotalSize(); got != 150 {
		t.Fatalf("TotalSize = %d", got)
	}
}

func TestCleanupRemovesOldFiles(t *testing.T) {
	c := newTestCache(t, Options{MaxAge: time.Hour})
	_ = c.Store("fresh", []byte("fresh data"))
	_ = c.Store("stale", []byte("stale data"))

	stale := filepath.Join(c.Dir(), EncodedName("stale"))
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	c.Cleanup()

	if _, ok := c.Find("stale"); ok {
		t.Fatalf("expired file survived cleanup")
	}
	if _, ok := c.Find("fresh"); !ok {
		t.Fatalf("fresh file removed by cleanup")
	}
	if got := c.TotalSize(); got != int64(len("fresh data")) {
		t.Fatalf("size not recomputed: %d", got)
	}
}

func TestSizeCapFlushesWholeStore(t *testing.T) {
	c := newTestCache(t, Options{MaxSize: 8})
	_ = c.Store("first", []byte("0123456789")) // over the cap already
	if err := c.Store("second", []byte("xy")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := c.Find("first"); ok {
		t.Fatalf("cap breach must flush earlier blobs")
	}
	if _, ok := c.Find("second"); !ok {
		t.Fatalf("post-flush store must land")
	}
}

func TestSetAppNameRenamespaces(t *testing.T) {
	base := t.TempDir()
	c := New(Options{BaseDir: base, AppName: "app_one"})
	_ = c.Store("blob", []byte("data"))
	oldDir := c.Dir()

	c.SetAppName("app_two")
	if c.Dir() == oldDir {
		t.Fatalf("directory unchanged")
	}
	if filepath.Base(c.Dir()) != "app_two" {
		t.Fatalf("dir = %q", c.Dir())
	}
	if _, ok := c.Find("blob"); ok {
		t.Fatalf("old namespace blob visible under new name")
	}
	_ = c.Store("blob2", []byte("data2"))
	if _, ok := c.Fetch("blob2", time.Hour); !ok {
		t.Fatalf("store under new namespace failed")
	}
}

func TestMemoryLayerServesWithoutDisk(t *testing.T) {
	mem := newMemStore()
	c := newTestCache(t, Options{Memory: mem})
	id := "http://example.com/hot"
	data := []byte("hot blob")
	_ = c.Store(id, data)

	// Remove the backing file; the memory layer must still answer.
	if err := os.Remove(filepath.Join(c.Dir(), EncodedName(id))); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got, ok := c.Fetch(id, time.Hour)
	if !ok {
		t.Fatalf("memory layer did not serve")
	}
	if string(got) != string(data) {
		t.Fatalf("got %q", got)
	}
}

func TestMemoryLayerHonorsMaxAge(t *testing.T) {
	mem := newMemStore()
	c := newTestCache(t, Options{Memory: mem})
	id := "http://example.com/aging"
	_ = c.Store(id, []byte("data"))
	_ = os.Remove(filepath.Join(c.Dir(), EncodedName(id)))

	// Zero tolerance: even a just-written blob is too old.
	if _, ok := c.Fetch(id, 0); ok {
		t.Fatalf("memory blob older than maxAge must miss")
	}
	if mem.len() != 0 {
		t.Fatalf("stale memory entry not evicted")
	}
}

func TestMemoryLayerStampMatchesFileMtime(t *testing.T) {
	mem := newMemStore()
	c := newTestCache(t, Options{Memory: mem})
	id := "http://example.com/stamped"
	if err := c.Store(id, []byte("data")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	st, err := os.Stat(filepath.Join(c.Dir(), EncodedName(id)))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	raw, ok, _ := mem.Get(context.Background(), EncodedName(id))
	if !ok {
		t.Fatalf("memory layer missing the blob")
	}
	mtime, _, ok := unframeBlob(raw)
	if !ok {
		t.Fatalf("bad frame")
	}
	if mtime.UnixNano() != st.ModTime().UnixNano() {
		t.Fatalf("memory stamp %v != file mtime %v", mtime, st.ModTime())
	}
}

func TestFlushClearsMemoryLayer(t *testing.T) {
	mem := newMemStore()
	c := newTestCache(t, Options{Memory: mem})
	_ = c.Store("a", []byte("one"))
	_ = c.Store("b", []byte("two"))
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if mem.len() != 0 {
		t.Fatalf("memory layer survived flush: %d entries", mem.len())
	}
	if _, ok := c.Fetch("a", time.Hour); ok {
		t.Fatalf("blob survived flush")
	}
	if got := c.TotalSize(); got != 0 {
		t.Fatalf("TotalSize = %d after flush", got)
	}
}

func TestEncodedNameStable(t *testing.T) {
	a := EncodedName("http://example.com/x")
	b := EncodedName("http://example.com/x")
	if a != b {
		t.Fatalf("encoding not deterministic")
	}
	if a == EncodedName("http://example.com/y") {
		t.Fatalf("distinct identifiers collide")
	}
	if filepath.Base(a) != a || a == "" {
		t.Fatalf("encoded name must be a bare filename: %q", a)
	}
}

func TestContextVariants(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()
	if err := c.StoreContext(ctx, "ctx_blob", []byte("payload")); err != nil {
		t.Fatalf("StoreContext: %v", err)
	}
	data, ok, err := c.FetchContext(ctx, "ctx_blob", time.Hour)
	if err != nil || !ok {
		t.Fatalf("FetchContext: ok=%v err=%v", ok, err)
	}
	if string(data) != "payload" {
		t.Fatalf("got %q", data)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	c.mu.Lock() // hold the lock so the fetch cannot win the race
	_, _, err = c.FetchContext(canceled, "ctx_blob", time.Hour)
	c.mu.Unlock()
	if err == nil {
		t.Fatalf("canceled context must error")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	now := time.Now()
	raw := frameBlob(now, []byte("abc"))
	mtime, data, ok := unframeBlob(raw)
	if !ok {
		t.Fatalf("unframe failed")
	}
	if string(data) != "abc" {
		t.Fatalf("data = %q", data)
	}
	if mtime.UnixNano() != now.UnixNano() {
		t.Fatalf("mtime drifted: %v vs %v", mtime, now)
	}
	if _, _, ok := unframeBlob([]byte("short")); ok {
		t.Fatalf("truncated frame must be rejected")
	}
}
