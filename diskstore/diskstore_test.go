package diskstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/unkn0wn-root/stagcache/bundle"
	"github.com/unkn0wn-root/stagcache/value"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := New(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSetAndGet(t *testing.T) {
	s := newTestStore(t, Options{})
	if err := s.Set("key1", value.Text("value1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get("key1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got, _ := v.AsText(); got != "value1" {
		t.Fatalf("got %q", got)
	}
}

func TestGetMissingIsMiss(t *testing.T) {
	s := newTestStore(t, Options{})
	if _, ok, err := s.Get("absent"); ok || err != nil {
		t.Fatalf("want clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestStoreVersionIsolation(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir, Options{Version: "1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s1.Set("versioned", value.Text("v1_data")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := s1.Get("versioned"); !ok {
		t.Fatalf("same-version read must hit")
	}

	s2, err := New(dir, Options{Version: "2"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok, _ := s2.Get("versioned"); ok {
		t.Fatalf("different-version read must miss")
	}
}

func TestUnversionedEntryMatchesAnyRequest(t *testing.T) {
	s := newTestStore(t, Options{})
	if err := s.Set("free", value.Int(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := s.GetVersion("free", "9"); !ok {
		t.Fatalf("entry written with no version must match any request")
	}
}

func TestKeyVersionSuffix(t *testing.T) {
	s := newTestStore(t, Options{})
	if err := s.Set("mykey@1", value.Text("one")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := s.Get("mykey@1"); !ok {
		t.Fatalf("matching suffix must hit")
	}
	if _, ok, _ := s.Get("mykey@2"); ok {
		t.Fatalf("mismatched suffix must miss")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, Options{})
	_ = s.Set("to_delete", value.Text("data"))
	existed, err := s.Delete("to_delete")
	if err != nil || !existed {
		t.Fatalf("Delete: existed=%v err=%v", existed, err)
	}
	existed, err = s.Delete("to_delete")
	if err != nil || existed {
		t.Fatalf("second Delete: existed=%v err=%v", existed, err)
	}
	if _, ok, _ := s.Get("to_delete"); ok {
		t.Fatalf("entry survived delete")
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t, Options{})
	_ = s.Set("key1", value.Text("value1"))
	_ = s.Set("key2", value.Text("value2"))
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s.Contains("key1") || s.Contains("key2") {
		t.Fatalf("entries survived clear")
	}
}

func TestContains(t *testing.T) {
	s := newTestStore(t, Options{})
	_ = s.Set("exists", value.Text("value"))
	if !s.Contains("exists") {
		t.Fatalf("Contains false for live entry")
	}
	if s.Contains("not_exists") {
		t.Fatalf("Contains true for missing entry")
	}
}

func TestHostileKeysAreSafeFilenames(t *testing.T) {
	s := newTestStore(t, Options{})
	key := "../../etc/passwd?a=1&b=.."
	if err := s.Set(key, value.Int(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := s.Get(key); !ok {
		t.Fatalf("hostile key must round-trip")
	}
	// The entry must live inside the store dir.
	if _, err := os.Stat(filepath.Join(s.Dir(), EncodeName(key))); err != nil {
		t.Fatalf("entry file not in store dir: %v", err)
	}
}

func TestEncodeNameDeterministic(t *testing.T) {
	if EncodeName("a") != EncodeName("a") {
		t.Fatalf("hash not deterministic")
	}
	if EncodeName("a") == EncodeName("b") {
		t.Fatalf("distinct keys collide")
	}
}

func TestUnsupportedFormatVersionIsHardError(t *testing.T) {
	s := newTestStore(t, Options{})
	raw := []byte(`{"format_version": 999, "version": null, "data": {}}`)
	if err := os.WriteFile(filepath.Join(s.Dir(), EncodeName("poison")), raw, 0o644); err != nil {
		t.Fatalf("plant entry: %v", err)
	}
	_, ok, err := s.Get("poison")
	var fe *bundle.FormatError
	if ok || !errors.As(err, &fe) {
		t.Fatalf("want *FormatError, got ok=%v err=%v", ok, err)
	}
}

func TestGarbageEntryIsMissNotError(t *testing.T) {
	s := newTestStore(t, Options{})
	if err := os.WriteFile(filepath.Join(s.Dir(), EncodeName("junk")), []byte("not json"), 0o644); err != nil {
		t.Fatalf("plant entry: %v", err)
	}
	if _, ok, err := s.Get("junk"); ok || err != nil {
		t.Fatalf("unreadable entry must be a clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	s := newTestStore(t, Options{})
	for i := 0; i < 5; i++ {
		if err := s.Set("key", value.Int(int64(i))); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	dirents, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(dirents) != 1 {
		t.Fatalf("want exactly the entry file, found %d files", len(dirents))
	}
}

func TestContextVariants(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	if err := s.SetContext(ctx, "k", value.Text("v")); err != nil {
		t.Fatalf("SetContext: %v", err)
	}
	v, ok, err := s.GetContext(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("GetContext: ok=%v err=%v", ok, err)
	}
	if got, _ := v.AsText(); got != "v" {
		t.Fatalf("got %q", got)
	}
	if ok, err := s.ContainsContext(ctx, "k"); err != nil || !ok {
		t.Fatalf("ContainsContext: ok=%v err=%v", ok, err)
	}
	if existed, err := s.DeleteContext(ctx, "k"); err != nil || !existed {
		t.Fatalf("DeleteContext: existed=%v err=%v", existed, err)
	}
	if err := s.ClearContext(ctx); err != nil {
		t.Fatalf("ClearContext: %v", err)
	}
}

func TestContextVariantsRespectCancellation(t *testing.T) {
	s := newTestStore(t, Options{})
	_ = s.Set("live", value.Text("v"))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := s.GetContext(canceled, "live"); !errors.Is(err, context.Canceled) {
		t.Fatalf("GetContext: %v", err)
	}
	if err := s.SetContext(canceled, "blocked", value.Int(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("SetContext: %v", err)
	}
	if _, err := s.DeleteContext(canceled, "live"); !errors.Is(err, context.Canceled) {
		t.Fatalf("DeleteContext: %v", err)
	}
	if err := s.ClearContext(canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("ClearContext: %v", err)
	}
	if _, err := s.ContainsContext(canceled, "live"); !errors.Is(err, context.Canceled) {
		t.Fatalf("ContainsContext: %v", err)
	}

	// Short-circuited calls must not have touched the store.
	if !s.Contains("live") {
		t.Fatalf("entry deleted despite canceled context")
	}
	if s.Contains("blocked") {
		t.Fatalf("entry written despite canceled context")
	}
}

func TestDefaultCodecIsJSONEnvelope(t *testing.T) {
	s := newTestStore(t, Options{})
	_ = s.Set("k", value.Int(1))
	raw, err := os.ReadFile(filepath.Join(s.Dir(), EncodeName("k")))
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if raw[0] != '{' {
		t.Fatalf("entry is not a JSON object: %q", raw[:1])
	}
}

func TestAlternateCodecRoundTrips(t *testing.T) {
	s := newTestStore(t, Options{Codec: bundle.MustNew(bundle.FormatCBOR)})
	want := value.MapOf(map[string]value.Value{"blob": value.Bytes([]byte{1, 2, 3})})
	if err := s.Set("k", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !got.Equal(want) {
		t.Fatalf("round-trip mismatch: %s", got)
	}
}
