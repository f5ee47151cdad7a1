package stagcache

import (
	"fmt"
	"sync"

	"github.com/unkn0wn-root/stagcache/bundle"
	"github.com/unkn0wn-root/stagcache/diskstore"
)

// Options tune the behavior of a Cache. All fields are optional; the zero
// value yields a memory-only cache.
type Options struct {
	// CacheDir roots the disk-resident tier ('$'-prefixed keys). Empty
	// disables the tier; '$' keys then live in memory like any other.
	CacheDir string

	// Version is the default entry version applied when neither the key
	// nor the call supplies one.
	Version string

	// Codec selects the disk-tier payload format; zero means JSON.
	Codec bundle.Codec

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

// New constructs a Cache. With a CacheDir, the disk store for that
// directory is shared process-wide: two caches pointed at the same
// directory use the same store.
func New(opts Options) (*Cache, error) {
	c := &Cache{
		entries:  make(map[string]*entry),
		revs:     make(map[string]int64),
		volatile: make(map[string]struct{}),
		version:  opts.Version,
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.CacheDir != "" {
		store, err := sharedStore(opts.CacheDir, diskstore.Options{Codec: opts.Codec})
		if err != nil {
			return nil, fmt.Errorf("stagcache: disk tier: %w", err)
		}
		c.disk = store
	}
	return c, nil
}

// One disk store per distinct cache directory, shared across Cache
// instances in this process. The first construction wins the options.
var (
	storesMu sync.Mutex
	stores   = make(map[string]*diskstore.Store)
)

func sharedStore(dir string, opts diskstore.Options) (*diskstore.Store, error) {
	storesMu.Lock()
	defer storesMu.Unlock()
	if s, ok := stores[dir]; ok {
		return s, nil
	}
	s, err := diskstore.New(dir, opts)
	if err != nil {
		return nil, err
	}
	stores[dir] = s
	return s, nil
}

// entryConfig carries the per-call write/read knobs.
type entryConfig struct {
	version string
	keep    bool
}

// EntryOption tunes a single Get/Set/Memoize call.
type EntryOption func(*entryConfig)

// WithVersion attaches an explicit entry version. On write the entry is
// tagged with it; on read a live entry must carry exactly this version
// (entries written with no version match any request).
func WithVersion(v string) EntryOption {
	return func(cfg *entryConfig) { cfg.version = v }
}

// WithVersionPair composes a (major, minor) version pair via
// ComposeVersion, including the session-identifier substitution for a
// zero minor.
func WithVersionPair(major, minor string) EntryOption {
	return func(cfg *entryConfig) { cfg.version = ComposeVersion(major, minor) }
}

// WithKeep marks the written entry to survive Clear.
func WithKeep() EntryOption {
	return func(cfg *entryConfig) { cfg.keep = true }
}

func applyEntryOpts(opts []EntryOption) entryConfig {
	var cfg entryConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
