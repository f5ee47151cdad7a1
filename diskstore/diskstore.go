// Package diskstore persists single key/value entries as individually
// named files. Each entry file holds a bundle envelope carrying the entry
// version it was written under; reads that supply a different version are
// misses, not errors. Filenames are content hashes of the key, so any key
// string is a safe filename.
//
// Writes go through a temp file and an atomic rename: a crash mid-write
// never leaves a corrupt visible entry.
package diskstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/unkn0wn-root/stagcache/bundle"
	"github.com/unkn0wn-root/stagcache/internal/util"
	"github.com/unkn0wn-root/stagcache/value"
)

// Store is a one-file-per-key entry store rooted at a single directory.
// Safe for concurrent use: every mutation is a whole-file atomic replace.
type Store struct {
	dir     string
	version string // default entry version applied by Set and checked by Get
	codec   bundle.Codec
}

// Options tune a Store. The zero value is usable.
type Options struct {
	// Version is the default entry version. A store constructed with a
	// different version will miss entries this store writes.
	Version string
	// Codec selects the envelope payload format; zero means JSON.
	Codec bundle.Codec
}

// New creates the backing directory if needed and returns a Store.
func New(dir string, opts Options) (*Store, error) {
	if dir == "" {
		return nil, errors.New("diskstore: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("diskstore: create %s: %w", dir, err)
	}
	codec := opts.Codec
	if codec == (bundle.Codec{}) {
		codec = bundle.MustNew(bundle.FormatJSON)
	}
	return &Store{dir: dir, version: opts.Version, codec: codec}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Version returns the store's default entry version.
func (s *Store) Version() string { return s.version }

// EncodeName maps a key to its entry filename.
func EncodeName(key string) string { return util.EncodeName(key) }

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, util.EncodeName(key))
}

// Get reads the entry for key using the store's default version. The key
// may carry a "name@version" suffix, which overrides the default.
// A missing or unreadable file and a version mismatch are misses
// ((zero, false, nil)); an envelope with an unsupported format_version is
// a hard *bundle.FormatError.
func (s *Store) Get(key string) (value.Value, bool, error) {
	name, ver := util.SplitKeyVersion(key)
	if ver == "" {
		ver = s.version
	}
	return s.GetVersion(name, ver)
}

// GetVersion reads the entry for key, requiring the stored entry version
// to match version. An entry stored with no version matches any request;
// a request with version "" matches any entry.
func (s *Store) GetVersion(key, version string) (value.Value, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		return value.Null(), false, nil
	}
	v, stored, err := s.codec.DecodeEntry(raw)
	if err != nil {
		var fe *bundle.FormatError
		if errors.As(err, &fe) {
			return value.Null(), false, err
		}
		// Unparseable entry content is treated like an unreadable file.
		return value.Null(), false, nil
	}
	if stored != "" && version != "" && stored != version {
		return value.Null(), false, nil
	}
	return v, true, nil
}

// Set writes the entry for key under the store's default version (or the
// key's "@version" suffix when present).
func (s *Store) Set(key string, v value.Value) error {
	name, ver := util.SplitKeyVersion(key)
	if ver == "" {
		ver = s.version
	}
	return s.SetVersion(name, v, ver)
}

// SetVersion writes the entry for key tagged with the given version.
// The write is atomic: either the previous entry or the new one is
// visible, never a partial file.
func (s *Store) SetVersion(key string, v value.Value, version string) error {
	raw, err := s.codec.EncodeEntry(v, version)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("diskstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("diskstore: write entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("diskstore: close entry: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("diskstore: publish entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key, reporting whether one existed.
func (s *Store) Delete(key string) (bool, error) {
	name, _ := util.SplitKeyVersion(key)
	err := os.Remove(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("diskstore: delete entry: %w", err)
	}
	return true, nil
}

// Clear removes every entry file under the store's directory.
func (s *Store) Clear() error {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("diskstore: list entries: %w", err)
	}
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, de.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("diskstore: clear: %w", err)
		}
	}
	return nil
}

// Contains reports whether an entry file exists for key. No version check.
func (s *Store) Contains(key string) bool {
	name, _ := util.SplitKeyVersion(key)
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Context variants. Each runs the blocking file operation on its own
// goroutine and resumes when it completes or ctx is done, so callers on a
// cooperative scheduler are never blocked by disk latency. An already-done
// context short-circuits before any file I/O; cancellation mid-operation
// abandons the wait while the operation runs to completion (atomic replace
// keeps the store consistent either way).

type getResult struct {
	v   value.Value
	ok  bool
	err error
}

// GetContext is Get, suspendable on ctx.
func (s *Store) GetContext(ctx context.Context, key string) (value.Value, bool, error) {
	if err := ctx.Err(); err != nil {
		return value.Null(), false, err
	}
	ch := make(chan getResult, 1)
	go func() {
		v, ok, err := s.Get(key)
		ch <- getResult{v, ok, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.ok, r.err
	case <-ctx.Done():
		return value.Null(), false, ctx.Err()
	}
}

// SetContext is Set, suspendable on ctx.
func (s *Store) SetContext(ctx context.Context, key string, v value.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := make(chan error, 1)
	go func() { ch <- s.Set(key, v) }()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeleteContext is Delete, suspendable on ctx.
func (s *Store) DeleteContext(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	type res struct {
		ok  bool
		err error
	}
	ch := make(chan res, 1)
	go func() {
		ok, err := s.Delete(key)
		ch <- res{ok, err}
	}()
	select {
	case r := <-ch:
		return r.ok, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ClearContext is Clear, suspendable on ctx.
func (s *Store) ClearContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := make(chan error, 1)
	go func() { ch <- s.Clear() }()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ContainsContext is Contains, suspendable on ctx.
func (s *Store) ContainsContext(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ch := make(chan bool, 1)
	go func() { ch <- s.Contains(key) }()
	select {
	case ok := <-ch:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
