// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package disk stores generations as directories beneath a base cache dir.
// Each entry is one JSON file named by the MD5 of its clear-text key.
package disk

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/staranto/shellcache/internal/store"
)

// Dir resolves the base cache directory.
// Precedence:
//  1. SHELLCACHE_CACHE_DIR, if set and non-empty
//  2. os.UserCacheDir()/shellcache
//
// Returns ("", false) if a base cannot be resolved (treat as disabled).
func Dir() (string, bool) {
	if c, ok := os.LookupEnv("SHELLCACHE_CACHE_DIR"); ok && c != "" {
		return c, true
	}
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "shellcache"), true
	}
	return "", false
}

// Enabled returns true unless SHELLCACHE_CACHE explicitly disables it ("0"/"false").
func Enabled() bool {
	enabled, _ := os.LookupEnv("SHELLCACHE_CACHE")
	return enabled == "" || (enabled != "0" && enabled != "false")
}

// EnsureBaseDir creates the base cache directory if caching is enabled and
// a base path can be resolved. Returns the path, whether it is usable, and an
// error if creation failed.
func EnsureBaseDir() (string, bool, error) {
	if !Enabled() {
		return "", false, nil
	}
	base, ok := Dir()
	if !ok {
		return "", false, nil
	}
	if err := os.MkdirAll(base, 0o755); err != nil { //nolint:mnd
		return base, false, fmt.Errorf("failed to create cache base directory: %w", err)
	}
	return base, true, nil
}

// Storage keeps one subdirectory per generation under Base.
type Storage struct {
	Base string
}

var _ store.Storage = (*Storage)(nil)

// New returns a Storage rooted at base. An empty base resolves through Dir.
func New(base string) (*Storage, error) {
	if base == "" {
		b, ok := Dir()
		if !ok {
			return nil, errors.New("no cache directory could be resolved")
		}
		base = b
	}
	if err := os.MkdirAll(base, 0o755); err != nil { //nolint:mnd
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Storage{Base: base}, nil
}

func (s *Storage) genDir(name string) string {
	return filepath.Join(s.Base, name)
}

func (s *Storage) Open(ctx context.Context, name string) (store.Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.ValidName(name); err != nil {
		return nil, err
	}
	dir := s.genDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return nil, fmt.Errorf("failed to create generation directory: %w", err)
	}
	return &cache{name: name, dir: dir}, nil
}

func (s *Storage) Has(_ context.Context, name string) (bool, error) {
	if store.ValidName(name) != nil {
		return false, nil
	}
	info, err := os.Stat(s.genDir(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (s *Storage) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Base)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	ok, err := s.Has(ctx, name)
	if err != nil || !ok {
		return false, err
	}
	if err := os.RemoveAll(s.genDir(name)); err != nil {
		return false, fmt.Errorf("failed to remove generation %s: %w", name, err)
	}
	log.Debugf("removed generation directory %s", s.genDir(name))
	return true, nil
}

// Purge removes debris older than the provided number of hours: leftover
// .put-* temp files from interrupted writes and stray files beside the
// generation directories. Entries of a generation are never touched; a
// generation only goes away through Delete. If hours <= 0 it is a no-op.
func (s *Storage) Purge(hours int) error {
	if hours <= 0 {
		log.Debug("cache cleaning disabled")
		return nil
	}
	maxAge := time.Duration(hours) * time.Hour
	if err := filepath.Walk(s.Base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || !isDebris(s.Base, path) || time.Since(info.ModTime()) <= maxAge {
			return nil
		}
		if err := os.Remove(path); err == nil {
			log.Debugf("removed cache file %s", path)
		} else {
			log.WithError(err).Warnf("failed to remove cache file %s", path)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	return nil
}

// isDebris reports whether path is a temp file or lies directly in base.
func isDebris(base, path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".put-") {
		return true
	}
	return filepath.Dir(path) == filepath.Clean(base)
}

type cache struct {
	name string
	dir  string
}

func (c *cache) Name() string { return c.name }

func (c *cache) Match(ctx context.Context, key store.Key) (store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return store.Entry{}, err
	}
	return readEntry(filepath.Join(c.dir, encodeKey(key.String())))
}

// Put writes to a temp file and renames it over the target so concurrent
// readers never observe a partial entry.
func (c *cache) Put(ctx context.Context, key store.Key, entry store.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry.Method, entry.URL = key.Method, key.URL
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, encodeKey(key.String()))); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}

func (c *cache) Keys(ctx context.Context) ([]store.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read generation %s: %w", c.name, err)
	}
	keys := make([]store.Key, 0, len(files))
	for _, f := range files {
		if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
			continue
		}
		e, err := readEntry(filepath.Join(c.dir, f.Name()))
		if err != nil {
			// Purged between ReadDir and read, or a foreign file.
			log.WithError(err).Debugf("skipping %s", f.Name())
			continue
		}
		keys = append(keys, e.Key())
	}
	return keys, nil
}

func readEntry(p string) (store.Entry, error) {
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return store.Entry{}, store.ErrNotFound
	}
	if err != nil {
		return store.Entry{}, fmt.Errorf("failed to read cache entry: %w", err)
	}
	var e store.Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return store.Entry{}, fmt.Errorf("failed to decode cache entry %s: %w", p, err)
	}
	return e, nil
}

// encodeKey hashes k with MD5 and returns the hex string.
func encodeKey(k string) string {
	h := md5.New()
	_, _ = h.Write([]byte(k))
	return hex.EncodeToString(h.Sum(nil))
}
