// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package disk

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/shellcache/internal/store"
	"github.com/staranto/shellcache/internal/store/storetest"
)

func TestStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Storage {
		s, err := New(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestDir(t *testing.T) {
	t.Setenv("SHELLCACHE_CACHE_DIR", "/tmp/custom-cache")
	dir, ok := Dir()
	assert.True(t, ok)
	assert.Equal(t, "/tmp/custom-cache", dir)
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"1", true},
		{"true", true},
		{"0", false},
		{"false", false},
	}
	for _, tt := range tests {
		t.Setenv("SHELLCACHE_CACHE", tt.value)
		assert.Equal(t, tt.want, Enabled(), "SHELLCACHE_CACHE=%q", tt.value)
	}
}

func TestEnsureBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "cache")
	t.Setenv("SHELLCACHE_CACHE_DIR", base)
	t.Setenv("SHELLCACHE_CACHE", "")

	got, ok, err := EnsureBaseDir()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, base, got)
	assert.DirExists(t, base)

	t.Setenv("SHELLCACHE_CACHE", "0")
	_, ok, err = EnsureBaseDir()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestEntryFileName(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)

	key := store.Key{Method: http.MethodGet, URL: "https://app.example.com/"}
	require.NoError(t, c.Put(ctx, key, storetest.Entry(key, "x")))

	assert.FileExists(t, filepath.Join(s.Base, "v1", encodeKey("GET https://app.example.com/")))
	assert.Len(t, encodeKey("anything"), 32)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	c, err := s.Open(ctx, "v2")
	require.NoError(t, err)

	shell := store.Key{Method: http.MethodGet, URL: "https://app.example.com/"}
	require.NoError(t, c.Put(ctx, shell, storetest.Entry(shell, "shell")))

	old := time.Now().Add(-48 * time.Hour)
	entryPath := filepath.Join(s.Base, "v2", encodeKey(shell.String()))
	tmpPath := filepath.Join(s.Base, "v2", ".put-123")
	strayPath := filepath.Join(s.Base, "leftover")
	freshTmp := filepath.Join(s.Base, "v2", ".put-456")
	for _, p := range []string{tmpPath, strayPath, freshTmp} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	for _, p := range []string{entryPath, tmpPath, strayPath} {
		require.NoError(t, os.Chtimes(p, old, old))
	}

	require.NoError(t, s.Purge(0), "disabled purge is a no-op")
	assert.FileExists(t, tmpPath)

	require.NoError(t, s.Purge(24))
	assert.NoFileExists(t, tmpPath)
	assert.NoFileExists(t, strayPath)
	assert.FileExists(t, freshTmp)

	_, err = c.Match(ctx, shell)
	assert.NoError(t, err, "generation entries survive purge")

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)
}

func TestCorruptEntry(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)

	key := store.Key{Method: http.MethodGet, URL: "https://app.example.com/"}
	require.NoError(t, os.WriteFile(filepath.Join(s.Base, "v1", encodeKey(key.String())), []byte("{"), 0o600))

	_, err = c.Match(ctx, key)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrNotFound))

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
