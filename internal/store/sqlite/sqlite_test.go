// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package sqlite

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/shellcache/internal/store"
	"github.com/staranto/shellcache/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "shellcache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Storage { return openTestStore(t) })
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shellcache.db")

	s, err := Open(path)
	require.NoError(t, err)
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)
	key := store.Key{Method: http.MethodGet, URL: "https://app.example.com/"}
	require.NoError(t, c.Put(ctx, key, storetest.Entry(key, "persisted")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	c, err = s.Open(ctx, "v1")
	require.NoError(t, err)
	got, err := c.Match(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got.Body))
}

func TestPutAfterDeleteFails(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)

	_, err = s.Delete(ctx, "v1")
	require.NoError(t, err)

	key := store.Key{Method: http.MethodGet, URL: "https://app.example.com/"}
	assert.Error(t, c.Put(ctx, key, storetest.Entry(key, "orphan")))

	has, err := s.Has(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCloseNil(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
}
