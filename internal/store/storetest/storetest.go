// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package storetest holds the behavior every store.Storage backend must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/shellcache/internal/store"
)

// Factory returns an empty Storage for one subtest.
type Factory func(t *testing.T) store.Storage

// Entry builds a small entry for key.
func Entry(key store.Key, body string) store.Entry {
	return store.Entry{
		Method:   key.Method,
		URL:      key.URL,
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": {"text/plain"}},
		Body:     []byte(body),
		StoredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Run exercises the Storage contract against backends created by newStorage.
func Run(t *testing.T, newStorage Factory) {
	ctx := context.Background()
	root := store.Key{Method: http.MethodGet, URL: "https://app.example.com/"}
	manifest := store.Key{Method: http.MethodGet, URL: "https://app.example.com/manifest.webmanifest"}

	t.Run("open creates generation", func(t *testing.T) {
		s := newStorage(t)

		has, err := s.Has(ctx, "v1")
		require.NoError(t, err)
		assert.False(t, has)

		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, "v1", c.Name())

		has, err = s.Has(ctx, "v1")
		require.NoError(t, err)
		assert.True(t, has)

		names, err := s.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"v1"}, names)
	})

	t.Run("match miss", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)

		_, err = c.Match(ctx, root)
		assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("put then match", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)

		want := Entry(root, "<html>shell</html>")
		require.NoError(t, c.Put(ctx, root, want))

		got, err := c.Match(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, want.Status, got.Status)
		assert.Equal(t, want.Body, got.Body)
		assert.Equal(t, "text/plain", got.Header.Get("Content-Type"))
		assert.Equal(t, root, got.Key())
		assert.True(t, want.StoredAt.Equal(got.StoredAt))
	})

	t.Run("put replaces", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)

		require.NoError(t, c.Put(ctx, root, Entry(root, "one")))
		require.NoError(t, c.Put(ctx, root, Entry(root, "two")))

		got, err := c.Match(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, "two", string(got.Body))

		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("method is part of the key", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)

		require.NoError(t, c.Put(ctx, root, Entry(root, "get")))
		head := store.Key{Method: http.MethodHead, URL: root.URL}
		_, err = c.Match(ctx, head)
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("keys", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)

		require.NoError(t, c.Put(ctx, root, Entry(root, "a")))
		require.NoError(t, c.Put(ctx, manifest, Entry(manifest, "b")))

		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []store.Key{root, manifest}, keys)
	})

	t.Run("generations are isolated", func(t *testing.T) {
		s := newStorage(t)
		v1, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		v2, err := s.Open(ctx, "v2")
		require.NoError(t, err)

		require.NoError(t, v1.Put(ctx, root, Entry(root, "old")))

		_, err = v2.Match(ctx, root)
		assert.True(t, errors.Is(err, store.ErrNotFound))

		reopened, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		got, err := reopened.Match(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, "old", string(got.Body))
	})

	t.Run("delete", func(t *testing.T) {
		s := newStorage(t)
		v1, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		_, err = s.Open(ctx, "v2")
		require.NoError(t, err)
		require.NoError(t, v1.Put(ctx, root, Entry(root, "old")))

		deleted, err := s.Delete(ctx, "v1")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Delete(ctx, "v1")
		require.NoError(t, err)
		assert.False(t, deleted, "second delete is a no-op")

		names, err := s.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"v2"}, names)

		// Reopening starts empty.
		v1, err = s.Open(ctx, "v1")
		require.NoError(t, err)
		keys, err := v1.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("names sorted", func(t *testing.T) {
		s := newStorage(t)
		for _, n := range []string{"v3", "v1", "v2"} {
			_, err := s.Open(ctx, n)
			require.NoError(t, err)
		}
		names, err := s.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"v1", "v2", "v3"}, names)
	})

	t.Run("invalid name", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.Open(ctx, "")
		assert.Error(t, err)
		_, err = s.Open(ctx, "a/b")
		assert.Error(t, err)
	})

	t.Run("concurrent puts", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)

		const n = 16
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				k := store.Key{Method: http.MethodGet, URL: fmt.Sprintf("https://app.example.com/static/%d.css", i)}
				errs <- c.Put(ctx, k, Entry(k, fmt.Sprint(i)))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, n)
	})

	t.Run("summarize", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		require.NoError(t, c.Put(ctx, root, Entry(root, "12345")))
		require.NoError(t, c.Put(ctx, manifest, Entry(manifest, "123")))

		sum, err := store.Summarize(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, "v1", sum.Name)
		assert.Equal(t, 2, sum.Entries)
		assert.Equal(t, int64(8), sum.Bytes)
	})
}
