// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package memory

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/shellcache/internal/store"
	"github.com/staranto/shellcache/internal/store/storetest"
)

func TestStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Storage { return New() })
}

func TestDeletedHandleIsDetached(t *testing.T) {
	ctx := context.Background()
	s := New()
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)

	key := store.Key{Method: http.MethodGet, URL: "https://app.example.com/"}
	require.NoError(t, c.Put(ctx, key, storetest.Entry(key, "x")))

	_, err = s.Delete(ctx, "v1")
	require.NoError(t, err)

	_, err = c.Match(ctx, key)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
