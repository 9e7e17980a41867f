// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package shell

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/shellcache/internal/store"
	"github.com/staranto/shellcache/internal/store/memory"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{
			name:    "missing generation",
			opts:    Options{Origin: testOrigin, Storage: memory.New()},
			wantErr: "generation name is required",
		},
		{
			name:    "missing storage",
			opts:    Options{Generation: "v1", Origin: testOrigin},
			wantErr: "cache storage is required",
		},
		{
			name:    "relative origin",
			opts:    Options{Generation: "v1", Origin: "/app", Storage: memory.New()},
			wantErr: "must be an http or https URL",
		},
		{
			name:    "relative shell asset",
			opts:    Options{Generation: "v1", Origin: testOrigin, Storage: memory.New(), Shell: []string{"index.html"}},
			wantErr: "must start with /",
		},
		{
			name:    "shell asset under bypass",
			opts:    Options{Generation: "v1", Origin: testOrigin, Storage: memory.New(), Shell: []string{"/", "/download/app.apk"}},
			wantErr: "under a bypass prefix",
		},
		{
			name:    "bad bypass prefix",
			opts:    Options{Generation: "v1", Origin: testOrigin, Storage: memory.New(), Bypass: []string{"result/"}},
			wantErr: "must start with /",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	w, err := New(Options{Generation: "v1", Origin: "https://freqshift.example.com/app/", Storage: memory.New()})
	require.NoError(t, err)

	assert.Equal(t, StateNew, w.State())
	assert.Equal(t, "v1", w.Generation())
	assert.Equal(t, DefaultShell, w.Shell())
	assert.Equal(t, DefaultBypass, w.Policy().Prefixes())
	assert.Equal(t, "https://freqshift.example.com/", w.Origin().String())
}

func TestNew_BypassAddsToDefaults(t *testing.T) {
	tests := []struct {
		name   string
		bypass []string
		extra  string
	}{
		{name: "nil", bypass: nil},
		{name: "empty", bypass: []string{}},
		{name: "extra prefix", bypass: []string{"/api/"}, extra: "/api/jobs"},
		{name: "repeated default", bypass: []string{"/result/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(Options{Generation: "v1", Origin: testOrigin, Storage: memory.New(), Bypass: tt.bypass})
			require.NoError(t, err)

			p := w.Policy()
			assert.True(t, p.Bypass("/result/abc123"))
			assert.True(t, p.Bypass("/download/abc123.wav"))
			assert.False(t, p.Bypass("/"))
			if tt.extra != "" {
				assert.True(t, p.Bypass(tt.extra))
			}
			assert.Equal(t, DefaultBypass, p.Prefixes()[:len(DefaultBypass)])
		})
	}
}

func TestFetch_EmptyBypassStillLive(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	net := newFakeNet()
	w, err := New(Options{Generation: "v2", Origin: testOrigin, Storage: s, Network: net, Bypass: []string{}})
	require.NoError(t, err)
	require.NoError(t, w.Install(ctx))
	require.NoError(t, w.Activate(ctx))

	target := testOrigin + "/result/abc123"
	for i := 1; i <= 2; i++ {
		res, err := get(t, w, target)
		require.NoError(t, err)
		assert.Equal(t, SourceBypass, res.Source)
		assert.Equal(t, fmt.Sprintf("/result/abc123#%d", i), readBody(t, res.Response))
	}
	for _, k := range keysOf(t, s, "v2") {
		assert.NotContains(t, k, "/result/")
	}
}

func TestFetch_FragmentHitsStoredEntry(t *testing.T) {
	net := newFakeNet()
	w := activeWorker(t, memory.New(), net)

	res, err := get(t, w, testOrigin+"/#about")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, "/#1", readBody(t, res.Response))
	assert.Equal(t, 1, net.Calls(testOrigin+"/"))
}

func TestInstall_StoresShell(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	net := newFakeNet()
	w := newTestWorker(t, "v1", s, net)

	require.NoError(t, w.Install(ctx))
	assert.Equal(t, StateInstalled, w.State())

	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)
	for _, p := range []string{"/", "/manifest.webmanifest", "/static/icons/icon-192.png", "/static/icons/icon-512.png"} {
		key := store.Key{Method: http.MethodGet, URL: testOrigin + p}
		e, err := c.Match(ctx, key)
		require.NoError(t, err, "missing %s", key)
		assert.Equal(t, http.StatusOK, e.Status)
		assert.Equal(t, p+"#1", string(e.Body))
	}
	assert.Equal(t, 4, net.Total())
}

func TestInstall_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	net := newFakeNet()
	net.fail["/static/icons/icon-512.png"] = true
	w := newTestWorker(t, "v1", s, net)

	err := w.Install(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInstall))
	assert.Contains(t, err.Error(), "/static/icons/icon-512.png")
	assert.Equal(t, StateRedundant, w.State())

	has, err := s.Has(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, has, "no partial generation is committed")
}

func TestInstall_RejectsErrorStatus(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	net := newFakeNet()
	net.status["/manifest.webmanifest"] = http.StatusNotFound
	w := newTestWorker(t, "v1", s, net)

	err := w.Install(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestInstall_PutFailureDiscardsGeneration(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	w := newTestWorker(t, "v1", failingPuts{inner}, newFakeNet())

	err := w.Install(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInstall))

	has, err := inner.Has(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestInstall_RetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	net := newFakeNet()
	net.fail["/"] = true
	w := newTestWorker(t, "v1", s, net)

	require.Error(t, w.Install(ctx))

	net.mu.Lock()
	delete(net.fail, "/")
	net.mu.Unlock()

	require.NoError(t, w.Install(ctx))
	assert.Equal(t, StateInstalled, w.State())
}

func TestInstall_BadState(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t, "v1", memory.New(), newFakeNet())
	require.NoError(t, w.Install(ctx))

	err := w.Install(ctx)
	assert.True(t, errors.Is(err, ErrBadState))
	assert.Equal(t, StateInstalled, w.State())
}

func TestActivate_DeletesStaleGenerations(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	net := newFakeNet()

	old := newTestWorker(t, "v1", s, net)
	require.NoError(t, old.Install(ctx))
	require.NoError(t, old.Activate(ctx))

	w := newTestWorker(t, "v2", s, net)
	require.NoError(t, w.Install(ctx))

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, names, "v2 waits while v1 is still present")

	require.NoError(t, w.Activate(ctx))
	assert.Equal(t, StateActivated, w.State())

	names, err = s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)

	// Idempotent.
	require.NoError(t, w.Activate(ctx))
	names, err = s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)
}

func TestActivate_FreshWorkerOverInstalledGeneration(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	net := newFakeNet()

	require.NoError(t, newTestWorker(t, "v1", s, net).Install(ctx))
	require.NoError(t, newTestWorker(t, "v2", s, net).Install(ctx))

	w := newTestWorker(t, "v2", s, net)
	require.NoError(t, w.Activate(ctx))

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)
}

func TestActivate_NotInstalled(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t, "v1", memory.New(), newFakeNet())

	err := w.Activate(ctx)
	assert.True(t, errors.Is(err, ErrNotInstalled))
	assert.Equal(t, StateNew, w.State())
}

func TestActivate_AfterFailedInstall(t *testing.T) {
	ctx := context.Background()
	net := newFakeNet()
	net.fail["/"] = true
	w := newTestWorker(t, "v1", memory.New(), net)
	require.Error(t, w.Install(ctx))

	err := w.Activate(ctx)
	assert.True(t, errors.Is(err, ErrBadState))
}

func TestAttach(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	net := newFakeNet()
	require.NoError(t, newTestWorker(t, "v1", s, net).Install(ctx))
	require.NoError(t, newTestWorker(t, "v2", s, net).Install(ctx))

	w := newTestWorker(t, "v2", s, net)
	require.NoError(t, w.Attach(ctx))
	assert.Equal(t, StateActivated, w.State())

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, names, "attach leaves other generations alone")

	res, err := get(t, w, testOrigin+"/")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	readBody(t, res.Response)

	missing := newTestWorker(t, "v9", s, net)
	assert.True(t, errors.Is(missing.Attach(ctx), ErrNotInstalled))
}

func TestFetch_BypassAlwaysLive(t *testing.T) {
	s := memory.New()
	net := newFakeNet()
	w := activeWorker(t, s, net)

	for _, p := range []string{"/result/abc123", "/download/freqshift_abc_stereo_shift_40Hz.wav"} {
		target := testOrigin + p

		res, err := get(t, w, target)
		require.NoError(t, err)
		assert.Equal(t, SourceBypass, res.Source)
		assert.False(t, res.Stored)
		assert.Equal(t, p+"#1", readBody(t, res.Response))

		res, err = get(t, w, target)
		require.NoError(t, err)
		assert.Equal(t, p+"#2", readBody(t, res.Response), "content rotation must be visible")

		assert.Equal(t, 2, net.Calls(target))
	}

	for _, k := range keysOf(t, s, "v2") {
		assert.NotContains(t, k, "/result/")
		assert.NotContains(t, k, "/download/")
	}
}

func TestFetch_BypassIgnoresExistingEntry(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	net := newFakeNet()
	w := activeWorker(t, s, net)

	// Even a planted entry under a bypass path is never read.
	c, err := s.Open(ctx, "v2")
	require.NoError(t, err)
	key := store.Key{Method: http.MethodGet, URL: testOrigin + "/result/abc123"}
	require.NoError(t, c.Put(ctx, key, store.Entry{Status: http.StatusOK, Body: []byte("stale")}))

	res, err := get(t, w, key.URL)
	require.NoError(t, err)
	assert.Equal(t, "/result/abc123#1", readBody(t, res.Response))
}

func TestFetch_MissThenHit(t *testing.T) {
	s := memory.New()
	net := newFakeNet()
	w := activeWorker(t, s, net)
	target := testOrigin + "/static/app.css"

	res, err := get(t, w, target)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, res.Source)
	assert.True(t, res.Stored)
	assert.Equal(t, "/static/app.css#1", readBody(t, res.Response), "caller gets an unconsumed body")
	assert.Equal(t, 1, net.Calls(target))
	assert.Contains(t, keysOf(t, s, "v2"), "GET "+target)

	res, err = get(t, w, target)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, "/static/app.css#1", readBody(t, res.Response))
	assert.Equal(t, 1, net.Calls(target), "hit must not touch the network")
}

func TestFetch_ShellServedWithoutNetwork(t *testing.T) {
	net := newFakeNet()
	w := activeWorker(t, memory.New(), net)
	before := net.Total()

	for _, p := range DefaultShell {
		res, err := get(t, w, testOrigin+p)
		require.NoError(t, err)
		assert.Equal(t, SourceCache, res.Source, p)
		assert.Equal(t, p+"#1", readBody(t, res.Response))
	}
	assert.Equal(t, before, net.Total())
}

func TestFetch_RelativeURLResolvesAgainstOrigin(t *testing.T) {
	net := newFakeNet()
	w := activeWorker(t, memory.New(), net)

	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: "/"}, Header: http.Header{}}
	res, err := w.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	readBody(t, res.Response)
}

func TestFetch_CrossOriginNotStored(t *testing.T) {
	s := memory.New()
	net := newFakeNet()
	w := activeWorker(t, s, net)
	target := "https://fonts.example.net/inter.woff2"

	for i := 1; i <= 2; i++ {
		res, err := get(t, w, target)
		require.NoError(t, err)
		assert.False(t, res.Stored)
		assert.Equal(t, fmt.Sprintf("/inter.woff2#%d", i), readBody(t, res.Response))
	}
	assert.Equal(t, 2, net.Calls(target))

	for _, k := range keysOf(t, s, "v2") {
		assert.NotContains(t, k, "fonts.example.net")
	}
}

func TestFetch_NonGetNotStored(t *testing.T) {
	s := memory.New()
	net := newFakeNet()
	w := activeWorker(t, s, net)

	req, err := http.NewRequest(http.MethodPost, testOrigin+"/", strings.NewReader("shift=40"))
	require.NoError(t, err)
	res, err := w.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, res.Source)
	assert.False(t, res.Stored)
	readBody(t, res.Response)

	for _, k := range keysOf(t, s, "v2") {
		assert.False(t, strings.HasPrefix(k, "POST "), k)
	}
}

func TestFetch_PartialContentNotStored(t *testing.T) {
	s := memory.New()
	net := newFakeNet()
	net.status["/static/intro.wav"] = http.StatusPartialContent
	w := activeWorker(t, s, net)

	res, err := get(t, w, testOrigin+"/static/intro.wav")
	require.NoError(t, err)
	assert.False(t, res.Stored)
	readBody(t, res.Response)
}

func TestFetch_NetworkFailurePropagates(t *testing.T) {
	net := newFakeNet()
	w := activeWorker(t, memory.New(), net)
	net.mu.Lock()
	net.fail["/privacy"] = true
	net.mu.Unlock()

	_, err := w.Fetch(context.Background(), mustRequest(t, testOrigin+"/privacy"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, net.Calls(testOrigin+"/privacy"), "no retry")
}

func TestFetch_CacheWriteFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	net := newFakeNet()

	// Install through a healthy store, then serve through one whose puts fail.
	require.NoError(t, newTestWorker(t, "v2", inner, net).Install(ctx))
	w := newTestWorker(t, "v2", failingPuts{inner}, net)
	require.NoError(t, w.Activate(ctx))

	res, err := get(t, w, testOrigin+"/static/app.js")
	require.NoError(t, err)
	assert.False(t, res.Stored)
	assert.Equal(t, "/static/app.js#1", readBody(t, res.Response))
}

func TestFetch_BeforeActivationPassesThrough(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	net := newFakeNet()
	w := newTestWorker(t, "v1", s, net)
	require.NoError(t, w.Install(ctx))

	res, err := get(t, w, testOrigin+"/")
	require.NoError(t, err)
	assert.Equal(t, SourcePassthrough, res.Source)
	assert.Equal(t, "/#2", readBody(t, res.Response))
}

func TestRoundTrip(t *testing.T) {
	net := newFakeNet()
	w := activeWorker(t, memory.New(), net)
	client := &http.Client{Transport: w}

	resp, err := client.Get(testOrigin + "/manifest.webmanifest")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/manifest.webmanifest#1", readBody(t, resp))
}

func TestFetch_Concurrent(t *testing.T) {
	s := memory.New()
	net := newFakeNet()
	w := activeWorker(t, s, net)

	const n = 24
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/static/chunk-%d.js", testOrigin, i), nil)
			resp, err := w.Fetch(context.Background(), req)
			if assert.NoError(t, err) {
				resp.Body.Close()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, keysOf(t, s, "v2"), len(DefaultShell)+n)
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://freqshift.example.com/", "https://freqshift.example.com/static/a.css", true},
		{"https://freqshift.example.com/", "https://FREQSHIFT.example.com:443/", true},
		{"http://localhost:5000/", "http://localhost:5000/x", true},
		{"http://localhost:5000/", "http://localhost:5001/x", false},
		{"https://freqshift.example.com/", "http://freqshift.example.com/", false},
		{"https://freqshift.example.com/", "https://cdn.example.com/", false},
	}
	for _, tt := range tests {
		a, _ := url.Parse(tt.a)
		b, _ := url.Parse(tt.b)
		assert.Equal(t, tt.want, SameOrigin(a, b), "%s vs %s", tt.a, tt.b)
	}
}

func mustRequest(t *testing.T, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	return req
}
