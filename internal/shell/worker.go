// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/staranto/shellcache/internal/network"
	"github.com/staranto/shellcache/internal/store"
)

var (
	ErrInstall      = errors.New("install failed")
	ErrBadState     = errors.New("invalid lifecycle state")
	ErrNotInstalled = errors.New("generation is not installed")
)

const defaultConcurrency = 4

// Options configures a Worker.
type Options struct {
	// Generation names the current cache generation, e.g. "freqshift-v3".
	Generation string
	// Origin is the controlling origin, e.g. "https://freqshift.example.com".
	Origin string
	// Shell is the app shell asset list. Defaults to DefaultShell.
	Shell []string
	// Bypass lists extra prefixes to bypass in addition to DefaultBypass.
	Bypass []string
	// Storage holds the generations. Required.
	Storage store.Storage
	// Network performs live fetches. Defaults to network.New().
	Network network.Fetcher
	// Concurrency bounds parallel asset fetches during Install.
	Concurrency int
}

// Worker is the offline shell cache for one generation.
type Worker struct {
	generation  string
	origin      *url.URL
	shell       []string
	policy      Policy
	storage     store.Storage
	network     network.Fetcher
	concurrency int

	mu    sync.RWMutex
	state State
	cache store.Cache
}

// Result is the outcome of one fetch event.
type Result struct {
	Response *http.Response
	Source   Source
	// Stored is true when a miss was written to the current generation.
	Stored bool
}

// New validates opts and returns a Worker in StateNew.
func New(opts Options) (*Worker, error) {
	if err := store.ValidName(opts.Generation); err != nil {
		return nil, err
	}
	if opts.Storage == nil {
		return nil, errors.New("cache storage is required")
	}
	origin, err := parseOrigin(opts.Origin)
	if err != nil {
		return nil, err
	}

	// The dynamic-result prefixes are always bypassed; Bypass only adds.
	bypass := append([]string(nil), DefaultBypass...)
	for _, p := range opts.Bypass {
		if !slices.Contains(bypass, p) {
			bypass = append(bypass, p)
		}
	}
	policy, err := NewPolicy(bypass...)
	if err != nil {
		return nil, err
	}

	shell := opts.Shell
	if len(shell) == 0 {
		shell = DefaultShell
	}
	for _, p := range shell {
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("shell asset %q must start with /", p)
		}
		if policy.Bypass(p) {
			return nil, fmt.Errorf("shell asset %q is under a bypass prefix", p)
		}
	}

	fetcher := opts.Network
	if fetcher == nil {
		fetcher = network.New()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Worker{
		generation:  opts.Generation,
		origin:      origin,
		shell:       append([]string(nil), shell...),
		policy:      policy,
		storage:     opts.Storage,
		network:     fetcher,
		concurrency: concurrency,
		state:       StateNew,
	}, nil
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("origin %q must be an http or https URL", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("origin %q has no host", raw)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, nil
}

// Generation returns the name of the current generation.
func (w *Worker) Generation() string { return w.generation }

// Origin returns the controlling origin as scheme://host.
func (w *Worker) Origin() *url.URL {
	u := *w.origin
	return &u
}

// Shell returns a copy of the app shell asset list.
func (w *Worker) Shell() []string { return append([]string(nil), w.shell...) }

// Policy returns the bypass policy.
func (w *Worker) Policy() Policy { return w.policy }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// transition moves to next when the current state is one of from.
func (w *Worker) transition(next State, from ...State) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range from {
		if w.state == s {
			prev := w.state
			w.state = next
			return prev, nil
		}
	}
	return w.state, fmt.Errorf("%w: cannot move from %s to %s", ErrBadState, w.state, next)
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Install fetches every shell asset and stores them in the current
// generation. Nothing is written unless every fetch succeeds.
func (w *Worker) Install(ctx context.Context) error {
	if _, err := w.transition(StateInstalling, StateNew, StateRedundant); err != nil {
		return err
	}

	existed, err := w.storage.Has(ctx, w.generation)
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("%w: %w", ErrInstall, err)
	}

	entries := make([]store.Entry, len(w.shell))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, p := range w.shell {
		g.Go(func() error {
			e, err := w.fetchAsset(gctx, p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.setState(StateRedundant)
		log.WithError(err).Errorf("install of %s aborted", w.generation)
		return fmt.Errorf("%w: %w", ErrInstall, err)
	}

	cache, err := w.storage.Open(ctx, w.generation)
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("%w: %w", ErrInstall, err)
	}
	for _, e := range entries {
		if err := cache.Put(ctx, e.Key(), e); err != nil {
			w.discard(ctx, existed)
			w.setState(StateRedundant)
			return fmt.Errorf("%w: store %s: %w", ErrInstall, e.URL, err)
		}
	}

	w.mu.Lock()
	w.cache = cache
	w.state = StateInstalled
	w.mu.Unlock()

	log.WithFields(log.Fields{
		"generation": w.generation,
		"assets":     len(entries),
	}).Info("installed")
	return nil
}

// discard drops a generation created by a failed install so no partial shell
// is left behind. A generation that existed before the attempt is kept.
func (w *Worker) discard(ctx context.Context, existed bool) {
	if existed {
		log.Warnf("install of %s failed over an existing generation; leaving it in place", w.generation)
		return
	}
	if _, err := w.storage.Delete(ctx, w.generation); err != nil {
		log.WithError(err).Warnf("failed to discard partial generation %s", w.generation)
	}
}

func (w *Worker) fetchAsset(ctx context.Context, p string) (store.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.resolve(p).String(), nil)
	if err != nil {
		return store.Entry{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := w.network.Do(req)
	if err != nil {
		return store.Entry{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return store.Entry{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return store.Capture(store.NewKey(req), resp)
}

// Activate deletes every generation other than the current one. It may run
// after Install, again after a previous Activate, or on a fresh worker whose
// generation was installed by an earlier process.
func (w *Worker) Activate(ctx context.Context) error {
	prev, err := w.transition(StateActivating, StateInstalled, StateActivated, StateNew)
	if err != nil {
		return err
	}

	cache, err := w.currentCache(ctx)
	if err != nil {
		w.setState(prev)
		return err
	}

	names, err := w.storage.Names(ctx)
	if err != nil {
		w.setState(prev)
		return fmt.Errorf("failed to list generations: %w", err)
	}

	var errs []error
	for _, name := range names {
		if name == w.generation {
			continue
		}
		if _, err := w.storage.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		log.Infof("deleted stale generation %s", name)
	}
	if err := errors.Join(errs...); err != nil {
		w.setState(prev)
		return fmt.Errorf("failed to delete stale generations: %w", err)
	}

	w.mu.Lock()
	w.cache = cache
	w.state = StateActivated
	w.mu.Unlock()
	log.Debugf("generation %s activated", w.generation)
	return nil
}

// Attach makes a fresh worker serve a generation installed by an earlier
// process without touching other generations.
func (w *Worker) Attach(ctx context.Context) error {
	prev, err := w.transition(StateActivating, StateNew)
	if err != nil {
		return err
	}
	cache, err := w.currentCache(ctx)
	if err != nil {
		w.setState(prev)
		return err
	}
	w.mu.Lock()
	w.cache = cache
	w.state = StateActivated
	w.mu.Unlock()
	return nil
}

func (w *Worker) currentCache(ctx context.Context) (store.Cache, error) {
	w.mu.RLock()
	cache := w.cache
	w.mu.RUnlock()
	if cache != nil {
		return cache, nil
	}

	has, err := w.storage.Has(ctx, w.generation)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, w.generation)
	}
	return w.storage.Open(ctx, w.generation)
}

func (w *Worker) active() (store.Cache, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cache, w.state == StateActivated && w.cache != nil
}

// Fetch answers one request. See Handle.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	res, err := w.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Response, nil
}

// RoundTrip lets a Worker serve as an http.Client transport.
func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	return w.Fetch(req.Context(), req)
}

// Handle answers one request and reports where the response came from.
// Relative request URLs are resolved against the origin.
//
// Bypass paths and requests made before activation always go to the
// network. Otherwise a stored entry for the exact key is returned without a
// network call; on a miss the live response is returned and, for same-origin
// GETs, a copy is stored. Failing to store never fails the fetch.
func (w *Worker) Handle(ctx context.Context, req *http.Request) (Result, error) {
	req = w.outbound(ctx, req)

	if w.policy.Bypass(req.URL.Path) {
		log.Debugf("bypass %s %s", req.Method, req.URL)
		resp, err := w.network.Do(req)
		return Result{Response: resp, Source: SourceBypass}, err
	}

	cache, ok := w.active()
	if !ok {
		resp, err := w.network.Do(req)
		return Result{Response: resp, Source: SourcePassthrough}, err
	}

	key := store.NewKey(req)
	entry, err := cache.Match(ctx, key)
	switch {
	case err == nil:
		log.Debugf("cache hit %s", key)
		return Result{Response: entry.Response(req), Source: SourceCache}, nil
	case !errors.Is(err, store.ErrNotFound):
		log.WithError(err).Warnf("cache lookup failed for %s", key)
	}

	resp, err := w.network.Do(req)
	if err != nil {
		return Result{Source: SourceNetwork}, err
	}
	res := Result{Response: resp, Source: SourceNetwork}
	if !w.storable(req, resp) {
		return res, nil
	}

	captured, err := store.Capture(key, resp)
	if err != nil {
		return Result{Source: SourceNetwork}, err
	}
	if err := cache.Put(ctx, key, captured); err != nil {
		log.WithError(err).Warnf("failed to cache %s", key)
		return res, nil
	}
	res.Stored = true
	return res, nil
}

// outbound returns a client-ready copy of req bound to ctx.
func (w *Worker) outbound(ctx context.Context, req *http.Request) *http.Request {
	out := req.Clone(ctx)
	out.RequestURI = ""
	if !out.URL.IsAbs() || out.URL.Host == "" {
		out.URL = w.origin.ResolveReference(out.URL)
		out.Host = ""
	}
	return out
}

func (w *Worker) resolve(p string) *url.URL {
	ref, err := url.Parse(p)
	if err != nil {
		return w.origin.ResolveReference(&url.URL{Path: p})
	}
	return w.origin.ResolveReference(ref)
}

// storable reports whether a live response may be written to the cache.
// Partial content is never stored.
func (w *Worker) storable(req *http.Request, resp *http.Response) bool {
	return req.Method == http.MethodGet &&
		SameOrigin(w.origin, req.URL) &&
		resp.StatusCode != http.StatusPartialContent
}

// SameOrigin compares scheme, host and effective port.
func SameOrigin(a, b *url.URL) bool {
	return originOf(a) == originOf(b)
}

func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return scheme + "://" + strings.ToLower(u.Hostname()) + ":" + port
}
