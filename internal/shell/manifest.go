// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"github.com/apex/log"
	"github.com/tidwall/gjson"

	"github.com/staranto/shellcache/internal/network"
)

// DefaultManifestPath is where the origin serves its web app manifest.
const DefaultManifestPath = "/manifest.webmanifest"

// AssetsFromManifest appends the manifest's start_url and icon sources to
// base, resolved against manifestPath. Cross-origin references and
// duplicates are dropped; order is base first, then manifest order.
func AssetsFromManifest(manifestPath string, raw []byte, base []string) ([]string, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("manifest is not valid JSON")
	}
	mp, err := url.Parse(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest path %q: %w", manifestPath, err)
	}

	out := make([]string, 0, len(base)+4)
	seen := make(map[string]bool, len(base)+4)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range base {
		add(p)
	}

	doc := gjson.ParseBytes(raw)
	refs := []string{}
	if start := doc.Get("start_url"); start.Exists() {
		refs = append(refs, start.String())
	}
	for _, src := range doc.Get("icons.#.src").Array() {
		refs = append(refs, src.String())
	}

	for _, ref := range refs {
		if ref == "" {
			continue
		}
		u, err := url.Parse(ref)
		if err != nil {
			log.WithError(err).Warnf("skipping manifest reference %q", ref)
			continue
		}
		if u.Host != "" {
			log.Debugf("skipping cross-origin manifest reference %s", ref)
			continue
		}
		resolved := mp.ResolveReference(u)
		p := resolved.Path
		if resolved.RawQuery != "" {
			p += "?" + resolved.RawQuery
		}
		add(p)
	}
	return out, nil
}

// DiscoverShell fetches the origin's manifest and extends base with the
// assets it references.
func DiscoverShell(ctx context.Context, fetcher network.Fetcher, origin, manifestPath string, base []string) ([]string, error) {
	o, err := parseOrigin(origin)
	if err != nil {
		return nil, err
	}
	if manifestPath == "" {
		manifestPath = DefaultManifestPath
	}
	ref, err := url.Parse(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest path %q: %w", manifestPath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := fetcher.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch manifest: unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	shell := append([]string(nil), base...)
	if len(shell) == 0 {
		shell = append(shell, DefaultShell...)
	}
	if !slices.Contains(shell, manifestPath) {
		shell = append(shell, manifestPath)
	}
	return AssetsFromManifest(manifestPath, raw, shell)
}
