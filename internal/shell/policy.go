// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"fmt"
	"strings"
)

// DefaultShell is the app shell of the frequency shift PWA.
var DefaultShell = []string{
	"/",
	"/manifest.webmanifest",
	"/static/icons/icon-192.png",
	"/static/icons/icon-512.png",
}

// DefaultBypass holds the dynamic-result prefixes: synchronous result
// retrieval and file download.
var DefaultBypass = []string{"/result/", "/download/"}

// Policy classifies request paths.
type Policy struct {
	prefixes []string
}

// NewPolicy returns a Policy bypassing every path under prefixes. Each prefix
// must be an absolute path.
func NewPolicy(prefixes ...string) (Policy, error) {
	p := Policy{prefixes: make([]string, 0, len(prefixes))}
	for _, prefix := range prefixes {
		if !strings.HasPrefix(prefix, "/") {
			return Policy{}, fmt.Errorf("bypass prefix %q must start with /", prefix)
		}
		p.prefixes = append(p.prefixes, prefix)
	}
	return p, nil
}

// Bypass reports whether path must skip the cache entirely.
func (p Policy) Bypass(path string) bool {
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the bypass prefixes.
func (p Policy) Prefixes() []string {
	return append([]string(nil), p.prefixes...)
}
