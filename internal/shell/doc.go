// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package shell implements the offline shell cache: a worker that installs a
// fixed list of app shell assets into a named cache generation, activates that
// generation by deleting every other one, and then answers fetches from the
// cache, falling back to the network.
//
// Paths under the dynamic-result prefixes (/result/ and /download/ by default)
// always go to the network and are never read from or written to any
// generation.
package shell
