// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package store defines the generation-scoped response storage used by the
// shell worker. A Storage holds named generations; each generation is a Cache
// mapping request keys (method + URL) to the last response stored for them.
// Backends live in the memory, disk, sqlite and s3 subpackages.
package store
