// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package proxy hosts a shell.Worker behind an HTTP listener. Every incoming
// request becomes one fetch event against the worker, re-targeted at the
// worker's origin, and the decision is reported in the X-Shellcache header.
package proxy
