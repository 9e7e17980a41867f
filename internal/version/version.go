// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package version

// Version is overridden at build time with -ldflags "-X".
var Version = "0.1.0-dev"

// UserAgent is sent on every live fetch.
func UserAgent() string {
	return "shellcache/" + Version
}
