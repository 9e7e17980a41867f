// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package origin is a minimal origin server for the frequency shift PWA. It
// serves the static app shell and the per-job result files a shell cache sits
// in front of. Audio processing and uploads are not part of it.
package origin
