// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package shell

// State is the worker lifecycle state.
type State string

const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	// StateInstalled is the waiting state: the generation is complete but
	// stale generations are still present.
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	// StateRedundant follows a failed install. Install may be retried.
	StateRedundant State = "redundant"
)

// Source tells where a fetch result came from.
type Source string

const (
	SourceCache       Source = "hit"
	SourceNetwork     Source = "miss"
	SourceBypass      Source = "bypass"
	SourcePassthrough Source = "passthrough"
)
