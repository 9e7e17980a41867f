// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/shellcache/internal/aws"
	"github.com/staranto/shellcache/internal/config"
	"github.com/staranto/shellcache/internal/meta"
	"github.com/staranto/shellcache/internal/network"
	"github.com/staranto/shellcache/internal/shell"
	"github.com/staranto/shellcache/internal/store"
	"github.com/staranto/shellcache/internal/store/disk"
	"github.com/staranto/shellcache/internal/store/memory"
	s3store "github.com/staranto/shellcache/internal/store/s3"
	"github.com/staranto/shellcache/internal/store/sqlite"
)

// GetMeta returns the meta.Meta stored in the command's Metadata. If missing
// or of an unexpected type, it returns the zero value.
func GetMeta(cmd *cli.Command) meta.Meta {
	if cmd == nil || cmd.Metadata == nil {
		return meta.Meta{}
	}
	if m, ok := cmd.Metadata["meta"].(meta.Meta); ok {
		return m
	}
	return meta.Meta{}
}

// OpenStorage builds the storage named by --store. The returned close func
// is never nil.
func OpenStorage(ctx context.Context, cmd *cli.Command) (store.Storage, func() error, error) {
	noop := func() error { return nil }

	kind := cmd.String("store")
	log.Debugf("store: %s", kind)

	switch kind {
	case "memory":
		return memory.New(), noop, nil
	case "", "disk":
		s, err := disk.New(cmd.String("store-dir"))
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "sqlite":
		path := cmd.String("store-path")
		if path == "" {
			return nil, noop, errors.New("--store-path is required for the sqlite store")
		}
		s, err := sqlite.Open(path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case "s3":
		bucket := cmd.String("bucket")
		if bucket == "" {
			return nil, noop, errors.New("--bucket is required for the s3 store")
		}
		awsCfg, err := aws.LoadAWSConfig(ctx, aws.WithRegion(cmd.String("region")))
		if err != nil {
			return nil, noop, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := aws.NewS3(awsCfg, aws.WithS3Endpoint(cmd.String("endpoint")))
		s, err := s3store.New(client, bucket, cmd.String("prefix"))
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store %q", kind)
	}
}

// NewWorker builds a shell.Worker from the worker flags over s. Shell and
// bypass lists fall back to the config file, then to the built-in defaults.
func NewWorker(cmd *cli.Command, s store.Storage) (*shell.Worker, error) {
	return newWorkerWithShell(cmd, s, shellList(cmd))
}

func newWorkerWithShell(cmd *cli.Command, s store.Storage, assets []string) (*shell.Worker, error) {
	generation := cmd.String("generation")
	if generation == "" {
		return nil, errors.New("a generation is required: use --generation or the generation config key")
	}
	return shell.New(shell.Options{
		Generation: generation,
		Origin:     cmd.String("origin"),
		Shell:      assets,
		Bypass:     bypassList(cmd),
		Storage:    s,
		Network:    newFetcher(cmd),
	})
}

func shellList(cmd *cli.Command) []string {
	if l := cmd.StringSlice("shell"); len(l) > 0 {
		return l
	}
	l, _ := config.GetStringSlice("shell")
	return l
}

// bypassList returns the extra bypass prefixes from the flag or config. The
// /result/ and /download/ prefixes are always bypassed by the worker.
func bypassList(cmd *cli.Command) []string {
	if cmd.IsSet("bypass") {
		return cmd.StringSlice("bypass")
	}
	if l, err := config.GetStringSlice("bypass"); err == nil {
		return l
	}
	return nil
}

func newFetcher(cmd *cli.Command) network.Fetcher {
	var opts []network.Option
	if d := cmd.Duration("timeout"); d > 0 {
		opts = append(opts, network.WithTimeout(d))
	}
	return network.New(opts...)
}
