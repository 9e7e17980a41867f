// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/staranto/shellcache/internal/config"
	"github.com/staranto/shellcache/internal/meta"
	"github.com/staranto/shellcache/internal/store/disk"
)

// PurgeCommandAction removes leftover disk store files older than --hours.
// Generation entries are kept.
func PurgeCommandAction(ctx context.Context, cmd *cli.Command) error {
	if !disk.Enabled() {
		return errors.New("the disk store is disabled by SHELLCACHE_CACHE")
	}
	s, err := disk.New(cmd.String("store-dir"))
	if err != nil {
		return err
	}

	hours := cmd.Int("hours")
	if !cmd.IsSet("hours") {
		hours, _ = config.GetInt("cache.clean", hours)
	}
	if err := s.Purge(hours); err != nil {
		return err
	}
	fmt.Fprintf(stdout(cmd), "purged leftover files older than %d hours from %s\n", hours, s.Base)
	return nil
}

func PurgeCommandBuilder(meta meta.Meta) *cli.Command {
	b := CommandBuilder{
		Name:      "purge",
		Usage:     "remove leftover disk store files older than a number of hours",
		UsageText: `shellcache purge [options]`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "hours",
				Usage: "age in hours; 0 disables (default: cache.clean)",
				Value: 24,
			},
			&cli.StringFlag{
				Name:    "store-dir",
				Usage:   "directory of the disk store",
				Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_CACHE_DIR")),
				Value:   defaultStoreDir(),
			},
		},
		Action: PurgeCommandAction,
		Meta:   meta,
	}
	return b.Build()
}
