// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT
package command

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/staranto/shellcache/internal/config"
	"github.com/staranto/shellcache/internal/meta"
)

func InitApp(ctx context.Context, args []string) (*cli.Command, error) {
	sd, _ := os.Getwd()

	// The arg[1] immediately following the binary (arg[0]) is the subcommand
	// and also represents the namespace key to be used when retrieving config
	// values. arg[1] could be -h/--help, so ignore it if it appears to be a
	// flag.
	var ns string
	if len(args) > 1 && !strings.HasPrefix(args[1], "-") {
		ns = args[1]
	}

	cfg, _ := config.Load(ns)
	meta := meta.Meta{
		Args:        args,
		Config:      cfg,
		Context:     ctx,
		Namespace:   ns,
		StartingDir: sd,
	}

	app := &cli.Command{
		Name:  "shellcache",
		Usage: "offline app shell cache",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "version",
				Aliases:     []string{"v"},
				Usage:       "shellcache version info",
				HideDefault: true,
			},
		},
	}

	app.Commands = append(app.Commands,
		InstallCommandBuilder(meta),
		ActivateCommandBuilder(meta),
		FetchCommandBuilder(meta),
		LsCommandBuilder(meta),
		KeysCommandBuilder(meta),
		DiffCommandBuilder(meta),
		ServeCommandBuilder(meta),
		OriginCommandBuilder(meta),
		PurgeCommandBuilder(meta),
		CompletionCommandBuilder(meta),
	)

	// Make sure flags are sorted for the --help text.
	for _, cmd := range app.Commands {
		sort.Slice(cmd.Flags, func(i, j int) bool {
			return cmd.Flags[i].Names()[0] < cmd.Flags[j].Names()[0]
		})
	}

	return app, nil
}

// CommandBuilder constructs a subcommand using a consistent pattern: meta in
// Metadata, optional listing flags, and an optional validator run before the
// action.
type CommandBuilder struct {
	Name      string
	Usage     string
	UsageText string
	Flags     []cli.Flag
	// Listing adds the output/sort/filter/color/titles flags.
	Listing   bool
	Validator func(context.Context, *cli.Command) error
	Action    func(context.Context, *cli.Command) error
	Meta      meta.Meta
}

// Build returns a configured cli.Command from the builder.
func (b *CommandBuilder) Build() *cli.Command {
	flags := b.Flags
	if b.Listing {
		flags = append(flags, NewGlobalFlags(b.Name)...)
	}
	validate := b.Validator
	return &cli.Command{
		Name:      b.Name,
		Usage:     b.Usage,
		UsageText: b.UsageText,
		Metadata: map[string]any{
			"meta": b.Meta,
		},
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if validate != nil {
				if err := validate(ctx, c); err != nil {
					return err
				}
			}
			return b.Action(ctx, c)
		},
	}
}

// stdout is where command results go.
func stdout(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}
	return os.Stdout
}
