// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/shellcache/internal/meta"
	"github.com/staranto/shellcache/internal/origin"
	"github.com/staranto/shellcache/internal/proxy"
)

// ServeCommandAction installs and activates the current generation, then
// serves fetch events until interrupted.
func ServeCommandAction(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, closeStore, err := OpenStorage(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	w, err := NewWorker(cmd, s)
	if err != nil {
		return err
	}
	h, err := proxy.Start(ctx, w)
	if err != nil {
		return err
	}

	srv, err := proxy.NewServer(cmd.String("listen"), h)
	if err != nil {
		return err
	}
	log.Infof("serving %s for %s on %s", w.Generation(), w.Origin(), cmd.String("listen"))
	return srv.ListenAndServe(ctx)
}

func ServeCommandBuilder(meta meta.Meta) *cli.Command {
	b := CommandBuilder{
		Name:      "serve",
		Usage:     "run the shell cache in front of the origin",
		UsageText: `shellcache serve [options]`,
		Flags: append(append([]cli.Flag{
			NameSpacedValueChainFlagFromConfigFile("serve", cfg.Source, "listen", &cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "listen address",
				Sources: cli.NewValueSourceChain(cli.EnvVar("SHELLCACHE_LISTEN")),
				Value:   "127.0.0.1:8080",
			}),
		}, NewWorkerFlags("serve")...), NewStoreFlags("serve")...),
		Action: ServeCommandAction,
		Meta:   meta,
	}
	return b.Build()
}

// OriginCommandAction runs the origin server configured from the
// environment.
func OriginCommandAction(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	oc, err := origin.LoadConfig()
	if err != nil {
		return err
	}
	o, err := origin.New(oc)
	if err != nil {
		return err
	}
	srv, err := proxy.NewServer(oc.Addr(), o.Handler())
	if err != nil {
		return err
	}
	log.Infof("origin serving %s on %s", oc.StaticDir, oc.Addr())
	return srv.ListenAndServe(ctx)
}

func OriginCommandBuilder(meta meta.Meta) *cli.Command {
	b := CommandBuilder{
		Name:      "origin",
		Usage:     "run the origin server (PORT, SHELLCACHE_STATIC_DIR, SHELLCACHE_WORK_DIR)",
		UsageText: `shellcache origin`,
		Action:    OriginCommandAction,
		Meta:      meta,
	}
	return b.Build()
}
