// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/staranto/shellcache/internal/meta"
	"github.com/staranto/shellcache/internal/output"
	"github.com/staranto/shellcache/internal/shell"
	"github.com/staranto/shellcache/internal/store"
)

const previewLen = 40

func InstallCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	s, closeStore, err := OpenStorage(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	assets := shellList(cmd)
	if cmd.Bool("from-manifest") {
		assets, err = shell.DiscoverShell(ctx, newFetcher(cmd), cmd.String("origin"), cmd.String("manifest"), assets)
		if err != nil {
			return fmt.Errorf("failed to discover shell: %w", err)
		}
		log.Debugf("discovered shell: %v", assets)
	}

	w, err := newWorkerWithShell(cmd, s, assets)
	if err != nil {
		return err
	}

	if err := w.Install(ctx); err != nil {
		return err
	}

	c, err := s.Open(ctx, w.Generation())
	if err != nil {
		return err
	}
	sum, err := store.Summarize(ctx, c)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout(cmd), "installed %s: %d assets (%s)\n", sum.Name, sum.Entries, humanize.Bytes(uint64(sum.Bytes)))
	return nil
}

func InstallCommandBuilder(meta meta.Meta) *cli.Command {
	b := CommandBuilder{
		Name:      "install",
		Usage:     "install the app shell into the current generation",
		UsageText: `shellcache install [options]`,
		Flags: append(append([]cli.Flag{
			&cli.BoolFlag{
				Name:  "from-manifest",
				Usage: "extend the shell with the assets referenced by the web app manifest",
			},
			&cli.StringFlag{
				Name:  "manifest",
				Usage: "manifest path on the origin",
				Value: shell.DefaultManifestPath,
			},
		}, NewWorkerFlags("install")...), NewStoreFlags("install")...),
		Action: InstallCommandAction,
		Meta:   meta,
	}
	return b.Build()
}

func ActivateCommandAction(ctx context.Context, cmd *cli.Command) error {
	s, closeStore, err := OpenStorage(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	w, err := NewWorker(cmd, s)
	if err != nil {
		return err
	}

	before, err := s.Names(ctx)
	if err != nil {
		return err
	}
	if err := w.Activate(ctx); err != nil {
		return err
	}

	var deleted []string
	for _, name := range before {
		if name != w.Generation() {
			deleted = append(deleted, name)
		}
	}
	out := stdout(cmd)
	fmt.Fprintf(out, "activated %s\n", w.Generation())
	if len(deleted) > 0 {
		fmt.Fprintf(out, "deleted %s\n", strings.Join(deleted, ", "))
	}
	return nil
}

func ActivateCommandBuilder(meta meta.Meta) *cli.Command {
	b := CommandBuilder{
		Name:      "activate",
		Usage:     "delete every generation other than the current one",
		UsageText: `shellcache activate [options]`,
		Flags:     append(NewWorkerFlags("activate"), NewStoreFlags("activate")...),
		Action:    ActivateCommandAction,
		Meta:      meta,
	}
	return b.Build()
}

var fetchColumns = []output.Column{
	{Key: "path", Title: "PATH"},
	{Key: "status", Title: "STATUS"},
	{Key: "source", Title: "SOURCE"},
	{Key: "stored", Title: "STORED", Format: func(v interface{}) string { return fmt.Sprint(v) }},
	{Key: "bytes", Title: "SIZE", Format: humanBytes},
	{Key: "preview", Title: "BODY"},
}

// FetchCommandAction runs one fetch event per path against an already
// installed generation and reports the outcome.
func FetchCommandAction(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("at least one path is required")
	}

	s, closeStore, err := OpenStorage(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	w, err := NewWorker(cmd, s)
	if err != nil {
		return err
	}
	if err := w.Attach(ctx); err != nil {
		return err
	}

	var rows []map[string]interface{}
	for _, p := range paths {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p, nil)
		if err != nil {
			return fmt.Errorf("invalid path %q: %w", p, err)
		}
		res, err := w.Handle(ctx, req)
		if err != nil {
			return err
		}
		body, err := io.ReadAll(res.Response.Body)
		res.Response.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		rows = append(rows, map[string]interface{}{
			"path":    p,
			"status":  res.Response.StatusCode,
			"source":  string(res.Source),
			"stored":  res.Stored,
			"bytes":   int64(len(body)),
			"preview": preview(body),
		})
	}

	return output.SliceDiceSpit(rows, fetchColumns, outputOptions(cmd), stdout(cmd))
}

func FetchCommandBuilder(meta meta.Meta) *cli.Command {
	b := CommandBuilder{
		Name:      "fetch",
		Usage:     "answer requests from the current generation",
		UsageText: `shellcache fetch [options] <path>...`,
		Flags:     append(NewWorkerFlags("fetch"), NewStoreFlags("fetch")...),
		Listing:   true,
		Action:    FetchCommandAction,
		Meta:      meta,
	}
	return b.Build()
}

// preview returns the start of body when it is text.
func preview(body []byte) string {
	if !utf8.Valid(body) {
		return "(binary)"
	}
	s := strings.Join(strings.Fields(string(body)), " ")
	if utf8.RuneCountInString(s) > previewLen {
		s = string([]rune(s)[:previewLen]) + "..."
	}
	return s
}
