// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/staranto/shellcache/internal/meta"
	"github.com/staranto/shellcache/internal/output"
	"github.com/staranto/shellcache/internal/store"
)

func outputOptions(cmd *cli.Command) output.Options {
	return output.Options{
		Format: cmd.String("output"),
		Color:  cmd.Bool("color"),
		Titles: cmd.Bool("titles"),
		Sort:   cmd.String("sort"),
		Filter: cmd.String("filter"),
		Attrs:  cmd.String("attrs"),
	}
}

func humanBytes(v interface{}) string {
	n, ok := v.(int64)
	if !ok {
		return output.InterfaceToString(v, "-")
	}
	return humanize.Bytes(uint64(n))
}

func humanTime(v interface{}) string {
	t, ok := v.(time.Time)
	if !ok {
		return output.InterfaceToString(v, "-")
	}
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

var lsColumns = []output.Column{
	{Key: "generation", Title: "GENERATION"},
	{Key: "current", Title: "CURRENT", Format: func(v interface{}) string {
		if b, _ := v.(bool); b {
			return "*"
		}
		return ""
	}},
	{Key: "entries", Title: "ENTRIES"},
	{Key: "bytes", Title: "SIZE", Format: humanBytes},
	{Key: "newest", Title: "NEWEST", Format: humanTime},
}

func LsCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	s, closeStore, err := OpenStorage(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	names, err := s.Names(ctx)
	if err != nil {
		return err
	}

	current := cmd.String("generation")
	rows := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		c, err := s.Open(ctx, name)
		if err != nil {
			return err
		}
		sum, err := store.Summarize(ctx, c)
		if err != nil {
			return err
		}
		rows = append(rows, map[string]interface{}{
			"generation": sum.Name,
			"current":    sum.Name == current,
			"entries":    sum.Entries,
			"bytes":      sum.Bytes,
			"newest":     sum.Newest,
		})
	}

	return output.SliceDiceSpit(rows, lsColumns, outputOptions(cmd), stdout(cmd))
}

func LsCommandBuilder(meta meta.Meta) *cli.Command {
	b := CommandBuilder{
		Name:      "ls",
		Usage:     "list cache generations",
		UsageText: `shellcache ls [options]`,
		Flags:     append([]cli.Flag{NewGenerationFlag("ls")}, NewStoreFlags("ls")...),
		Listing:   true,
		Action:    LsCommandAction,
		Meta:      meta,
	}
	return b.Build()
}

var keysColumns = []output.Column{
	{Key: "method", Title: "METHOD"},
	{Key: "url", Title: "URL"},
	{Key: "status", Title: "STATUS"},
	{Key: "bytes", Title: "SIZE", Format: humanBytes},
	{Key: "stored", Title: "STORED", Format: humanTime},
}

// generationArg resolves the generation from the first argument or the
// --generation flag.
func generationArg(cmd *cli.Command) (string, error) {
	name := cmd.Args().First()
	if name == "" {
		name = cmd.String("generation")
	}
	if name == "" {
		return "", errors.New("a generation is required")
	}
	return name, store.ValidName(name)
}

// entries loads every entry of a generation that must already exist.
func entries(ctx context.Context, s store.Storage, name string) ([]store.Entry, error) {
	has, err := s.Has(ctx, name)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("generation %s does not exist", name)
	}
	c, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	keys, err := c.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]store.Entry, 0, len(keys))
	for _, k := range keys {
		e, err := c.Match(ctx, k)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func KeysCommandAction(ctx context.Context, cmd *cli.Command) error {
	name, err := generationArg(cmd)
	if err != nil {
		return err
	}

	s, closeStore, err := OpenStorage(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	list, err := entries(ctx, s, name)
	if err != nil {
		return err
	}

	rows := make([]map[string]interface{}, 0, len(list))
	for _, e := range list {
		rows = append(rows, map[string]interface{}{
			"method": e.Method,
			"url":    e.URL,
			"status": e.Status,
			"bytes":  e.Size(),
			"stored": e.StoredAt,
		})
	}

	opts := outputOptions(cmd)
	if opts.Sort == "" {
		opts.Sort = "url,method"
	}
	return output.SliceDiceSpit(rows, keysColumns, opts, stdout(cmd))
}

func KeysCommandBuilder(meta meta.Meta) *cli.Command {
	b := CommandBuilder{
		Name:      "keys",
		Usage:     "list the entries of a generation",
		UsageText: `shellcache keys [options] [generation]`,
		Flags:     append([]cli.Flag{NewGenerationFlag("keys")}, NewStoreFlags("keys")...),
		Listing:   true,
		Action:    KeysCommandAction,
		Meta:      meta,
	}
	return b.Build()
}

// listing maps each key of a generation to its status and size, encoded as
// JSON so both sides of a diff share one representation.
func listing(ctx context.Context, s store.Storage, name string) ([]byte, error) {
	list, err := entries(ctx, s, name)
	if err != nil {
		return nil, err
	}
	m := make(map[string]interface{}, len(list))
	for _, e := range list {
		m[e.Key().String()] = map[string]interface{}{
			"status": e.Status,
			"bytes":  e.Size(),
		}
	}
	return json.Marshal(m)
}

func DiffCommandAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return errors.New("exactly two generations are required")
	}
	a, b := cmd.Args().Get(0), cmd.Args().Get(1)

	s, closeStore, err := OpenStorage(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	left, err := listing(ctx, s, a)
	if err != nil {
		return err
	}
	right, err := listing(ctx, s, b)
	if err != nil {
		return err
	}

	d, err := gojsondiff.New().Compare(left, right)
	if err != nil {
		return fmt.Errorf("failed to compare %s and %s: %w", a, b, err)
	}
	out := stdout(cmd)
	if !d.Modified() {
		fmt.Fprintf(out, "%s and %s hold the same entries\n", a, b)
		return nil
	}

	var leftObj map[string]interface{}
	if err := json.Unmarshal(left, &leftObj); err != nil {
		return err
	}
	f := formatter.NewAsciiFormatter(leftObj, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       cmd.Bool("color"),
	})
	text, err := f.Format(d)
	if err != nil {
		return fmt.Errorf("failed to format diff: %w", err)
	}
	fmt.Fprint(out, text)
	return nil
}

func DiffCommandBuilder(meta meta.Meta) *cli.Command {
	b := CommandBuilder{
		Name:      "diff",
		Usage:     "compare the entries of two generations",
		UsageText: `shellcache diff [options] <generation> <generation>`,
		Flags: append([]cli.Flag{
			&cli.BoolWithInverseFlag{
				Name:    "color",
				Aliases: []string{"c"},
				Usage:   "enable colored diff output",
				Value:   isTerminal(),
			},
		}, NewStoreFlags("diff")...),
		Action: DiffCommandAction,
		Meta:   meta,
	}
	return b.Build()
}
