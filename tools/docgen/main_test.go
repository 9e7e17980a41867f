// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = "# shellcache keys\n\n" +
	"Short description\n\n" +
	"List the request keys stored\nin a generation.\n\n" +
	"Quick examples\n\n" +
	"```bash\n" +
	"# Show every entry\n" +
	"shellcache keys   freqshift-v3\n\n" +
	"shellcache keys <generation> -o json\n" +
	"```\n"

func TestParseDoc(t *testing.T) {
	doc := parseDoc("keys", []byte(sampleDoc))
	assert.Equal(t, "shellcache keys", doc.title)
	assert.Equal(t, "List the request keys stored in a generation.", doc.short)
	require.Len(t, doc.examples, 2)
	assert.Equal(t, example{Desc: "Show every entry", Cmd: "shellcache keys   freqshift-v3"}, doc.examples[0])
	assert.Equal(t, "Example", doc.examples[1].Desc)
	assert.Equal(t, "shellcache-keys", doc.page())

	doc = parseDoc("purge", []byte("# shellcache purge\n"))
	assert.Equal(t, "shellcache purge.", doc.short)
	assert.Empty(t, doc.examples)
}

func TestSections_IgnoresHeadingsInFences(t *testing.T) {
	md := "## Quick examples\n\n```\nShort description\nshellcache ls\n```\n"
	secs := sections(md)
	assert.Contains(t, secs, examplesHeading)
	assert.NotContains(t, secs, shortHeading)
	assert.Equal(t, []example{{Desc: "Example", Cmd: "Short description"}, {Desc: "Example", Cmd: "shellcache ls"}},
		parseExamples(firstFence(secs[examplesHeading])))
}

func TestTLDR(t *testing.T) {
	got := parseDoc("keys", []byte(sampleDoc)).tldr()

	assert.Contains(t, got, "# shellcache-keys\n\n> List the request keys stored in a generation.\n")
	assert.Contains(t, got, "> More information: "+homeURL+".")
	assert.Contains(t, got, "- Show every entry:\n\n`shellcache keys freqshift-v3`")
	assert.Contains(t, got, "`shellcache keys {{generation}} -o json`")

	got = commandDoc{name: "purge"}.tldr()
	assert.Contains(t, got, "> shellcache purge\n")
	assert.Contains(t, got, "`shellcache purge --help`")
}

func TestMan(t *testing.T) {
	got := string(parseDoc("keys", []byte(sampleDoc)).man())
	assert.Contains(t, got, ".TH")
	assert.Contains(t, got, "freqshift")
}

func TestWriteFileIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")

	require.NoError(t, writeFileIfChanged(path, []byte("a\n"), true))
	info, err := os.Stat(path)
	require.NoError(t, err)
	mtime := info.ModTime()

	require.NoError(t, writeFileIfChanged(path, []byte("a"), true))
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, mtime, info.ModTime())

	require.NoError(t, writeFileIfChanged(path, []byte("b"), true))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))
}
