// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	md2man "github.com/cpuguy83/go-md2man/v2/md2man"
)

// docgen reads docs/commands/*.md as the canonical command docs and
// generates:
//   - docs/man/share/man1/shellcache-<cmd>.1 via md2man
//   - docs/tldr/shellcache-<cmd>.md from the short description and the Quick
//     examples block

const (
	binary  = "shellcache"
	homeURL = "https://github.com/staranto/shellcache"
)

func main() {
	var (
		repoRoot           string
		writeOnlyIfChanged bool
	)

	flag.StringVar(&repoRoot, "root", ".", "repo root (default current dir)")
	flag.BoolVar(&writeOnlyIfChanged, "only-if-changed", true, "only write files if content changed")
	flag.Parse()

	commandsDir := filepath.Join(repoRoot, "docs", "commands")
	manOutDir := filepath.Join(repoRoot, "docs", "man", "share", "man1")
	tldrOutDir := filepath.Join(repoRoot, "docs", "tldr")

	for _, dir := range []string{manOutDir, tldrOutDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fatalf("creating output dir %s: %v", dir, err)
		}
	}

	entries, err := os.ReadDir(commandsDir)
	if err != nil {
		fatalf("reading commands dir %s: %v", commandsDir, err)
	}

	var processed int
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		inPath := filepath.Join(commandsDir, e.Name())
		raw, err := os.ReadFile(inPath)
		if err != nil {
			fatalf("reading %s: %v", inPath, err)
		}

		doc := parseDoc(strings.TrimSuffix(e.Name(), ".md"), raw)

		manPath := filepath.Join(manOutDir, doc.page()+".1")
		if err := writeFileIfChanged(manPath, doc.man(), writeOnlyIfChanged); err != nil {
			fatalf("writing man page for %s: %v", doc.name, err)
		}

		tldrPath := filepath.Join(tldrOutDir, doc.page()+".md")
		if err := writeFileIfChanged(tldrPath, []byte(doc.tldr()), writeOnlyIfChanged); err != nil {
			fatalf("writing TLDR for %s: %v", doc.name, err)
		}

		processed++
	}

	if processed == 0 {
		fatalf("no command markdown found under %s", commandsDir)
	}
}

func fatalf(f string, a ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", a...)
	os.Exit(1)
}

func writeFileIfChanged(path string, new []byte, onlyIfChanged bool) error {
	if !onlyIfChanged {
		return os.WriteFile(path, new, 0o644)
	}
	old, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return os.WriteFile(path, new, 0o644)
		}
		return err
	}
	if bytes.Equal(bytes.TrimSpace(old), bytes.TrimSpace(new)) {
		return nil
	}
	return os.WriteFile(path, new, 0o644)
}

type example struct {
	Desc string
	Cmd  string
}

// commandDoc is one docs/commands page split into the parts docgen uses.
type commandDoc struct {
	name     string
	title    string
	short    string
	examples []example
	raw      []byte
}

// Section headings are plain lines, optionally written as markdown headings.
const (
	shortHeading    = "short description"
	examplesHeading = "quick examples"
	flagsHeading    = "flags and related docs"
)

var h1Re = regexp.MustCompile(`(?m)^#\s+(.+)$`)

func parseDoc(name string, raw []byte) commandDoc {
	doc := commandDoc{name: name, raw: raw}
	md := string(raw)

	if m := h1Re.FindStringSubmatch(md); m != nil {
		doc.title = strings.TrimSpace(m[1])
	}

	secs := sections(md)
	doc.short = firstParagraph(secs[shortHeading])
	if doc.short == "" && doc.title != "" {
		doc.short = doc.title + "."
	}
	doc.examples = parseExamples(firstFence(secs[examplesHeading]))
	return doc
}

func (d commandDoc) page() string {
	return binary + "-" + d.name
}

// man renders the page with md2man, adding a title block when the markdown
// has none.
func (d commandDoc) man() []byte {
	src := d.raw
	if !bytes.HasPrefix(src, []byte("%")) {
		src = append([]byte(fmt.Sprintf("%% %s(1)\n\n", d.page())), src...)
	}
	return md2man.Render(src)
}

func (d commandDoc) tldr() string {
	var b strings.Builder
	b.WriteString("# " + d.page() + "\n\n")
	switch {
	case d.short != "":
		b.WriteString("> " + d.short + "\n")
	default:
		b.WriteString("> " + binary + " " + d.name + "\n")
	}
	b.WriteString("> More information: " + homeURL + ".\n\n")

	if len(d.examples) == 0 {
		b.WriteString("- Show help for the command:\n\n")
		b.WriteString("`" + binary + " " + d.name + " --help`\n\n")
		return b.String()
	}

	for i, ex := range d.examples {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + ex.Desc + ":\n\n")
		b.WriteString("`" + sanitizeCommand(ex.Cmd) + "`\n")
	}
	return b.String()
}

// sections maps each known heading to the text below it.
func sections(md string) map[string]string {
	out := make(map[string]string)
	var (
		cur    string
		body   []string
		fenced bool
	)
	flush := func() {
		if cur != "" {
			out[cur] = strings.Join(body, "\n")
		}
	}
	for _, ln := range strings.Split(md, "\n") {
		if strings.HasPrefix(strings.TrimSpace(ln), "```") {
			fenced = !fenced
		}
		if !fenced {
			h := strings.ToLower(strings.TrimSpace(strings.TrimLeft(ln, "#")))
			if h == shortHeading || h == examplesHeading || h == flagsHeading {
				flush()
				cur, body = h, nil
				continue
			}
		}
		body = append(body, ln)
	}
	flush()
	return out
}

func firstParagraph(s string) string {
	var words []string
	for _, ln := range strings.Split(s, "\n") {
		if strings.TrimSpace(ln) == "" {
			if len(words) > 0 {
				break
			}
			continue
		}
		words = append(words, strings.Fields(ln)...)
	}
	return strings.Join(words, " ")
}

// firstFence returns the body of the first fenced code block, without its
// info string.
func firstFence(s string) string {
	const fence = "```"
	start := strings.Index(s, fence)
	if start < 0 {
		return ""
	}
	rest := s[start+len(fence):]
	nl := strings.Index(rest, "\n")
	if nl < 0 {
		return ""
	}
	rest = rest[nl+1:]
	end := strings.Index(rest, fence)
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// parseExamples pairs each "# description" comment with the command after
// it. A command without a description gets a generic one.
func parseExamples(code string) []example {
	var (
		exs  []example
		desc string
	)
	for _, ln := range strings.Split(code, "\n") {
		s := strings.TrimSpace(ln)
		switch {
		case s == "":
		case strings.HasPrefix(s, "#"):
			desc = strings.TrimSpace(strings.TrimPrefix(s, "#"))
		default:
			if desc == "" {
				desc = "Example"
			}
			exs = append(exs, example{Desc: desc, Cmd: s})
			desc = ""
		}
	}
	return exs
}

var placeholderRe = regexp.MustCompile(`<([A-Za-z0-9_-]+)>`)

// sanitizeCommand compresses whitespace and rewrites <placeholder> in the
// tldr {{placeholder}} style.
func sanitizeCommand(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return placeholderRe.ReplaceAllString(s, "{{$1}}")
}
