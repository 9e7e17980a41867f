// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by Cache.Match when no entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Key identifies a stored response. URL is absolute.
type Key struct {
	Method string
	URL    string
}

// NewKey builds the key for req. An empty method is GET. The fragment never
// reaches the server, so it is not part of the key.
func NewKey(req *http.Request) Key {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	u := *req.URL
	u.Fragment, u.RawFragment = "", ""
	return Key{Method: method, URL: u.String()}
}

// String is the canonical form, e.g. "GET https://host/path".
func (k Key) String() string {
	return k.Method + " " + k.URL
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	method, u, ok := strings.Cut(s, " ")
	if !ok || method == "" || u == "" {
		return Key{}, fmt.Errorf("malformed cache key %q", s)
	}
	return Key{Method: method, URL: u}, nil
}

// Entry is a stored response.
type Entry struct {
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body,omitempty"`
	StoredAt time.Time   `json:"stored_at"`
}

// Key returns the key the entry was stored under.
func (e Entry) Key() Key {
	return Key{Method: e.Method, URL: e.URL}
}

// Size is the body length in bytes.
func (e Entry) Size() int64 {
	return int64(len(e.Body))
}

// Clone returns a deep copy so callers never share header maps or body
// slices with a backend.
func (e Entry) Clone() Entry {
	c := e
	c.Header = e.Header.Clone()
	if e.Body != nil {
		c.Body = append([]byte(nil), e.Body...)
	}
	return c
}

// Response materializes the entry as a fresh *http.Response for req. Every
// call gets its own body reader.
func (e Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Length", strconv.Itoa(len(e.Body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Capture drains resp.Body into an Entry and replaces resp.Body with an
// unread copy, so the response can still be handed to the caller.
func Capture(key Key, resp *http.Response) (Entry, error) {
	var body []byte
	if resp.Body != nil {
		b, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return Entry{}, fmt.Errorf("failed to read response body: %w", err)
		}
		body = b
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	return Entry{
		Method:   key.Method,
		URL:      key.URL,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     append([]byte(nil), body...),
		StoredAt: time.Now().UTC(),
	}, nil
}

// Cache is a single generation.
type Cache interface {
	// Name is the generation name.
	Name() string
	// Match returns the entry stored under key or ErrNotFound.
	Match(ctx context.Context, key Key) (Entry, error)
	// Put stores entry under key, replacing any previous entry.
	Put(ctx context.Context, key Key, entry Entry) error
	// Keys lists every stored key.
	Keys(ctx context.Context) ([]Key, error)
}

// Storage is the set of generations.
type Storage interface {
	// Open returns the named generation, creating it when absent.
	Open(ctx context.Context, name string) (Cache, error)
	// Has reports whether the named generation exists.
	Has(ctx context.Context, name string) (bool, error)
	// Names lists the existing generations in sorted order.
	Names(ctx context.Context) ([]string, error)
	// Delete removes the named generation and all its entries. It reports
	// whether the generation existed.
	Delete(ctx context.Context, name string) (bool, error)
}

// Summary describes one generation for listings.
type Summary struct {
	Name    string
	Entries int
	Bytes   int64
	Newest  time.Time
}

// Summarize walks every entry of c.
func Summarize(ctx context.Context, c Cache) (Summary, error) {
	s := Summary{Name: c.Name()}
	keys, err := c.Keys(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to list keys of %s: %w", c.Name(), err)
	}
	for _, k := range keys {
		e, err := c.Match(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return s, err
		}
		s.Entries++
		s.Bytes += e.Size()
		if e.StoredAt.After(s.Newest) {
			s.Newest = e.StoredAt
		}
	}
	return s, nil
}

// ValidName rejects generation names that cannot be used as a directory or
// object prefix.
func ValidName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("generation name is required")
	case name == "." || name == "..":
		return fmt.Errorf("invalid generation name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("generation name %q must not contain path separators", name)
	}
	return nil
}
