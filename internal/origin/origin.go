// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package origin

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
)

const (
	// WorkFilePrefix marks job files eligible for cleanup.
	WorkFilePrefix = "freqshift_"

	manifestType = "application/manifest+json"
	audioType    = "audio/wav"
)

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "SAMEORIGIN"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
}

// Server serves the shell assets and result files.
type Server struct {
	cfg Config
	now func() time.Time
}

// New returns a Server for cfg, creating the work dir if needed.
func New(cfg Config) (*Server, error) {
	if cfg.StaticDir == "" {
		return nil, errors.New("static dir is required")
	}
	if cfg.WorkDir == "" {
		return nil, errors.New("work dir is required")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir %s: %w", cfg.WorkDir, err)
	}
	return &Server{cfg: cfg, now: time.Now}, nil
}

// Handler routes every origin path and adds the security headers.
func (s *Server) Handler() http.Handler {
	static := s.cfg.StaticDir

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("GET /privacy", s.file(filepath.Join(static, "privacy.html"), ""))
	mux.HandleFunc("GET /manifest.webmanifest", s.file(filepath.Join(static, "manifest.webmanifest"), manifestType))
	mux.HandleFunc("GET /sw.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		s.file(filepath.Join(static, "sw.js"), "application/javascript")(w, r)
	})
	mux.Handle("GET /.well-known/", http.StripPrefix("/.well-known/", http.FileServer(http.Dir(filepath.Join(static, ".well-known")))))
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(static))))
	mux.HandleFunc("GET /result/{name...}", s.result(false))
	mux.HandleFunc("GET /download/{name...}", s.result(true))

	return withSecurityHeaders(mux)
}

// withSecurityHeaders sets defaults that handlers may override.
func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			if h.Get(kv[0]) == "" {
				h.Set(kv[0], kv[1])
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if _, _, err := Cleanup(s.cfg.WorkDir, s.cfg.CleanupAfter, s.now()); err != nil {
		log.WithError(err).Warn("work dir cleanup failed")
	}
	s.file(filepath.Join(s.cfg.StaticDir, "index.html"), "text/html; charset=utf-8")(w, r)
}

func (s *Server) file(path, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !exists(path) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		http.ServeFile(w, r, path)
	}
}

// result serves a work dir file inline, or as an attachment when attach is
// set. Names escaping the work dir are treated as missing.
func (s *Server) result(attach bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if name == "" || !filepath.IsLocal(filepath.FromSlash(name)) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		path := filepath.Join(s.cfg.WorkDir, filepath.FromSlash(name))
		if !exists(path) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", audioType)
		if attach {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
		}
		http.ServeFile(w, r, path)
	}
}

func exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Cleanup removes job files in dir whose modification time is older than
// maxAge. It returns the number of files and bytes removed.
func Cleanup(dir string, maxAge time.Duration, now time.Time) (int, uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var removed int
	var freed uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), WorkFilePrefix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(fi.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Debugf("failed to remove %s", e.Name())
			continue
		}
		removed++
		freed += uint64(fi.Size())
	}

	if removed > 0 {
		log.Infof("removed %d stale job files (%s)", removed, humanize.Bytes(freed))
	}
	return removed, freed, nil
}
