// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/staranto/shellcache/internal/shell"
)

// DecisionHeader carries the worker's decision for each proxied response.
const DecisionHeader = "X-Shellcache"

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Headers that only apply to a single connection and are never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Start runs the worker lifecycle, Install then Activate, and returns a
// handler serving fetch events against it.
func Start(ctx context.Context, w *shell.Worker) (http.Handler, error) {
	if w == nil {
		return nil, errors.New("worker is required")
	}
	if err := w.Install(ctx); err != nil {
		return nil, err
	}
	if err := w.Activate(ctx); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"generation": w.Generation(),
		"origin":     w.Origin().String(),
	}).Info("worker activated")
	return Handler(w), nil
}

// Handler answers each request with one fetch event. A failed fetch becomes
// 502 Bad Gateway.
func Handler(w *shell.Worker) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		req := r.Clone(r.Context())
		req.URL.Scheme, req.URL.Host = "", ""
		for _, h := range hopHeaders {
			req.Header.Del(h)
		}

		res, err := w.Handle(r.Context(), req)
		if err != nil {
			log.WithError(err).Warnf("failed to load %s %s", r.Method, r.URL.Path)
			if res.Source != "" {
				rw.Header().Set(DecisionHeader, string(res.Source))
			}
			http.Error(rw, "502 Bad Gateway: failed to load "+r.URL.Path, http.StatusBadGateway)
			return
		}
		resp := res.Response
		defer resp.Body.Close()

		copyHeader(rw.Header(), resp.Header)
		rw.Header().Set(DecisionHeader, string(res.Source))
		rw.WriteHeader(resp.StatusCode)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(rw, resp.Body); err != nil {
			log.WithError(err).Debugf("client went away during %s", r.URL.Path)
		}

		log.WithFields(log.Fields{
			"status": resp.StatusCode,
			"source": res.Source,
			"stored": res.Stored,
		}).Debugf("%s %s", r.Method, r.URL.RequestURI())
	})
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		if isHop(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHop(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

// Server hosts a handler on one address.
type Server struct {
	httpServer *http.Server
}

func NewServer(addr string, handler http.Handler) (*Server, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("listen address is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

// ListenAndServe serves until ctx is cancelled or the server fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down %s: %w", s.httpServer.Addr, err)
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve %s: %w", s.httpServer.Addr, err)
	}
}
