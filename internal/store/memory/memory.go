// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package memory is an in-process store.Storage. Nothing survives the process;
// it backs tests and the serve command when no persistent store is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/staranto/shellcache/internal/store"
)

type Storage struct {
	mu   sync.RWMutex
	gens map[string]*generation
}

type generation struct {
	name    string
	owner   *Storage
	entries map[string]store.Entry
}

var _ store.Storage = (*Storage)(nil)

func New() *Storage {
	return &Storage{gens: make(map[string]*generation)}
}

func (s *Storage) Open(_ context.Context, name string) (store.Cache, error) {
	if err := store.ValidName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gens[name]
	if !ok {
		g = &generation{name: name, owner: s, entries: make(map[string]store.Entry)}
		s.gens[name] = g
	}
	return g, nil
}

func (s *Storage) Has(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.gens[name]
	return ok, nil
}

func (s *Storage) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.gens))
	for n := range s.gens {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gens[name]
	if !ok {
		return false, nil
	}
	// Handles still held by callers see an empty, detached generation.
	g.entries = make(map[string]store.Entry)
	delete(s.gens, name)
	return true, nil
}

func (g *generation) Name() string { return g.name }

func (g *generation) Match(_ context.Context, key store.Key) (store.Entry, error) {
	g.owner.mu.RLock()
	defer g.owner.mu.RUnlock()
	e, ok := g.entries[key.String()]
	if !ok {
		return store.Entry{}, store.ErrNotFound
	}
	return e.Clone(), nil
}

func (g *generation) Put(_ context.Context, key store.Key, entry store.Entry) error {
	entry = entry.Clone()
	entry.Method, entry.URL = key.Method, key.URL

	g.owner.mu.Lock()
	defer g.owner.mu.Unlock()
	g.entries[key.String()] = entry
	return nil
}

func (g *generation) Keys(_ context.Context) ([]store.Key, error) {
	g.owner.mu.RLock()
	defer g.owner.mu.RUnlock()
	keys := make([]store.Key, 0, len(g.entries))
	for _, e := range g.entries {
		keys = append(keys, e.Key())
	}
	return keys, nil
}
