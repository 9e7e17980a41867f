// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package sqlite provides a SQLite-backed store.Storage. All generations share
// one database file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/staranto/shellcache/internal/store"
)

//go:embed schema.sql
var schema string

// Store persists generations in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ store.Storage = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := sqlDB.Exec(stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Open(ctx context.Context, name string) (store.Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.ValidName(name); err != nil {
		return nil, err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO generations (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, toMillis(time.Now()),
	); err != nil {
		return nil, fmt.Errorf("create generation %s: %w", name, err)
	}
	return &cache{name: name, db: s.sqlDB}, nil
}

func (s *Store) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM generations WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup generation %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM generations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE generation = ?`, name); err != nil {
		return false, fmt.Errorf("delete entries of %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM generations WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete generation %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete %s: %w", name, err)
	}
	return n > 0, nil
}

type cache struct {
	name string
	db   *sql.DB
}

func (c *cache) Name() string { return c.name }

func (c *cache) Match(ctx context.Context, key store.Key) (store.Entry, error) {
	var (
		e        store.Entry
		header   string
		storedAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT method, url, status, header, body, stored_at
		   FROM entries WHERE generation = ? AND cache_key = ?`,
		c.name, key.String(),
	).Scan(&e.Method, &e.URL, &e.Status, &header, &e.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Entry{}, store.ErrNotFound
	}
	if err != nil {
		return store.Entry{}, fmt.Errorf("read entry %s: %w", key, err)
	}
	e.StoredAt = fromMillis(storedAt)
	if header != "" {
		var h http.Header
		if err := json.Unmarshal([]byte(header), &h); err != nil {
			return store.Entry{}, fmt.Errorf("decode header of %s: %w", key, err)
		}
		e.Header = h
	}
	return e, nil
}

// Put fails when the generation was deleted after this handle was opened;
// the foreign key keeps orphan rows out.
func (c *cache) Put(ctx context.Context, key store.Key, entry store.Entry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO entries (generation, cache_key, method, url, status, header, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(generation, cache_key) DO UPDATE SET
		   status = excluded.status,
		   header = excluded.header,
		   body = excluded.body,
		   stored_at = excluded.stored_at`,
		c.name, key.String(), key.Method, key.URL, entry.Status, string(header), entry.Body, toMillis(entry.StoredAt),
	)
	if err != nil {
		return fmt.Errorf("write entry %s: %w", key, err)
	}
	return nil
}

func (c *cache) Keys(ctx context.Context) ([]store.Key, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT method, url FROM entries WHERE generation = ? ORDER BY cache_key`, c.name)
	if err != nil {
		return nil, fmt.Errorf("list entries of %s: %w", c.name, err)
	}
	defer rows.Close()

	var keys []store.Key
	for rows.Next() {
		var k store.Key
		if err := rows.Scan(&k.Method, &k.URL); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
