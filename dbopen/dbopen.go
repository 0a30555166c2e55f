// Package dbopen opens the SQLite database that holds the service's
// observability tables, with the pragmas every writer in the process relies
// on:
//
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//	foreign_keys = ON
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("data/observability.db",
//		dbopen.WithMkdirAll(),
//		dbopen.WithSchema(observability.Schema),
//	)
//
// In tests:
//
//	db := dbopen.OpenMemory(t)
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type config struct {
	busyTimeout int
	mkdirAll    bool
	schemas     []string
}

// Option customises Open.
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues DDL to execute once the pragmas are applied.
func WithSchema(ddl string) Option { return func(c *config) { c.schemas = append(c.schemas, ddl) } }

// Open opens the database at path with the modernc "sqlite" driver, which
// the caller registers by a blank import.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := config{busyTimeout: 10_000}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}

	stmts := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	stmts = append(stmts, cfg.schemas...)
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: exec %.40q: %w", s, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for tests, closed on cleanup.
// MaxOpenConns is 1 because every connection to ":memory:" is a separate
// database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
