// Package usagedb persists per-device usage snapshots in SQLite and answers the
// per-account and system-wide rollups built from them.
package usagedb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"
)

const (
	defaultPurgeBatchSize = 1000
	defaultMaxOpenConns   = 8
	defaultBusyTimeout    = 5 * time.Second

	// timeLayout is fixed width so that text comparison in SQL orders chronologically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

type Options struct {
	// PurgeBatchSize bounds how many rows one purge statement deletes.
	PurgeBatchSize int
	MaxOpenConns   int
	BusyTimeout    time.Duration
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

func normalizeOptions(in Options) Options {
	out := in
	if out.PurgeBatchSize <= 0 {
		out.PurgeBatchSize = defaultPurgeBatchSize
	}
	if out.MaxOpenConns <= 0 {
		out.MaxOpenConns = defaultMaxOpenConns
	}
	if out.BusyTimeout <= 0 {
		out.BusyTimeout = defaultBusyTimeout
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

// Store owns the on-disk representation. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	opts Options
}

// Open creates the database directory if needed, opens the SQLite file and
// brings the schema up to date.
func Open(path string, opts Options) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("open usage db: empty path")
	}
	opts = normalizeOptions(opts)
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{db: db, path: path, opts: opts}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	slog.Debug("usage db opened", "path", path)
	return s, nil
}

// dsn sets the pragmas on every pooled connection rather than on whichever
// connection happens to run a PRAGMA statement.
func dsn(path string, opts Options) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Ping checks that the database still answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func (s *Store) now() time.Time {
	return s.opts.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	ts, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", v, err)
	}
	return ts, nil
}
