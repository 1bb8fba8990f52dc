package usagedb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS accounts (
		key TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		last_seen TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS device_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_key TEXT NOT NULL REFERENCES accounts(key) ON DELETE CASCADE,
		hostname TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
		cache_read_tokens INTEGER NOT NULL DEFAULT 0,
		sessions_total INTEGER NOT NULL DEFAULT 0,
		sessions_active INTEGER NOT NULL DEFAULT 0,
		cost_opus REAL NOT NULL DEFAULT 0,
		cost_sonnet REAL NOT NULL DEFAULT 0,
		cost_haiku REAL NOT NULL DEFAULT 0,
		cost_actual REAL NOT NULL DEFAULT 0,
		hourly_usage TEXT NOT NULL,
		UNIQUE(account_key, hostname, timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_device_snapshots_account_hostname ON device_snapshots(account_key, hostname);
	CREATE INDEX IF NOT EXISTS idx_device_snapshots_timestamp ON device_snapshots(timestamp);
	`,
	`
	ALTER TABLE device_snapshots ADD COLUMN client_version TEXT NOT NULL DEFAULT '';
	CREATE INDEX IF NOT EXISTS idx_accounts_last_seen ON accounts(last_seen);
	`,
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL,
			applied_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version WHERE id = 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		if err := s.applyMigration(ctx, i+1, migrations[i]); err != nil {
			return err
		}
		slog.Info("usage db migrated", "version", i+1)
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, version int, stmt string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("apply migration %d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_version (id, version, applied_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version, applied_at = excluded.applied_at
	`, version, formatTime(s.now())); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	return tx.Commit()
}

// LatestSchemaVersion is the schema version this build migrates to.
func LatestSchemaVersion() int {
	return len(migrations)
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version WHERE id = 1").Scan(&version); err != nil {
		return 0, storageErr("schema version", err)
	}
	return version, nil
}
