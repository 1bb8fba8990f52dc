package usagedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lkarlslund/tokensync/pkg/telemetry"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertAccountSQL = `
	INSERT INTO accounts (key, created_at, last_seen) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET last_seen = excluded.last_seen
`

// Every column is overwritten: a re-submitted triple replaces the row content.
const upsertSnapshotSQL = `
	INSERT INTO device_snapshots (
		account_key, hostname, timestamp,
		total_tokens, input_tokens, output_tokens,
		cache_creation_tokens, cache_read_tokens,
		sessions_total, sessions_active,
		cost_opus, cost_sonnet, cost_haiku, cost_actual,
		hourly_usage, client_version
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(account_key, hostname, timestamp) DO UPDATE SET
		total_tokens = excluded.total_tokens,
		input_tokens = excluded.input_tokens,
		output_tokens = excluded.output_tokens,
		cache_creation_tokens = excluded.cache_creation_tokens,
		cache_read_tokens = excluded.cache_read_tokens,
		sessions_total = excluded.sessions_total,
		sessions_active = excluded.sessions_active,
		cost_opus = excluded.cost_opus,
		cost_sonnet = excluded.cost_sonnet,
		cost_haiku = excluded.cost_haiku,
		cost_actual = excluded.cost_actual,
		hourly_usage = excluded.hourly_usage,
		client_version = excluded.client_version
`

// UpsertAccount creates the account if absent and refreshes its last-seen time.
// Concurrent calls race on last_seen; the last writer wins.
func (s *Store) UpsertAccount(ctx context.Context, key string) error {
	key, err := telemetry.ValidateAccountKey(key)
	if err != nil {
		return err
	}
	return storageErr("upsert account", s.upsertAccount(ctx, s.db, key))
}

func (s *Store) upsertAccount(ctx context.Context, ex execer, key string) error {
	now := formatTime(s.now())
	_, err := ex.ExecContext(ctx, upsertAccountSQL, key, now, now)
	return err
}

// SaveSnapshot upserts the account and inserts or replaces the snapshot row for
// (account, hostname, timestamp) in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap telemetry.Snapshot) error {
	key, err := telemetry.ValidateAccountKey(snap.AccountKey)
	if err != nil {
		return err
	}
	if err := telemetry.ValidateHostname(snap.Hostname); err != nil {
		return err
	}
	if snap.Timestamp.IsZero() {
		return &telemetry.ValidationError{Field: "timestamp", Reason: "required"}
	}
	hourly, err := json.Marshal(snap.HourlyUsage)
	if err != nil {
		return fmt.Errorf("encode hourly usage: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin save snapshot", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.upsertAccount(ctx, tx, key); err != nil {
		return storageErr("upsert account", err)
	}
	if _, err := tx.ExecContext(ctx, upsertSnapshotSQL,
		key,
		snap.Hostname,
		formatTime(snap.Timestamp),
		snap.Usage.TotalTokens,
		snap.Usage.InputTokens,
		snap.Usage.OutputTokens,
		snap.Usage.CacheCreationTokens,
		snap.Usage.CacheReadTokens,
		snap.Sessions.Total,
		snap.Sessions.Active,
		snap.Costs.Opus,
		snap.Costs.Sonnet,
		snap.Costs.Haiku,
		snap.Costs.Actual,
		string(hourly),
		snap.ClientVersion,
	); err != nil {
		return storageErr("upsert snapshot", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit save snapshot", err)
	}

	slog.Debug("usage db saved snapshot",
		"account", keyPrefix(key),
		"hostname", snap.Hostname,
		"timestamp", snap.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"total_tokens", snap.Usage.TotalTokens,
	)
	return nil
}

// DeleteDevice removes every snapshot of one device.
func (s *Store) DeleteDevice(ctx context.Context, key, hostname string) (int64, error) {
	key, err := telemetry.ValidateAccountKey(key)
	if err != nil {
		return 0, err
	}
	if err := telemetry.ValidateHostname(hostname); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM device_snapshots WHERE account_key = ? AND hostname = ?", key, hostname)
	if err != nil {
		return 0, storageErr("delete device", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete device", err)
	}
	if n == 0 {
		return 0, &NotFoundError{AccountKey: key, Hostname: hostname}
	}
	slog.Info("usage db removed device", "account", keyPrefix(key), "hostname", hostname, "rows", n)
	return n, nil
}

// DeleteAccount removes the account and, by cascade, all of its snapshots.
func (s *Store) DeleteAccount(ctx context.Context, key string) error {
	key, err := telemetry.ValidateAccountKey(key)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE key = ?", key)
	if err != nil {
		return storageErr("delete account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete account", err)
	}
	if n == 0 {
		return &NotFoundError{AccountKey: key}
	}
	slog.Info("usage db removed account", "account", keyPrefix(key))
	return nil
}

func keyPrefix(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
