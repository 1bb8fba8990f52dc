package usagedb

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/lkarlslund/tokensync/pkg/telemetry"
)

const exportVersion = 1

// exportLine is one record of an export stream. The first line of a stream is a
// header with Version set and no snapshot.
type exportLine struct {
	Version    int                    `json:"version,omitempty"`
	ExportedAt string                 `json:"exported_at,omitempty"`
	Snapshot   *telemetry.RawSnapshot `json:"snapshot,omitempty"`
}

// Export writes every stored snapshot as zstd-compressed JSON lines, ordered by
// account, hostname and timestamp. It returns the number of snapshots written.
func (s *Store) Export(ctx context.Context, w io.Writer) (int64, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("create zstd encoder: %w", err)
	}
	jw := json.NewEncoder(enc)

	if err := jw.Encode(exportLine{Version: exportVersion, ExportedAt: s.now().Format(time.RFC3339)}); err != nil {
		_ = enc.Close()
		return 0, fmt.Errorf("write export header: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			account_key, hostname, timestamp,
			total_tokens, input_tokens, output_tokens,
			cache_creation_tokens, cache_read_tokens,
			sessions_total, sessions_active,
			cost_opus, cost_sonnet, cost_haiku, cost_actual,
			hourly_usage, client_version
		FROM device_snapshots
		ORDER BY account_key, hostname, timestamp
	`)
	if err != nil {
		_ = enc.Close()
		return 0, storageErr("query export", err)
	}
	defer func() { _ = rows.Close() }()

	var count int64
	for rows.Next() {
		var (
			snap       telemetry.Snapshot
			ts, hourly string
		)
		if err := rows.Scan(
			&snap.AccountKey, &snap.Hostname, &ts,
			&snap.Usage.TotalTokens, &snap.Usage.InputTokens, &snap.Usage.OutputTokens,
			&snap.Usage.CacheCreationTokens, &snap.Usage.CacheReadTokens,
			&snap.Sessions.Total, &snap.Sessions.Active,
			&snap.Costs.Opus, &snap.Costs.Sonnet, &snap.Costs.Haiku, &snap.Costs.Actual,
			&hourly, &snap.ClientVersion,
		); err != nil {
			_ = enc.Close()
			return count, storageErr("scan export", err)
		}
		if snap.Timestamp, err = parseTime(ts); err != nil {
			_ = enc.Close()
			return count, storageErr("scan export", err)
		}
		if err := json.Unmarshal([]byte(hourly), &snap.HourlyUsage); err != nil {
			_ = enc.Close()
			return count, storageErr("decode hourly usage", err)
		}
		raw := snap.Raw()
		if err := jw.Encode(exportLine{Snapshot: &raw}); err != nil {
			_ = enc.Close()
			return count, fmt.Errorf("write export line: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		_ = enc.Close()
		return count, storageErr("query export", err)
	}
	if err := enc.Close(); err != nil {
		return count, fmt.Errorf("flush export: %w", err)
	}
	slog.Info("usage db exported snapshots", "rows", count)
	return count, nil
}

// Import replays an Export stream through SaveSnapshot. Replaying the same
// stream twice leaves the store unchanged.
func (s *Store) Import(ctx context.Context, r io.Reader) (int64, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		count      int64
		lineNo     int
		seenHeader bool
	)
	for sc.Scan() {
		lineNo++
		var line exportLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			return count, fmt.Errorf("decode export line %d: %w", lineNo, err)
		}
		if !seenHeader {
			if line.Version != exportVersion {
				return 0, fmt.Errorf("unsupported export version %d", line.Version)
			}
			seenHeader = true
			continue
		}
		if line.Snapshot == nil {
			continue
		}
		snap, err := telemetry.Validate(*line.Snapshot)
		if err != nil {
			return count, fmt.Errorf("export line %d: %w", lineNo, err)
		}
		if err := s.SaveSnapshot(ctx, snap); err != nil {
			return count, err
		}
		count++
	}
	if err := sc.Err(); err != nil {
		return count, fmt.Errorf("read export: %w", err)
	}
	if !seenHeader {
		return 0, fmt.Errorf("empty export stream")
	}
	slog.Info("usage db imported snapshots", "rows", count)
	return count, nil
}
