package usagedb

import (
	"context"
	"log/slog"
	"time"

	"github.com/lkarlslund/tokensync/pkg/telemetry"
)

// maxPurgeDays reaches back past year 0000, the earliest storable timestamp.
const maxPurgeDays = 1 << 22

// PurgeOlderThan deletes every snapshot whose report timestamp is strictly before
// now - days. Rows go in batches so the write lock is only held briefly and
// readers and syncs interleave with a long purge. Accounts are not touched.
func (s *Store) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, &telemetry.ValidationError{Field: "days", Reason: "must be >= 0"}
	}
	if days > maxPurgeDays {
		// The cutoff would predate any storable report timestamp.
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -days)
	return s.purgeBefore(ctx, cutoff)
}

func (s *Store) purgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffStr := formatTime(cutoff)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, storageErr("purge", err)
		}
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM device_snapshots
			WHERE id IN (
				SELECT id FROM device_snapshots WHERE timestamp < ? LIMIT ?
			)
		`, cutoffStr, s.opts.PurgeBatchSize)
		if err != nil {
			return total, storageErr("purge", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, storageErr("purge", err)
		}
		total += n
		if n < int64(s.opts.PurgeBatchSize) {
			break
		}
	}
	if total > 0 {
		slog.Info("usage db purged old snapshots", "rows", total, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return total, nil
}
