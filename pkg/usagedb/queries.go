package usagedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lkarlslund/tokensync/pkg/telemetry"
)

const (
	defaultAccountListLimit = 50
	maxAccountListLimit     = 500
	defaultHourlyRowLimit   = 100
)

// latestSnapshotsSQL resolves the newest row per (account, hostname). It is
// evaluated on every read since snapshots may arrive out of order.
const latestSnapshotsSQL = `
	latest AS (
		SELECT * FROM (
			SELECT
				account_key, hostname, timestamp, total_tokens, cost_opus, cost_actual,
				ROW_NUMBER() OVER (PARTITION BY account_key, hostname ORDER BY timestamp DESC) AS rn
			FROM device_snapshots
			%s
		) WHERE rn = 1
	)
`

func latestCTE(where string) string {
	return "WITH " + fmt.Sprintf(latestSnapshotsSQL, where)
}

type DeviceSummary struct {
	Hostname    string    `json:"hostname"`
	LastSeen    time.Time `json:"lastSeen"`
	TotalTokens int64     `json:"totalTokens"`
}

type AccountSummary struct {
	Devices     []DeviceSummary `json:"devices"`
	TotalTokens int64           `json:"totalTokens"`
	TotalCost   float64         `json:"totalCost"`
}

type Device struct {
	Hostname string    `json:"hostname"`
	LastSeen time.Time `json:"last_seen"`
}

// AccountSummary rolls the latest snapshot of every device into account totals.
// Devices are ordered by total tokens descending, then hostname.
func (s *Store) AccountSummary(ctx context.Context, key string) (AccountSummary, error) {
	key, err := telemetry.ValidateAccountKey(key)
	if err != nil {
		return AccountSummary{}, err
	}
	rows, err := s.db.QueryContext(ctx, latestCTE("WHERE account_key = ?")+`
		SELECT hostname, timestamp, total_tokens, cost_opus, cost_actual
		FROM latest
		ORDER BY total_tokens DESC, hostname ASC
	`, key)
	if err != nil {
		return AccountSummary{}, storageErr("query account summary", err)
	}
	defer func() { _ = rows.Close() }()

	out := AccountSummary{Devices: []DeviceSummary{}}
	for rows.Next() {
		var (
			d     DeviceSummary
			ts    string
			costs telemetry.Costs
		)
		if err := rows.Scan(&d.Hostname, &ts, &d.TotalTokens, &costs.Opus, &costs.Actual); err != nil {
			return AccountSummary{}, storageErr("scan account summary", err)
		}
		if d.LastSeen, err = parseTime(ts); err != nil {
			return AccountSummary{}, storageErr("scan account summary", err)
		}
		out.Devices = append(out.Devices, d)
		out.TotalTokens += d.TotalTokens
		out.TotalCost += costs.Effective()
	}
	if err := rows.Err(); err != nil {
		return AccountSummary{}, storageErr("query account summary", err)
	}
	return out, nil
}

// Devices lists the account's hostnames with their latest report time, most recent first.
func (s *Store) Devices(ctx context.Context, key string) ([]Device, error) {
	key, err := telemetry.ValidateAccountKey(key)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT hostname, MAX(timestamp) AS last_seen
		FROM device_snapshots
		WHERE account_key = ?
		GROUP BY hostname
		ORDER BY last_seen DESC, hostname ASC
	`, key)
	if err != nil {
		return nil, storageErr("query devices", err)
	}
	defer func() { _ = rows.Close() }()

	devices := []Device{}
	for rows.Next() {
		var (
			d  Device
			ts string
		)
		if err := rows.Scan(&d.Hostname, &ts); err != nil {
			return nil, storageErr("scan devices", err)
		}
		if d.LastSeen, err = parseTime(ts); err != nil {
			return nil, storageErr("scan devices", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query devices", err)
	}
	return devices, nil
}

// AccountExists reports whether an account row exists for key. Malformed keys
// never exist.
func (s *Store) AccountExists(ctx context.Context, key string) (bool, error) {
	key, err := telemetry.ValidateAccountKey(key)
	if err != nil {
		return false, nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM accounts WHERE key = ?", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr("query account", err)
	}
	return true, nil
}

type SystemStats struct {
	TotalAccounts int64     `json:"totalUsers"`
	TotalDevices  int64     `json:"totalDevices"`
	ActiveDevices int64     `json:"activeDevices"`
	TotalTokens   int64     `json:"totalTokens"`
	TotalCost     float64   `json:"totalCost"`
	Timestamp     time.Time `json:"timestamp"`
}

// SystemStats aggregates the latest snapshot of every device of every account.
// A device is active when its latest report is newer than now - activeWindow.
func (s *Store) SystemStats(ctx context.Context, activeWindow time.Duration) (SystemStats, error) {
	now := s.now()
	out := SystemStats{Timestamp: now}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&out.TotalAccounts); err != nil {
		return SystemStats{}, storageErr("count accounts", err)
	}

	cutoff := formatTime(now.Add(-activeWindow))
	rows, err := s.db.QueryContext(ctx, latestCTE("")+`
		SELECT timestamp > ?, total_tokens, cost_opus, cost_actual
		FROM latest
		ORDER BY account_key, hostname
	`, cutoff)
	if err != nil {
		return SystemStats{}, storageErr("query system stats", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			active bool
			tokens int64
			costs  telemetry.Costs
		)
		if err := rows.Scan(&active, &tokens, &costs.Opus, &costs.Actual); err != nil {
			return SystemStats{}, storageErr("scan system stats", err)
		}
		out.TotalDevices++
		if active {
			out.ActiveDevices++
		}
		out.TotalTokens += tokens
		out.TotalCost += costs.Effective()
	}
	if err := rows.Err(); err != nil {
		return SystemStats{}, storageErr("query system stats", err)
	}
	return out, nil
}

type AccountListFilter struct {
	// Search matches a substring of the account key.
	Search string
	Limit  int
	Offset int
}

type AccountListItem struct {
	AccountKey  string    `json:"userKey"`
	CreatedAt   time.Time `json:"createdAt"`
	LastSeen    time.Time `json:"lastSeen"`
	DeviceCount int64     `json:"deviceCount"`
	TotalTokens int64     `json:"totalTokens"`
}

// Normalized applies the default and maximum page size.
func (f AccountListFilter) Normalized() AccountListFilter {
	out := f
	out.Search = strings.ToLower(strings.TrimSpace(out.Search))
	if out.Limit <= 0 {
		out.Limit = defaultAccountListLimit
	}
	if out.Limit > maxAccountListLimit {
		out.Limit = maxAccountListLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}

// ListAccounts pages through accounts ordered by last-seen, newest first.
func (s *Store) ListAccounts(ctx context.Context, filter AccountListFilter) ([]AccountListItem, error) {
	filter = filter.Normalized()

	where := ""
	args := []any{}
	if filter.Search != "" {
		where = "WHERE instr(a.key, ?) > 0"
		args = append(args, filter.Search)
	}
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, latestCTE("")+`
		SELECT
			a.key, a.created_at, a.last_seen,
			COUNT(l.hostname),
			COALESCE(SUM(l.total_tokens), 0)
		FROM accounts a
		LEFT JOIN latest l ON l.account_key = a.key
		`+where+`
		GROUP BY a.key
		ORDER BY a.last_seen DESC, a.key ASC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, storageErr("query accounts", err)
	}
	defer func() { _ = rows.Close() }()

	items := []AccountListItem{}
	for rows.Next() {
		var (
			it                AccountListItem
			created, lastSeen string
		)
		if err := rows.Scan(&it.AccountKey, &created, &lastSeen, &it.DeviceCount, &it.TotalTokens); err != nil {
			return nil, storageErr("scan accounts", err)
		}
		if it.CreatedAt, err = parseTime(created); err != nil {
			return nil, storageErr("scan accounts", err)
		}
		if it.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, storageErr("scan accounts", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query accounts", err)
	}
	return items, nil
}

type HourlyRecord struct {
	Hostname    string                `json:"hostname"`
	Timestamp   time.Time             `json:"timestamp"`
	HourlyUsage telemetry.HourlyUsage `json:"hourlyUsage"`
}

type AccountDetail struct {
	AccountKey string         `json:"userKey"`
	CreatedAt  time.Time      `json:"createdAt"`
	LastSeen   time.Time      `json:"lastSeen"`
	Stats      AccountSummary `json:"stats"`
	HourlyData []HourlyRecord `json:"hourlyData"`
}

// AccountDetail returns account metadata, its summary and the hourly usage of
// its most recent raw snapshots.
func (s *Store) AccountDetail(ctx context.Context, key string, hourlyLimit int) (AccountDetail, error) {
	key, err := telemetry.ValidateAccountKey(key)
	if err != nil {
		return AccountDetail{}, err
	}
	if hourlyLimit <= 0 {
		hourlyLimit = defaultHourlyRowLimit
	}

	out := AccountDetail{AccountKey: key}
	var created, lastSeen string
	err = s.db.QueryRowContext(ctx, "SELECT created_at, last_seen FROM accounts WHERE key = ?", key).Scan(&created, &lastSeen)
	if err == sql.ErrNoRows {
		return AccountDetail{}, &NotFoundError{AccountKey: key}
	}
	if err != nil {
		return AccountDetail{}, storageErr("query account", err)
	}
	if out.CreatedAt, err = parseTime(created); err != nil {
		return AccountDetail{}, storageErr("query account", err)
	}
	if out.LastSeen, err = parseTime(lastSeen); err != nil {
		return AccountDetail{}, storageErr("query account", err)
	}

	if out.Stats, err = s.AccountSummary(ctx, key); err != nil {
		return AccountDetail{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT hostname, timestamp, hourly_usage
		FROM device_snapshots
		WHERE account_key = ?
		ORDER BY timestamp DESC, hostname ASC
		LIMIT ?
	`, key, hourlyLimit)
	if err != nil {
		return AccountDetail{}, storageErr("query hourly usage", err)
	}
	defer func() { _ = rows.Close() }()

	out.HourlyData = []HourlyRecord{}
	for rows.Next() {
		var (
			rec        HourlyRecord
			ts, hourly string
		)
		if err := rows.Scan(&rec.Hostname, &ts, &hourly); err != nil {
			return AccountDetail{}, storageErr("scan hourly usage", err)
		}
		if rec.Timestamp, err = parseTime(ts); err != nil {
			return AccountDetail{}, storageErr("scan hourly usage", err)
		}
		if err := json.Unmarshal([]byte(hourly), &rec.HourlyUsage); err != nil {
			return AccountDetail{}, storageErr("decode hourly usage", err)
		}
		out.HourlyData = append(out.HourlyData, rec)
	}
	if err := rows.Err(); err != nil {
		return AccountDetail{}, storageErr("query hourly usage", err)
	}
	return out, nil
}
