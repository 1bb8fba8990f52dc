package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	AccountKeyLength   = 64
	MaxHostnameLength  = 255
	MaxClientVersion   = 64
	accountKeyAlphabet = "0123456789abcdef"
)

// ValidationError reports a malformed or out-of-range input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// timestampLayouts are tried in order. Zone-less timestamps are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ValidateAccountKey checks the 64 hex character format and returns the key lowercased.
func ValidateAccountKey(key string) (string, error) {
	if len(key) != AccountKeyLength {
		return "", invalid("userKey", "must be %d hex characters, got %d", AccountKeyLength, len(key))
	}
	lower := strings.ToLower(key)
	for i := 0; i < len(lower); i++ {
		if !strings.ContainsRune(accountKeyAlphabet, rune(lower[i])) {
			return "", invalid("userKey", "must be hexadecimal")
		}
	}
	return lower, nil
}

// ValidateHostname checks the hostname length bounds.
func ValidateHostname(hostname string) error {
	n := utf8.RuneCountInString(hostname)
	if n < 1 || n > MaxHostnameLength {
		return invalid("hostname", "must be 1-%d characters, got %d", MaxHostnameLength, n)
	}
	return nil
}

// ParseTimestamp parses a client report timestamp.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, invalid("timestamp", "required")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, invalid("timestamp", "%q is not an RFC 3339 timestamp", raw)
}

// Validate checks a raw sync payload and converts it to a Snapshot.
func Validate(raw RawSnapshot) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if snap.AccountKey, err = ValidateAccountKey(raw.UserKey); err != nil {
		return Snapshot{}, err
	}
	if err := ValidateHostname(raw.Hostname); err != nil {
		return Snapshot{}, err
	}
	snap.Hostname = raw.Hostname
	if snap.Timestamp, err = ParseTimestamp(raw.Timestamp); err != nil {
		return Snapshot{}, err
	}

	counts := []struct {
		field string
		in    *int64
		out   *int64
	}{
		{"usage.totalTokens", raw.Usage.TotalTokens, &snap.Usage.TotalTokens},
		{"usage.inputTokens", raw.Usage.InputTokens, &snap.Usage.InputTokens},
		{"usage.outputTokens", raw.Usage.OutputTokens, &snap.Usage.OutputTokens},
		{"usage.cacheCreationTokens", raw.Usage.CacheCreationTokens, &snap.Usage.CacheCreationTokens},
		{"usage.cacheReadTokens", raw.Usage.CacheReadTokens, &snap.Usage.CacheReadTokens},
		{"sessions.total", raw.Sessions.Total, &snap.Sessions.Total},
		{"sessions.active", raw.Sessions.Active, &snap.Sessions.Active},
	}
	for _, c := range counts {
		if c.in == nil {
			return Snapshot{}, invalid(c.field, "required")
		}
		if *c.in < 0 {
			return Snapshot{}, invalid(c.field, "must be >= 0, got %d", *c.in)
		}
		*c.out = *c.in
	}
	if d := raw.Sessions.AverageDuration; d != nil {
		if err := checkAmount("sessions.averageDuration", *d); err != nil {
			return Snapshot{}, err
		}
	}

	costs := []struct {
		field    string
		in       *float64
		out      *float64
		optional bool
	}{
		{"costs.opus", raw.Costs.Opus, &snap.Costs.Opus, false},
		{"costs.sonnet", raw.Costs.Sonnet, &snap.Costs.Sonnet, false},
		{"costs.haiku", raw.Costs.Haiku, &snap.Costs.Haiku, false},
		{"costs.actual", raw.Costs.Actual, &snap.Costs.Actual, true},
	}
	for _, c := range costs {
		if c.in == nil {
			if c.optional {
				continue
			}
			return Snapshot{}, invalid(c.field, "required")
		}
		if err := checkAmount(c.field, *c.in); err != nil {
			return Snapshot{}, err
		}
		*c.out = *c.in
	}

	if len(raw.HourlyUsage) != HourlyBuckets {
		return Snapshot{}, invalid("hourlyUsage", "must have exactly %d elements, got %d", HourlyBuckets, len(raw.HourlyUsage))
	}
	copy(snap.HourlyUsage[:], raw.HourlyUsage)

	if len(raw.Version) > MaxClientVersion {
		return Snapshot{}, invalid("version", "must be at most %d characters", MaxClientVersion)
	}
	snap.ClientVersion = strings.TrimSpace(raw.Version)
	return snap, nil
}

func checkAmount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(field, "must be a finite number")
	}
	if v < 0 {
		return invalid(field, "must be >= 0, got %g", v)
	}
	return nil
}
