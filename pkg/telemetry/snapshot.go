// Package telemetry defines the usage snapshot reported by client installations
// and the validation that turns a decoded request body into one.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// HourlyBuckets is the number of hourly usage buckets carried by every snapshot.
const HourlyBuckets = 24

// HourlyUsage holds token usage per hour of the reporting period.
type HourlyUsage [HourlyBuckets]int64

// MarshalJSON encodes the buckets as a plain array, the same form used for storage.
func (h HourlyUsage) MarshalJSON() ([]byte, error) {
	return json.Marshal([HourlyBuckets]int64(h))
}

func (h *HourlyUsage) UnmarshalJSON(b []byte) error {
	var vals []int64
	if err := json.Unmarshal(b, &vals); err != nil {
		return err
	}
	if len(vals) != HourlyBuckets {
		return fmt.Errorf("hourly usage must have %d buckets, got %d", HourlyBuckets, len(vals))
	}
	copy(h[:], vals)
	return nil
}

// Sum returns the total over all buckets.
func (h HourlyUsage) Sum() int64 {
	var total int64
	for _, v := range h {
		total += v
	}
	return total
}

type Usage struct {
	TotalTokens         int64 `json:"totalTokens"`
	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
}

type Sessions struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

type Costs struct {
	Opus   float64 `json:"opus"`
	Sonnet float64 `json:"sonnet"`
	Haiku  float64 `json:"haiku"`
	Actual float64 `json:"actual"`
}

// Effective is the cost attributed to a snapshot in rollups: the actual cost
// when one was reported, otherwise the opus-tier estimate.
func (c Costs) Effective() float64 {
	if c.Actual != 0 {
		return c.Actual
	}
	return c.Opus
}

// Snapshot is one validated usage report for one device at one point in time.
type Snapshot struct {
	AccountKey    string      `json:"accountKey"`
	Hostname      string      `json:"hostname"`
	Timestamp     time.Time   `json:"timestamp"`
	Usage         Usage       `json:"usage"`
	Sessions      Sessions    `json:"sessions"`
	Costs         Costs       `json:"costs"`
	HourlyUsage   HourlyUsage `json:"hourlyUsage"`
	ClientVersion string      `json:"version,omitempty"`
}

// RawSnapshot is the request body of a sync call as clients send it. Required
// numeric fields are pointers so that a missing field can be told apart from zero.
type RawSnapshot struct {
	UserKey     string      `json:"userKey"`
	Hostname    string      `json:"hostname"`
	Timestamp   string      `json:"timestamp"`
	Usage       RawUsage    `json:"usage"`
	Sessions    RawSessions `json:"sessions"`
	Costs       RawCosts    `json:"costs"`
	HourlyUsage []int64     `json:"hourlyUsage"`
	Version     string      `json:"version"`
}

type RawUsage struct {
	TotalTokens         *int64 `json:"totalTokens"`
	InputTokens         *int64 `json:"inputTokens"`
	OutputTokens        *int64 `json:"outputTokens"`
	CacheCreationTokens *int64 `json:"cacheCreationTokens"`
	CacheReadTokens     *int64 `json:"cacheReadTokens"`
}

type RawSessions struct {
	Total           *int64   `json:"total"`
	Active          *int64   `json:"active"`
	AverageDuration *float64 `json:"averageDuration"`
}

type RawCosts struct {
	Opus   *float64 `json:"opus"`
	Sonnet *float64 `json:"sonnet"`
	Haiku  *float64 `json:"haiku"`
	Actual *float64 `json:"actual"`
}

// Raw converts a validated snapshot back to its wire form.
func (s Snapshot) Raw() RawSnapshot {
	i := func(v int64) *int64 { return &v }
	f := func(v float64) *float64 { return &v }
	hourly := make([]int64, HourlyBuckets)
	copy(hourly, s.HourlyUsage[:])
	return RawSnapshot{
		UserKey:   s.AccountKey,
		Hostname:  s.Hostname,
		Timestamp: s.Timestamp.UTC().Format(time.RFC3339Nano),
		Usage: RawUsage{
			TotalTokens:         i(s.Usage.TotalTokens),
			InputTokens:         i(s.Usage.InputTokens),
			OutputTokens:        i(s.Usage.OutputTokens),
			CacheCreationTokens: i(s.Usage.CacheCreationTokens),
			CacheReadTokens:     i(s.Usage.CacheReadTokens),
		},
		Sessions: RawSessions{
			Total:  i(s.Sessions.Total),
			Active: i(s.Sessions.Active),
		},
		Costs: RawCosts{
			Opus:   f(s.Costs.Opus),
			Sonnet: f(s.Costs.Sonnet),
			Haiku:  f(s.Costs.Haiku),
			Actual: f(s.Costs.Actual),
		},
		HourlyUsage: hourly,
		Version:     s.ClientVersion,
	}
}
