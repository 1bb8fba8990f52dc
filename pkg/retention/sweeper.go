// Package retention runs the scheduled purge of old usage snapshots.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultDays     = 90
	DefaultSchedule = "0 3 * * *"
	DefaultTimeout  = 30 * time.Minute
	// MaxDays is roughly a century of history.
	MaxDays = 36500
)

// Purger deletes snapshots older than the given number of days.
type Purger interface {
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

type Settings struct {
	// Days of history to keep. Zero purges everything older than the sweep itself.
	Days int
	// Schedule is a standard five field cron expression.
	Schedule string
	// Location evaluates Schedule; nil means UTC.
	Location *time.Location
	// Timeout bounds one sweep.
	Timeout time.Duration
}

func (s Settings) normalized() Settings {
	out := s
	out.Schedule = strings.TrimSpace(out.Schedule)
	if out.Schedule == "" {
		out.Schedule = DefaultSchedule
	}
	if out.Location == nil {
		out.Location = time.UTC
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	return out
}

// Result describes the last completed sweep.
type Result struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Deleted   int64         `json:"deleted"`
	Err       string        `json:"error,omitempty"`
}

type Sweeper struct {
	purger   Purger
	settings Settings
	schedule cron.Schedule

	mu   sync.Mutex
	last *Result
}

// New validates the settings and parses the schedule. It does not start anything.
func New(purger Purger, settings Settings) (*Sweeper, error) {
	if purger == nil {
		return nil, errors.New("retention: nil purger")
	}
	settings = settings.normalized()
	if settings.Days < 0 || settings.Days > MaxDays {
		return nil, fmt.Errorf("retention: days must be 0-%d, got %d", MaxDays, settings.Days)
	}
	sched, err := cron.ParseStandard(settings.Schedule)
	if err != nil {
		return nil, fmt.Errorf("retention: parse schedule %q: %w", settings.Schedule, err)
	}
	return &Sweeper{purger: purger, settings: settings, schedule: sched}, nil
}

func (s *Sweeper) Settings() Settings {
	return s.settings
}

// Next returns the first scheduled sweep after now.
func (s *Sweeper) Next(now time.Time) time.Time {
	return s.schedule.Next(now.In(s.settings.Location))
}

// Last returns the most recent sweep result, if any.
func (s *Sweeper) Last() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// RunOnce performs one purge immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	started := time.Now()
	n, err := s.purger.PurgeOlderThan(ctx, s.settings.Days)
	res := Result{StartedAt: started.UTC(), Duration: time.Since(started), Deleted: n}
	if err != nil {
		res.Err = err.Error()
	}
	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	return n, err
}

// Run schedules sweeps until ctx is done, then waits for a running sweep to
// finish. Sweep failures are logged and retried at the next scheduled time.
func (s *Sweeper) Run(ctx context.Context) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(s.settings.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		s.sweep(ctx)
	}))

	slog.Info("retention sweeper started",
		"days", s.settings.Days,
		"schedule", s.settings.Schedule,
		"next", s.Next(time.Now()).Format(time.RFC3339),
	)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("retention sweeper stopped")
	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.RunOnce(ctx)
	if err != nil {
		slog.Error("retention sweep failed", "days", s.settings.Days, "error", err)
		return
	}
	slog.Info("retention sweep finished", "days", s.settings.Days, "deleted", n)
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
