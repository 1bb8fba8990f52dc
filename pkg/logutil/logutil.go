// Package logutil configures the process wide logger. Everything logs through
// log/slog; the handler behind it is a charmbracelet logger.
package logutil

import (
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/charmbracelet/log"
)

var (
	mu      sync.Mutex
	current = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
)

// Configure installs a logger writing to stderr at the given level and format.
func Configure(levelRaw, formatRaw string) error {
	return ConfigureOutput(os.Stderr, levelRaw, formatRaw)
}

// ConfigureOutput is Configure with an explicit destination.
func ConfigureOutput(w io.Writer, levelRaw, formatRaw string) error {
	level, err := ParseLevel(levelRaw)
	if err != nil {
		return err
	}
	formatter, err := parseFormat(formatRaw)
	if err != nil {
		return err
	}
	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})

	mu.Lock()
	current = logger
	mu.Unlock()

	log.SetDefault(logger)
	slog.SetDefault(slog.New(logger))
	return nil
}

// ParseLevel accepts the usual level names plus "trace", which maps to debug.
func ParseLevel(levelRaw string) (log.Level, error) {
	levelRaw = strings.ToLower(strings.TrimSpace(levelRaw))
	switch levelRaw {
	case "":
		return log.InfoLevel, nil
	case "trace", "trac":
		return log.DebugLevel, nil
	case "warning":
		return log.WarnLevel, nil
	}
	level, err := log.ParseLevel(levelRaw)
	if err != nil {
		return 0, fmt.Errorf("invalid loglevel %q", levelRaw)
	}
	return level, nil
}

func parseFormat(formatRaw string) (log.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(formatRaw)) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return 0, fmt.Errorf("invalid log format %q", formatRaw)
	}
}

// StandardLog adapts the current logger for APIs that want a *log.Logger, such
// as http.Server.ErrorLog and the chi request logger.
func StandardLog(level log.Level) *stdlog.Logger {
	mu.Lock()
	logger := current
	mu.Unlock()
	return logger.StandardLog(log.StandardLogOptions{ForceLevel: level})
}
