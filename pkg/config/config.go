// Package config loads the tokensyncd server configuration. Values come from
// defaults, then the TOML file, then .env files and the process environment.
// Command line flags are applied on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	// retention.timezone must resolve in minimal containers
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/lkarlslund/tokensync/pkg/retention"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

const (
	defaultConfigFileName = "tokensyncd.toml"
	appDirName            = "tokensync"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TOKENSYNC_"
	// LegacyAdminKeyEnv is honoured when TOKENSYNC_ADMIN_KEY is unset.
	LegacyAdminKeyEnv = "ADMIN_KEY"

	TLSModeLetsEncrypt = "letsencrypt"
	TLSModePEM         = "pem"
)

type RetentionConfig struct {
	Days      int    `toml:"days"`
	Schedule  string `toml:"schedule"`
	Timezone  string `toml:"timezone"`
	BatchSize int    `toml:"batch_size,omitempty"`
}

type TLSConfig struct {
	Enabled    bool   `toml:"enabled"`
	Mode       string `toml:"mode"`
	ListenAddr string `toml:"listen_addr"`
	Domain     string `toml:"domain"`
	Email      string `toml:"email"`
	CacheDir   string `toml:"cache_dir"`
	CertFile   string `toml:"cert_file,omitempty"`
	KeyFile    string `toml:"key_file,omitempty"`
}

type ServerConfig struct {
	ListenAddr           string `toml:"listen_addr"`
	DatabasePath         string `toml:"database_path"`
	AdminKey             string `toml:"admin_key,omitempty"`
	AllowLocalhostNoAuth bool   `toml:"allow_localhost_no_auth"`
	LogLevel             string `toml:"log_level"`
	LogFormat            string `toml:"log_format"`
	SessionTTLHours      int    `toml:"session_ttl_hours"`
	ActiveWindowHours    int    `toml:"active_window_hours"`
	MaxBodyBytes         int64  `toml:"max_body_bytes,omitempty"`

	Retention RetentionConfig `toml:"retention"`
	TLS       TLSConfig       `toml:"tls"`
}

func DefaultServerConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", appDirName, defaultConfigFileName)
}

func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "usage.db"
	}
	return filepath.Join(home, ".local", "share", appDirName, "usage.db")
}

func DefaultTLSCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tls-autocert"
	}
	return filepath.Join(home, ".cache", appDirName, "tls-autocert")
}

func NewDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:        "0.0.0.0:8000",
		DatabasePath:      DefaultDatabasePath(),
		LogLevel:          "info",
		LogFormat:         "text",
		SessionTTLHours:   24,
		ActiveWindowHours: 24,
		MaxBodyBytes:      1 << 20,
		Retention: RetentionConfig{
			Days:      90,
			Schedule:  "0 3 * * *",
			Timezone:  "UTC",
			BatchSize: 1000,
		},
		TLS: TLSConfig{
			Mode:       TLSModeLetsEncrypt,
			ListenAddr: ":443",
			CacheDir:   DefaultTLSCacheDir(),
		},
	}
}

// LoadServerConfig reads path, applies the environment and validates the result.
// A missing file is an error.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := NewDefaultServerConfig()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadOrDefault is LoadServerConfig that falls back to defaults when path does
// not exist.
func LoadOrDefault(path string) (*ServerConfig, error) {
	cfg := NewDefaultServerConfig()
	if err := load(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *ServerConfig) (*ServerConfig, error) {
	LoadDotEnv()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string, cfg *ServerConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads the first .env file found in the working directory or the
// user config directory. Variables already set in the environment win.
func LoadDotEnv() {
	for _, path := range dotEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func dotEnvPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appDirName, ".env"))
	}
	return paths
}

// ApplyEnv overrides fields from TOKENSYNC_* variables looked up through lookup.
func (c *ServerConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: invalid integer %q", EnvPrefix, name, v)
		}
		*dst = n
		return nil
	}
	flag := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: invalid boolean %q", EnvPrefix, name, v)
		}
		*dst = b
		return nil
	}

	if v, ok := lookup(LegacyAdminKeyEnv); ok {
		c.AdminKey = v
	}
	str("ADMIN_KEY", &c.AdminKey)
	str("LISTEN_ADDR", &c.ListenAddr)
	str("DATABASE_PATH", &c.DatabasePath)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("RETENTION_SCHEDULE", &c.Retention.Schedule)
	str("RETENTION_TIMEZONE", &c.Retention.Timezone)
	str("TLS_DOMAIN", &c.TLS.Domain)
	str("TLS_EMAIL", &c.TLS.Email)

	for name, dst := range map[string]*int{
		"RETENTION_DAYS":      &c.Retention.Days,
		"SESSION_TTL_HOURS":   &c.SessionTTLHours,
		"ACTIVE_WINDOW_HOURS": &c.ActiveWindowHours,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*bool{
		"ALLOW_LOCALHOST_NO_AUTH": &c.AllowLocalhostNoAuth,
		"TLS_ENABLED":             &c.TLS.Enabled,
	} {
		if err := flag(name, dst); err != nil {
			return err
		}
	}
	return nil
}

func (c *ServerConfig) Normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:8000"
	}
	c.DatabasePath = strings.TrimSpace(c.DatabasePath)
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath()
	}
	c.AdminKey = strings.TrimSpace(c.AdminKey)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.SessionTTLHours <= 0 {
		c.SessionTTLHours = 24
	}
	if c.ActiveWindowHours <= 0 {
		c.ActiveWindowHours = 24
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}

	c.Retention.Schedule = strings.TrimSpace(c.Retention.Schedule)
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "0 3 * * *"
	}
	c.Retention.Timezone = strings.TrimSpace(c.Retention.Timezone)
	if c.Retention.Timezone == "" {
		c.Retention.Timezone = "UTC"
	}
	if c.Retention.BatchSize <= 0 {
		c.Retention.BatchSize = 1000
	}

	c.TLS.Mode = strings.ToLower(strings.TrimSpace(c.TLS.Mode))
	if c.TLS.Mode == "" {
		c.TLS.Mode = TLSModeLetsEncrypt
	}
	c.TLS.ListenAddr = strings.TrimSpace(c.TLS.ListenAddr)
	if c.TLS.ListenAddr == "" {
		c.TLS.ListenAddr = ":443"
	}
	c.TLS.Domain = strings.TrimSpace(c.TLS.Domain)
	c.TLS.Email = strings.TrimSpace(c.TLS.Email)
	c.TLS.CacheDir = strings.TrimSpace(c.TLS.CacheDir)
	if c.TLS.CacheDir == "" {
		c.TLS.CacheDir = DefaultTLSCacheDir()
	}
	c.TLS.CertFile = strings.TrimSpace(c.TLS.CertFile)
	c.TLS.KeyFile = strings.TrimSpace(c.TLS.KeyFile)
}

func (c *ServerConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen_addr %q: %w", c.ListenAddr, err)
	}
	switch c.LogFormat {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("invalid log_format %q (text, json or logfmt)", c.LogFormat)
	}
	if c.Retention.Days < 0 || c.Retention.Days > retention.MaxDays {
		return fmt.Errorf("retention.days must be 0-%d, got %d", retention.MaxDays, c.Retention.Days)
	}
	if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
		return fmt.Errorf("invalid retention.schedule %q: %w", c.Retention.Schedule, err)
	}
	if _, err := time.LoadLocation(c.Retention.Timezone); err != nil {
		return fmt.Errorf("invalid retention.timezone %q: %w", c.Retention.Timezone, err)
	}
	if !c.TLS.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.TLS.ListenAddr); err != nil {
		return fmt.Errorf("invalid tls.listen_addr %q: %w", c.TLS.ListenAddr, err)
	}
	switch c.TLS.Mode {
	case TLSModeLetsEncrypt:
		if c.TLS.Domain == "" {
			return errors.New("tls.domain is required for letsencrypt mode")
		}
	case TLSModePEM:
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return errors.New("tls.cert_file and tls.key_file are required for pem mode")
		}
	default:
		return fmt.Errorf("invalid tls.mode %q (letsencrypt or pem)", c.TLS.Mode)
	}
	return nil
}

// RetentionLocation resolves Retention.Timezone. Validate has already checked it.
func (c *ServerConfig) RetentionLocation() *time.Location {
	loc, err := time.LoadLocation(c.Retention.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *ServerConfig) ActiveWindow() time.Duration {
	return time.Duration(c.ActiveWindowHours) * time.Hour
}

// Redacted returns a copy safe to print.
func (c ServerConfig) Redacted() ServerConfig {
	if c.AdminKey != "" {
		c.AdminKey = "********"
	}
	return c
}

// Save writes v as TOML, creating the directory and replacing path atomically.
func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return writeAtomic(path, v)
}

func writeAtomic(path string, v any) error {
	b, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentSymbol("  ")
	enc.SetIndentTables(true)
	enc.SetTablesInline(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}
