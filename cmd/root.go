// Package cmd holds the tokensyncd command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/lkarlslund/tokensync/pkg/config"
	"github.com/lkarlslund/tokensync/pkg/logutil"
	"github.com/lkarlslund/tokensync/pkg/usagedb"
	"github.com/spf13/cobra"
)

var (
	configPath    string
	logLevelFlag  string
	logFormatFlag string
	databaseFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "tokensyncd",
	Short: "Usage telemetry sync server",
	Long:  "tokensyncd collects per-device usage snapshots and serves per-account and system-wide rollups.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if os.Geteuid() == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: running as root")
		}
		return logutil.Configure(logLevelFlag, logFormatFlag)
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultServerConfigPath(), "Server config TOML path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "loglevel", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "text", "Log format (text, json, logfmt)")
	rootCmd.PersistentFlags().StringVar(&databaseFlag, "db", "", "Override database_path from config")
}

// loadConfig reads the config file when present and applies the persistent
// flags. Logging is reconfigured from the file unless the flags were given.
func loadConfig(cmd *cobra.Command) (*config.ServerConfig, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DatabasePath = databaseFlag
	}
	level, format := cfg.LogLevel, cfg.LogFormat
	if flags.Changed("loglevel") {
		level = logLevelFlag
	}
	if flags.Changed("log-format") {
		format = logFormatFlag
	}
	if err := logutil.Configure(level, format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.ServerConfig) (*usagedb.Store, error) {
	store, err := usagedb.Open(cfg.DatabasePath, usagedb.Options{PurgeBatchSize: cfg.Retention.BatchSize})
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	return store, nil
}
