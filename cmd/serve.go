package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lkarlslund/tokensync/pkg/retention"
	"github.com/lkarlslund/tokensync/pkg/server"
	"github.com/lkarlslund/tokensync/pkg/version"
	"github.com/spf13/cobra"
)

var (
	serveListenAddrOverride   string
	serveAllowLocalhostNoAuth bool
	serveRetentionDays        int
	serveNoRetention          bool
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = serveListenAddrOverride
			}
			if cmd.Flags().Changed("allow-localhost-no-auth") {
				cfg.AllowLocalhostNoAuth = serveAllowLocalhostNoAuth
			}
			if cmd.Flags().Changed("retention-days") {
				cfg.Retention.Days = serveRetentionDays
			}
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.AdminKey == "" {
				key, err := generateAdminKey()
				if err != nil {
					return err
				}
				cfg.AdminKey = key
				slog.Warn("no admin key configured, generated one for this run", "admin_key", key)
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var sweeper *retention.Sweeper
			if !serveNoRetention {
				sweeper, err = retention.New(store, retention.Settings{
					Days:     cfg.Retention.Days,
					Schedule: cfg.Retention.Schedule,
					Location: cfg.RetentionLocation(),
				})
				if err != nil {
					return err
				}
			}

			srv, err := server.NewServer(*cfg, store, sweeper)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			slog.Info("starting", "version", version.Current().Short(), "database", store.Path())
			return srv.Run(ctx)
		},
	}
	serveCmd.Flags().StringVar(&serveListenAddrOverride, "listen-addr", "", "Override listen address from config (e.g. 127.0.0.1:8000)")
	serveCmd.Flags().BoolVar(&serveAllowLocalhostNoAuth, "allow-localhost-no-auth", false, "Override allow_localhost_no_auth in config")
	serveCmd.Flags().IntVar(&serveRetentionDays, "retention-days", 0, "Override retention.days in config")
	serveCmd.Flags().BoolVar(&serveNoRetention, "no-retention", false, "Do not run the scheduled purge")
	rootCmd.AddCommand(serveCmd)
}

func generateAdminKey() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate admin key: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
