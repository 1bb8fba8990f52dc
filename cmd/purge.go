package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var purgeDays int

func init() {
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete snapshots older than the retention horizon once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			days := cfg.Retention.Days
			if cmd.Flags().Changed("days") {
				days = purgeDays
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			n, err := store.PurgeOlderThan(ctx, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d snapshot(s) older than %d day(s)\n", n, days)
			return nil
		},
	}
	purgeCmd.Flags().IntVar(&purgeDays, "days", 0, "Override retention.days in config")
	rootCmd.AddCommand(purgeCmd)
}
