package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/lkarlslund/tokensync/pkg/config"
	"github.com/spf13/cobra"
)

var configInitForce bool

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the server configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config with a fresh admin key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !configInitForce {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("stat config: %w", err)
			}
			cfg := config.NewDefaultServerConfig()
			key, err := generateAdminKey()
			if err != nil {
				return err
			}
			cfg.AdminKey = key
			if err := config.Save(configPath, cfg); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := config.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}

	configCmd.AddCommand(initCmd, showCmd)
	rootCmd.AddCommand(configCmd)
}
