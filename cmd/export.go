package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var exportOutput string

func init() {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write all snapshots as zstd compressed JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var w io.Writer = cmd.OutOrStdout()
			if exportOutput != "" && exportOutput != "-" {
				f, err := os.Create(exportOutput)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				defer f.Close()
				w = f
			}
			n, err := store.Export(context.Background(), w)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d snapshot(s)\n", n)
			return nil
		},
	}
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(exportCmd)

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Replay an export into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				r = f
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			n, err := store.Import(context.Background(), r)
			if err != nil {
				return fmt.Errorf("import stopped after %d snapshot(s): %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d snapshot(s)\n", n)
			return nil
		},
	}
	rootCmd.AddCommand(importCmd)
}
