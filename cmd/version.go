package cmd

import (
	"fmt"

	"github.com/lkarlslund/tokensync/pkg/usagedb"
	"github.com/lkarlslund/tokensync/pkg/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Current().WithSchema(usagedb.LatestSchemaVersion()))
			return nil
		},
	})
}
