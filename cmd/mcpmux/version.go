package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mcpmux version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "mcpmux version %s\n", rootCmd.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
