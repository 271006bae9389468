package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hrygo/cinesense/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// The version needs no profile or logger.
	PersistentPreRun: func(*cobra.Command, []string) {},
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "cinesense", version.StringFull())
	},
}
