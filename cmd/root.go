// Package cmd defines the CLI commands for the floorsync executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "floorsync",
		Short: "Keeps a local listings database in sync with a rental listing site",
		Long: `floorsync scrapes a rental listing site on a schedule, extracts unit
records from the markup, and reconciles them against the local database.
Listings that disappear from the source are deactivated, never deleted,
so they revive with their history intact when they reappear.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
