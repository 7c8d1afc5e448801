// Package cli defines the rupia command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rupia",
	Short: "Discord community bot with a Rupia economy",
	Long: `Rupia is a Discord community bot. Members earn Rupias by chatting and
sitting in voice channels, unlock achievements, and spend their balance in a
shop of timed perks. The daemon also serves a read-only HTTP API with
Prometheus metrics.`,
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
