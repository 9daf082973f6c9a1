package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "perbench",
	Short: "BLE packet-error-rate test bench client",
	Long: `Client for a BLE Direct Test Mode (DTM) packet-error-rate test bench:

- Scan for DTM peripherals and keep a live list of them
- Configure a peripheral's TX or RX test parameters
- Monitor a receiver's telemetry adverts and record PER/RSSI as CSV
- Read back the parameter characteristic

Peripherals are matched by name prefix (DTM by default, see --all).`,
	Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(readCmd)

	addGlobalFlags(rootCmd)

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}

func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Verbose output (same as --log-level=debug)")
	cmd.PersistentFlags().String("config", "", "YAML configuration file")
	cmd.PersistentFlags().String("backend", "", "Radio backend (goble, tinygo); overrides the configuration")
}
