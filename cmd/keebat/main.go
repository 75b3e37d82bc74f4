package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
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

// rootCmd runs the battery monitor when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "keebat",
	Short: "Battery monitor for BLE split keyboards",
	Long: `Tracks the battery levels of wireless split keyboards over Bluetooth
Low Energy and keeps them visible in the system tray.

- Watches the standard Battery Service, one level per keyboard half
- Reconnects automatically when a keyboard sleeps or leaves range
- Desktop notification when a battery crosses the low threshold
- Optional auto-start registration for login sessions

Run without arguments to pick a keyboard interactively, or pin the
devices with --device-name / --device-id.`,
	Version: formatVersion(version),
	Args:    cobra.NoArgs,
	RunE:    runMonitor,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		if errors.Is(err, monitor.ErrNoDeviceSelected) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(autostartCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (panic, fatal, error, warn, info, debug)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Debug logging, same as --log-level debug")
}
