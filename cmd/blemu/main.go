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

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blemu",
		Short: "Bluetooth Low Energy peripheral emulator",
		Long: `Bluetooth Low Energy (BLE) peripheral emulator that publishes a standard GATT
profile from this machine:

- battery       Battery Service (180F)
- heart-rate    Heart Rate Service (180D)
- thermometer   Health Thermometer Service (1809)
- proximity     Exposure Notification rotating proximity identifier (FD6F)

Readings are changed live from the operator console and pushed to subscribed
centrals. Useful for developing and testing BLE central applications without
real sensors.`,
		Version:       formatVersion(version),
		SilenceErrors: true, // main() prints clean errors
	}
	root.SetVersionTemplate(fmt.Sprintf("blemu {{.Version}} (commit %s, built %s)\n", commit, date))

	root.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().String("config", "", "Path to a YAML configuration file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newProfilesCmd())
	root.AddCommand(newEncodeCmd())
	root.AddCommand(newDecodeCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
