package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/fatih/color"
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

var rootCmd = &cobra.Command{
	Use:   "bandctl",
	Short: "Fitness band command-line client",
	Long: `Talks to Mi Band style fitness bands over Bluetooth Low Energy:

- Discover bands and pair with a 16-byte authentication key
- Read battery, steps, clock and device information
- Stream live heart rate or raw sensor data
- Download minute-by-minute activity history
- Set alarms, push alerts and music info
- Upload watch faces, resources and firmware images`,
	Version: formatVersion(version) + fmt.Sprintf(" (%s, %s)", commit, date),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("ERROR:"), FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(batteryCmd)
	rootCmd.AddCommand(stepsCmd)
	rootCmd.AddCommand(timeCmd)
	rootCmd.AddCommand(heartRateCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(alarmCmd)
	rootCmd.AddCommand(alertCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(firmwareCmd)
	rootCmd.AddCommand(listenCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalFlags.configPath, "config", "", "YAML configuration file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVarP(&globalFlags.address, "address", "a", "", "Band address (overrides config)")
	flags.StringVar(&globalFlags.addressFile, "address-file", "", "File holding the band address")
	flags.StringVar(&globalFlags.key, "key", "", "Authentication key as 32 hex characters")
	flags.StringVar(&globalFlags.keyFile, "key-file", "", "File holding the authentication key")
	flags.BoolVar(&globalFlags.pair, "pair", false, "Send the key to the band before authenticating (first-time pairing)")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
