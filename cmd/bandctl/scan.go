package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/bandlink/internal/transport/goble"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover nearby bands",
	Long: fmt.Sprintf(`Scans for Bluetooth LE advertisements and lists fitness bands.

Bands are recognised by their advertised FEE0 service or by name prefix.

Examples:
  # Scan for the configured duration (scan_timeout, 10s by default)
  bandctl scan

  # Include every advertising device
  bandctl scan --all --duration 5s

  # Print JSON
  bandctl scan --format json

%s`, deviceAddressNote),
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanPrefixes  []string
	scanAllowList []string
	scanAll       bool
)

// scanBands performs the radio scan; tests replace it
var scanBands = goble.Scan

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVar(&scanPrefixes, "name", nil, "Also match devices whose name starts with these prefixes")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Show every advertising device")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	duration := cfg.ScanTimeout
	if scanDuration > 0 {
		duration = scanDuration
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for bands", "scanning", "done")
	progress.Start()
	defer progress.Stop()

	found := 0
	bands, err := scanBands(ctx, goble.ScanOptions{
		Duration:     duration,
		NamePrefixes: scanPrefixes,
		AllowList:    scanAllowList,
		All:          scanAll,
	}, logger, func(goble.Advertisement) {
		found++
		progress.detail.Store(fmt.Sprintf("%d found", found))
	})
	progress.Callback()("done")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	out := cmd.OutOrStdout()
	if scanFormat == "json" {
		return printAdvertisementsJSON(out, bands)
	}
	return printAdvertisementsTable(out, bands)
}

func printAdvertisementsTable(out io.Writer, bands []goble.Advertisement) error {
	if len(bands) == 0 {
		fmt.Fprintln(out, "No bands discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, b := range bands {
		name := b.Name
		if name == "" {
			name = color.New(color.Faint).Sprint("(unnamed)")
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(b.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n",
			name, b.Address, b.RSSI, services, time.Since(b.LastSeen).Truncate(time.Second))
	}
	return w.Flush()
}

func printAdvertisementsJSON(out io.Writer, bands []goble.Advertisement) error {
	if bands == nil {
		bands = []goble.Advertisement{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(bands)
}
