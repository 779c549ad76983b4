package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/bandlink/pkg/band"
)

const displayTimeLayout = "2006-01-02 15:04:05 MST"

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show serial number and hardware/software revisions",
	Long: fmt.Sprintf(`Reads the device information service. Does not need the key.

Example:
  bandctl info --address %s

%s`, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, false, func(_ context.Context, s *band.Session) error {
			info, err := s.DeviceInfo()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Serial:   %s\n", info.Serial)
			fmt.Fprintf(out, "Hardware: %s\n", info.HardwareRevision)
			fmt.Fprintf(out, "Software: %s\n", info.SoftwareRevision)
			return nil
		})
	},
}

var batteryCmd = &cobra.Command{
	Use:   "battery",
	Short: "Show battery level and charge history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, true, func(_ context.Context, s *band.Session) error {
			status, err := s.Battery()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			state := "discharging"
			if status.Charging {
				state = "charging"
			}
			fmt.Fprintf(out, "Level:       %d%% (%s)\n", status.Level, state)
			fmt.Fprintf(out, "Last off:    %s\n", status.LastOff.Format(displayTimeLayout))
			fmt.Fprintf(out, "Last charge: %s\n", status.LastCharge.Format(displayTimeLayout))
			if status.LastLevel > 0 {
				fmt.Fprintf(out, "Charged to:  %d%%\n", status.LastLevel)
			}
			return nil
		})
	},
}

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Show today's steps, distance and calories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, true, func(_ context.Context, s *band.Session) error {
			steps, err := s.Steps()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Steps: %d\nMeters: %d\nCalories: %d\n", steps.Steps, steps.Meters, steps.Calories)
			return nil
		})
	},
}

var timeSet bool

var timeCmd = &cobra.Command{
	Use:   "time",
	Short: "Show the band clock, or set it with --set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, true, func(_ context.Context, s *band.Session) error {
			if timeSet {
				if err := s.SetCurrentTime(time.Now()); err != nil {
					return err
				}
			}
			t, err := s.CurrentTime()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (drift %s)\n", t.Format(displayTimeLayout), time.Since(t).Round(time.Second))
			return nil
		})
	},
}

func init() {
	timeCmd.Flags().BoolVar(&timeSet, "set", false, "Set the band clock to the host time first")
}
