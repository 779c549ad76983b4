package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/pkg/band"
)

var alarmCmd = &cobra.Command{
	Use:   "alarm <HH:MM>",
	Short: "Program an alarm slot",
	Long: `Writes one alarm slot. Repeat accepts once, daily, weekdays, weekend
or a comma-separated day list.

Examples:
  bandctl alarm 06:45 --repeat weekdays
  bandctl alarm 09:00 --id 2 --repeat sat,sun --no-snooze
  bandctl alarm 00:00 --id 2 --disable`,
	Args: cobra.ExactArgs(1),
	RunE: runAlarm,
}

var (
	alarmID       uint8
	alarmRepeat   string
	alarmDisable  bool
	alarmNoSnooze bool
)

func init() {
	alarmCmd.Flags().Uint8Var(&alarmID, "id", 0, "Alarm slot")
	alarmCmd.Flags().StringVar(&alarmRepeat, "repeat", "once", "Repeat days")
	alarmCmd.Flags().BoolVar(&alarmDisable, "disable", false, "Write the slot disabled")
	alarmCmd.Flags().BoolVar(&alarmNoSnooze, "no-snooze", false, "Disable snooze")
}

func runAlarm(cmd *cobra.Command, args []string) error {
	hour, minute, err := parseClock(args[0])
	if err != nil {
		return err
	}
	repeat, err := parseWeekdays(alarmRepeat)
	if err != nil {
		return err
	}
	alarm := codec.Alarm{
		ID:             alarmID,
		Enabled:        !alarmDisable,
		SnoozeDisabled: alarmNoSnooze,
		Hour:           hour,
		Minute:         minute,
		Repeat:         repeat,
	}
	if err := alarm.Validate(); err != nil {
		return err
	}

	return withSession(cmd, true, func(_ context.Context, s *band.Session) error {
		if err := s.SetAlarm(alarm); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Alarm %d set to %02d:%02d (%s)\n", alarm.ID, alarm.Hour, alarm.Minute, alarm.Repeat)
		return nil
	})
}
