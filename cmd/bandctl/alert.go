package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/pkg/band"
)

var alertCmd = &cobra.Command{
	Use:   "alert <kind>",
	Short: "Show an alert on the band",
	Long: `Kinds: off, message, phone, vibrate (no text) and email, call,
missed-call, sms (with --title and --body).

Examples:
  bandctl alert vibrate
  bandctl alert sms --title Alice --body "running late"`,
	Args: cobra.ExactArgs(1),
	RunE: runAlert,
}

var (
	alertTitle string
	alertBody  string
)

func init() {
	alertCmd.Flags().StringVar(&alertTitle, "title", "", "Alert title")
	alertCmd.Flags().StringVar(&alertBody, "body", "", "Alert body")
}

func runAlert(cmd *cobra.Command, args []string) error {
	kind, err := parseAlertKind(args[0])
	if err != nil {
		return err
	}
	var payload []byte
	if !kind.Immediate() {
		payload = codec.AlertPayload(alertTitle, alertBody)
	}

	return withSession(cmd, true, func(_ context.Context, s *band.Session) error {
		if err := s.SendAlert(kind, payload); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s alert\n", kind)
		return nil
	})
}
