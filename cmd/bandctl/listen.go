package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/pkg/band"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print media key and find-my-phone events from the band",
	Long: `Subscribes to device events and prints one line per event until Ctrl+C.

Example:
  bandctl listen --duration 5m`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

var listenDuration time.Duration

func init() {
	listenCmd.Flags().DurationVarP(&listenDuration, "duration", "d", 0, "Stop after this long (0 listens until Ctrl+C)")
}

func runListen(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, true, func(ctx context.Context, s *band.Session) error {
		if listenDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, listenDuration)
			defer cancel()
		}

		// Listen invokes the callbacks on this goroutine
		out := cmd.OutOrStdout()
		s.RegisterMusicCallback(func(c codec.MusicCommand) {
			fmt.Fprintf(out, "%s music %s\n", time.Now().Format("15:04:05"), c)
		})
		s.RegisterLostDeviceCallback(func(c codec.LostDeviceCommand) {
			fmt.Fprintf(out, "%s find-phone %s\n", time.Now().Format("15:04:05"), c)
		})

		fmt.Fprintln(cmd.ErrOrStderr(), "Listening. Press Ctrl+C to stop...")
		return s.Listen(ctx)
	})
}
