package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/stream"
	"github.com/srg/bandlink/pkg/band"
)

var heartRateCmd = &cobra.Command{
	Use:   "heartrate",
	Short: "Stream live heart rate",
	Long: `Streams heart rate samples until Ctrl+C or --duration elapses.

Examples:
  # One line per sample
  bandctl heartrate

  # Include raw PPG and accelerometer samples
  bandctl heartrate --raw --duration 30s`,
	Args: cobra.NoArgs,
	RunE: runHeartRate,
}

var (
	heartRateRaw      bool
	heartRateDuration time.Duration
)

func init() {
	heartRateCmd.Flags().BoolVar(&heartRateRaw, "raw", false, "Also stream raw PPG and accelerometer samples")
	heartRateCmd.Flags().DurationVarP(&heartRateDuration, "duration", "d", 0, "Stop after this long (0 streams until Ctrl+C)")
}

func runHeartRate(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, true, func(ctx context.Context, s *band.Session) error {
		if heartRateDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, heartRateDuration)
			defer cancel()
		}

		// callbacks run on the stream goroutine; the channel keeps output on this one
		lines := make(chan string, 64)
		emit := func(format string, args ...any) {
			select {
			case lines <- fmt.Sprintf(format, args...):
			default:
			}
		}

		var err error
		if heartRateRaw {
			err = s.StartRawStream(stream.RawHandlers{
				HeartRate: func(bpm uint8) { emit("hr %d", bpm) },
				RawHeart:  func(samples [7]uint16) { emit("ppg %v", samples) },
				RawAccel: func(samples [3]codec.AccelSample) {
					for _, a := range samples {
						emit("accel %d %d %d", a.X, a.Y, a.Z)
					}
				},
			})
		} else {
			err = s.StartHeartRateStream(func(bpm uint8) { emit("%d bpm", bpm) })
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Streaming. Press Ctrl+C to stop...")

		out := cmd.OutOrStdout()
		for {
			select {
			case line := <-lines:
				fmt.Fprintf(out, "%s %s\n", time.Now().Format("15:04:05"), line)
			case <-ctx.Done():
				return drainLines(out, lines, s.StopHeartRateStream())
			case <-s.Disconnected():
				err := s.StopHeartRateStream()
				if err == nil {
					err = protocol.ErrTransportDisconnected
				}
				return drainLines(out, lines, err)
			}
		}
	})
}

func drainLines(out io.Writer, lines <-chan string, err error) error {
	for {
		select {
		case line := <-lines:
			fmt.Fprintf(out, "%s %s\n", time.Now().Format("15:04:05"), line)
		default:
			return err
		}
	}
}
