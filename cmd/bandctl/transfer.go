package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/stream"
	"github.com/srg/bandlink/pkg/band"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an asset through the chunked-transfer channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var firmwareCmd = &cobra.Command{
	Use:   "firmware <file>",
	Short: "Flash a firmware image, or a watch face/resource with --watchface",
	Long: `Uploads an image through the firmware update service.

Firmware images reboot the band when the checksum is accepted; resources
such as watch faces do not. A failure after the upload started leaves the
band without a valid image until the upload is repeated.

Examples:
  bandctl firmware Mili_band.fw
  bandctl firmware face.bin --watchface`,
	Args: cobra.ExactArgs(1),
	RunE: runFirmware,
}

var trackCmd = &cobra.Command{
	Use:   "track <title>",
	Short: "Show the playing track on the band's music screen",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrack,
}

var (
	firmwareWatchface bool
	trackPaused       bool
	trackPosition     uint32
	trackVolume       uint16
)

func init() {
	firmwareCmd.Flags().BoolVar(&firmwareWatchface, "watchface", false, "Image is a resource; skip the reboot")
	trackCmd.Flags().BoolVar(&trackPaused, "paused", false, "Show the player as paused")
	trackCmd.Flags().Uint32Var(&trackPosition, "position", 0, "Playback position in seconds")
	trackCmd.Flags().Uint16Var(&trackVolume, "volume", 50, "Volume percentage")
}

func readImage(path string, limit int) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if limit > 0 && st.Size() > int64(limit) {
		return nil, fmt.Errorf("%s is %d bytes, larger than the %d byte limit", path, st.Size(), limit)
	}
	return os.ReadFile(path)
}

func runUpload(cmd *cobra.Command, args []string) error {
	data, err := readImage(args[0], 0)
	if err != nil {
		return err
	}
	return withSession(cmd, true, func(ctx context.Context, s *band.Session) error {
		return runTransfer(cmd, s, fmt.Sprintf("Uploading %d bytes", len(data)), func() error {
			return s.SendAsset(ctx, data)
		})
	})
}

func runFirmware(cmd *cobra.Command, args []string) error {
	image, err := readImage(args[0], codec.MaxFirmwareSize)
	if err != nil {
		return err
	}
	isFirmware := !firmwareWatchface
	return withSession(cmd, true, func(ctx context.Context, s *band.Session) error {
		return runTransfer(cmd, s, fmt.Sprintf("Flashing %d bytes", len(image)), func() error {
			return s.UpdateFirmware(ctx, image, isFirmware)
		})
	})
}

func runTransfer(cmd *cobra.Command, s *band.Session, prefix string, upload func() error) error {
	progress := NewProgressPrinter(cmd.ErrOrStderr(), prefix, "starting", stream.PhaseDone, stream.PhaseFailed)
	progress.Start()
	defer progress.Stop()

	s.OnProgress(progress.Transfer())
	defer s.OnProgress(nil)

	if err := upload(); err != nil {
		return err
	}
	progress.Stop()
	fmt.Fprintln(cmd.OutOrStdout(), "Transfer complete")
	return nil
}

func runTrack(cmd *cobra.Command, args []string) error {
	info := codec.MusicInfo{
		State:    codec.MusicPlaying,
		Track:    args[0],
		Position: trackPosition,
		Volume:   trackVolume,
	}
	if trackPaused {
		info.State = codec.MusicPaused
	}
	return withSession(cmd, true, func(ctx context.Context, s *band.Session) error {
		if err := s.SetTrack(ctx, info); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Now showing %q\n", info.Track)
		return nil
	})
}
