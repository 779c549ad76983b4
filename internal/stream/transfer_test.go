package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/stretchr/testify/suite"
)

type TransferTestSuite struct {
	streamSuite

	phases []string
}

func (s *TransferTestSuite) SetupTest() {
	s.streamSuite.SetupTest()
	s.phases = nil
}

func (s *TransferTestSuite) newTransfer() *Transfer {
	t := NewTransfer(s.band, s.router, TransferOptions{
		ChunkRetries:    2,
		ResponseTimeout: 100 * time.Millisecond,
		PollInterval:    5 * time.Millisecond,
	}, s.logger)
	t.OnProgress(func(phase string, sent, total int) {
		if n := len(s.phases); n == 0 || s.phases[n-1] != phase {
			s.phases = append(s.phases, phase)
		}
	})
	return t
}

func payload(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i * 7)
	}
	return out
}

func (s *TransferTestSuite) TestChunkFraming() {
	// GOAL: Verify chunk count, first/last flags, sequence numbers and reassembly
	//
	// TEST SCENARIO: 40-byte payload → 3 frames of 17+17+6 bytes → flags 0x40, 0x00, 0x80

	data := payload(40)
	s.Require().NoError(s.newTransfer().SendChunked(context.Background(), codec.ChunkTypeMusicInfo, data))

	frames := s.band.WritesTo(protocol.ChannelChunkedTransfer)
	s.Require().Len(frames, 3)
	s.Equal([]byte{0x00, 0x43, 0x00}, frames[0][:3])
	s.Equal([]byte{0x00, 0x03, 0x01}, frames[1][:3])
	s.Equal([]byte{0x00, 0x83, 0x02}, frames[2][:3])

	var joined []byte
	for _, f := range frames {
		frame, err := codec.DecodeChunkFrame(f)
		s.Require().NoError(err)
		joined = append(joined, frame.Payload...)
	}
	s.Equal(data, joined)

	for _, w := range s.band.Writes() {
		s.True(w.RequireAck, "chunk writes MUST wait for acknowledgement")
	}
	s.Equal([]string{PhaseData, PhaseDone}, s.phases)
}

func (s *TransferTestSuite) TestSingleChunkCarriesBothFlags() {
	s.Require().NoError(s.newTransfer().SendChunked(context.Background(), codec.ChunkTypeAsset, payload(5)))

	frames := s.band.WritesTo(protocol.ChannelChunkedTransfer)
	s.Require().Len(frames, 1)
	s.Equal(byte(0xc0), frames[0][1])
}

func (s *TransferTestSuite) TestEmptyPayload() {
	err := s.newTransfer().SendChunked(context.Background(), codec.ChunkTypeAsset, nil)
	s.Error(err)
	s.Empty(s.band.Writes())
}

func (s *TransferTestSuite) TestNonFinalChunkRetried() {
	s.band.FailWrites(protocol.ChannelChunkedTransfer, errors.New("busy"), errors.New("busy"))

	s.Require().NoError(s.newTransfer().SendChunked(context.Background(), codec.ChunkTypeAsset, payload(40)))
	s.Len(s.band.Writes(), 5, "two failed attempts plus three frames")
	s.Len(s.band.WritesTo(protocol.ChannelChunkedTransfer), 3)
}

func (s *TransferTestSuite) TestRetriesExhausted() {
	s.band.FailWrites(protocol.ChannelChunkedTransfer,
		errors.New("busy"), errors.New("busy"), errors.New("busy"))

	err := s.newTransfer().SendChunked(context.Background(), codec.ChunkTypeAsset, payload(40))
	s.Require().Error(err)
	s.ErrorIs(err, protocol.ErrTransferInterrupted)
	s.False(protocol.IsUnrecoverable(err))
	s.Len(s.band.Writes(), 3, "first attempt plus two retries")
	s.Equal(PhaseFailed, s.phases[len(s.phases)-1])
}

func (s *TransferTestSuite) TestRetriesDisabled() {
	s.band.FailWrites(protocol.ChannelChunkedTransfer, errors.New("busy"))

	t := NewTransfer(s.band, s.router, TransferOptions{ChunkRetries: -1, PollInterval: 5 * time.Millisecond}, s.logger)
	err := t.SendChunked(context.Background(), codec.ChunkTypeAsset, payload(40))
	s.ErrorIs(err, protocol.ErrTransferInterrupted)
	s.Len(s.band.Writes(), 1, "negative retries MUST fail on the first error")
}

func (s *TransferTestSuite) TestFinalChunkNotRetried() {
	s.band.FailWrites(protocol.ChannelChunkedTransfer, errors.New("busy"))

	err := s.newTransfer().SendChunked(context.Background(), codec.ChunkTypeAsset, payload(5))
	s.ErrorIs(err, protocol.ErrTransferInterrupted)
	s.Len(s.band.Writes(), 1)
}

func (s *TransferTestSuite) TestDisconnectNotRetried() {
	s.band.FailWrites(protocol.ChannelChunkedTransfer, &protocol.Error{Kind: protocol.TransportDisconnected})

	err := s.newTransfer().SendChunked(context.Background(), codec.ChunkTypeAsset, payload(40))
	s.ErrorIs(err, protocol.ErrTransferInterrupted)
	s.ErrorIs(err, protocol.ErrTransportDisconnected)
	s.Len(s.band.Writes(), 1)
}

func (s *TransferTestSuite) TestFirmwareUpdate() {
	// GOAL: Verify the complete firmware sequence and image integrity
	//
	// TEST SCENARIO: start → begin data → 20-byte writes → completion → checksum → reboot

	image := payload(105)
	s.Require().NoError(s.newTransfer().UpdateFirmware(context.Background(), image, true))

	s.Equal(image, s.band.FirmwareImage())
	s.Equal([]byte{
		codec.FirmwareCmdStart,
		codec.FirmwareCmdBeginData,
		codec.FirmwareCmdCompletion,
		codec.FirmwareCmdChecksum,
		codec.FirmwareCmdReboot,
	}, s.band.FirmwareCommands())

	data := s.band.WritesTo(protocol.ChannelFirmwareData)
	s.Len(data, 6)
	for _, d := range data[:5] {
		s.Len(d, codec.FirmwareChunkCapacity)
	}
	for _, w := range s.band.Writes() {
		if w.Channel == protocol.ChannelFirmwareData {
			s.False(w.RequireAck)
		}
	}

	s.Equal([]string{PhaseStart, PhaseData, PhaseComplete, PhaseChecksum, PhaseReboot, PhaseDone}, s.phases)
	s.False(s.band.NotificationsEnabled(protocol.ChannelFirmwareControl))
}

func (s *TransferTestSuite) TestAssetUploadSkipsReboot() {
	image := payload(64)
	s.Require().NoError(s.newTransfer().UpdateFirmware(context.Background(), image, false))

	s.Equal(image, s.band.FirmwareImage())
	s.NotContains(s.band.FirmwareCommands(), codec.FirmwareCmdReboot)
}

func (s *TransferTestSuite) TestChecksumRejectedIsUnrecoverable() {
	// GOAL: Verify a failure after the start frame is flagged unrecoverable and not retried
	//
	// TEST SCENARIO: Band rejects the checksum → error flagged unrecoverable → no reboot, one checksum attempt

	cmd := codec.FirmwareCmdChecksum
	s.band.FailFirmwareCommand = &cmd

	err := s.newTransfer().UpdateFirmware(context.Background(), payload(50), true)
	s.Require().Error(err)
	s.ErrorIs(err, protocol.ErrTransferInterrupted)
	s.True(protocol.IsUnrecoverable(err))

	var perr *protocol.Error
	s.Require().True(errors.As(err, &perr))
	s.Equal(PhaseChecksum, perr.Reason)

	commands := s.band.FirmwareCommands()
	s.NotContains(commands, codec.FirmwareCmdReboot)
	checksums := 0
	for _, c := range commands {
		if c == codec.FirmwareCmdChecksum {
			checksums++
		}
	}
	s.Equal(1, checksums)
}

func (s *TransferTestSuite) TestStartWriteFailureIsRecoverable() {
	s.band.FailWrites(protocol.ChannelFirmwareControl, errors.New("gatt error"))

	err := s.newTransfer().UpdateFirmware(context.Background(), payload(50), true)
	s.ErrorIs(err, protocol.ErrTransferInterrupted)
	s.False(protocol.IsUnrecoverable(err), "nothing reached the band yet")
	s.Empty(s.band.WritesTo(protocol.ChannelFirmwareData))
}

func (s *TransferTestSuite) TestMissingResponseTimesOut() {
	s.band.SetResponder(nil)

	err := s.newTransfer().UpdateFirmware(context.Background(), payload(50), true)
	s.ErrorIs(err, protocol.ErrTransferInterrupted)
	s.ErrorIs(err, protocol.ErrTimeout)
	s.True(protocol.IsUnrecoverable(err))
}

func (s *TransferTestSuite) TestFirmwareDataRetry() {
	s.band.FailWrites(protocol.ChannelFirmwareData, errors.New("busy"))

	image := payload(70)
	s.Require().NoError(s.newTransfer().UpdateFirmware(context.Background(), image, false))
	s.Equal(image, s.band.FirmwareImage())
}

func (s *TransferTestSuite) TestOversizedImageRejected() {
	err := s.newTransfer().UpdateFirmware(context.Background(), make([]byte, 1<<24), true)
	s.ErrorIs(err, protocol.ErrTransferInterrupted)
	s.Empty(s.band.Writes())
}

func TestTransferTestSuite(t *testing.T) {
	suite.Run(t, new(TransferTestSuite))
}
