package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/router"
)

// Transfer phases reported to the progress callback
const (
	PhaseStart    = "start"
	PhaseData     = "data"
	PhaseComplete = "complete"
	PhaseChecksum = "checksum"
	PhaseReboot   = "reboot"
	PhaseDone     = "done"
	PhaseFailed   = "failed"
)

// ProgressFunc reports the current phase and how many of total chunks were written
type ProgressFunc func(phase string, sent, total int)

// TransferOptions tunes chunked and firmware transfers
type TransferOptions struct {
	// ChunkRetries bounds rewrites of a failed non-final chunk.
	// Zero selects the default; a negative value disables retries.
	ChunkRetries int `default:"3"`
	// ResponseTimeout bounds each wait for a firmware control response
	ResponseTimeout time.Duration `default:"5s"`
	PollInterval    time.Duration `default:"100ms"`
}

// Transfer uploads assets, music info and firmware images
type Transfer struct {
	w        waiter
	logger   *logrus.Logger
	opts     TransferOptions
	progress ProgressFunc
}

// NewTransfer creates a transfer engine
func NewTransfer(transport protocol.Transport, r *router.Router, opts TransferOptions, logger *logrus.Logger) *Transfer {
	defaults.SetDefaults(&opts)
	return &Transfer{
		w:      waiter{transport: transport, router: r},
		logger: logger,
		opts:   opts,
	}
}

// OnProgress installs a progress callback; nil removes it
func (t *Transfer) OnProgress(fn ProgressFunc) {
	t.progress = fn
}

func (t *Transfer) report(phase string, sent, total int) {
	if t.progress != nil {
		t.progress(phase, sent, total)
	}
}

// SendChunked frames payload into 17-byte chunks of type typ and writes them
// to the chunked-transfer channel. A failed transfer must be restarted from
// the beginning.
func (t *Transfer) SendChunked(ctx context.Context, typ uint8, payload []byte) error {
	frames := codec.SplitChunks(typ, payload, codec.AssetChunkCapacity)
	if len(frames) == 0 {
		return fmt.Errorf("nothing to send: empty payload")
	}

	if t.logger != nil {
		t.logger.WithFields(logrus.Fields{
			"type":   typ,
			"size":   len(payload),
			"chunks": len(frames),
		}).Info("Starting chunked transfer")
	}

	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return t.interrupted("chunked transfer", PhaseData, fmt.Sprintf("cancelled at chunk %d/%d", i, len(frames)), err, false)
		}
		data := codec.EncodeChunkFrame(frame)
		if err := t.writeChunk(protocol.ChannelChunkedTransfer, data, true, frame.Last); err != nil {
			return t.interrupted("chunked transfer", PhaseData, fmt.Sprintf("chunk %d/%d", i+1, len(frames)), err, false)
		}
		t.report(PhaseData, i+1, len(frames))
	}

	t.report(PhaseDone, len(frames), len(frames))
	if t.logger != nil {
		t.logger.WithField("chunks", len(frames)).Info("Chunked transfer complete")
	}
	return nil
}

// UpdateFirmware uploads image through the firmware service. Once the start
// frame is sent the sequence is never retried automatically: any failure is
// returned flagged unrecoverable and the caller must restart explicitly.
// The reboot frame is only sent for firmware images.
func (t *Transfer) UpdateFirmware(ctx context.Context, image []byte, isFirmware bool) error {
	crc := codec.FirmwareCRC(image)
	start, err := codec.EncodeFirmwareStart(len(image), crc)
	if err != nil {
		return &protocol.Error{Kind: protocol.TransferInterrupted, Op: "firmware update", Reason: PhaseStart, Err: err}
	}
	chunks := codec.SplitChunks(codec.ChunkTypeAsset, image, codec.FirmwareChunkCapacity)

	log := t.logger
	if log != nil {
		log.WithFields(logrus.Fields{
			"size":        len(image),
			"crc32":       fmt.Sprintf("%08x", crc),
			"chunks":      len(chunks),
			"is_firmware": isFirmware,
		}).Info("Starting firmware update")
	}

	t.w.router.Reset(router.CategoryFirmwareControl)
	if err := t.w.transport.EnableNotifications(protocol.ChannelFirmwareControl); err != nil {
		return t.interrupted("firmware update", PhaseStart, "enable notifications", protocol.NormalizeError("enable firmware notifications", err), false)
	}
	defer func() {
		if err := t.w.transport.DisableNotifications(protocol.ChannelFirmwareControl); err != nil && log != nil {
			log.WithField("error", err).Debug("Failed to disable firmware notifications")
		}
		t.w.router.Reset(router.CategoryFirmwareControl)
	}()

	t.report(PhaseStart, 0, len(chunks))
	if err := t.w.transport.Write(protocol.ChannelFirmwareControl, start, true); err != nil {
		return t.interrupted("firmware update", PhaseStart, "start frame", protocol.NormalizeError("firmware start", err), false)
	}

	// from here on the band may be left without a valid image
	if err := t.await(ctx, codec.FirmwareCmdStart); err != nil {
		return t.interrupted("firmware update", PhaseStart, "start response", err, true)
	}
	if err := t.w.transport.Write(protocol.ChannelFirmwareControl, codec.FirmwareBeginData(), true); err != nil {
		return t.interrupted("firmware update", PhaseData, "begin data", protocol.NormalizeError("firmware begin data", err), true)
	}

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return t.interrupted("firmware update", PhaseData, fmt.Sprintf("cancelled at chunk %d/%d", i, len(chunks)), err, true)
		}
		if err := t.writeChunk(protocol.ChannelFirmwareData, chunk.Payload, false, chunk.Last); err != nil {
			return t.interrupted("firmware update", PhaseData, fmt.Sprintf("chunk %d/%d", i+1, len(chunks)), err, true)
		}
		t.report(PhaseData, i+1, len(chunks))
	}

	steps := []struct {
		phase string
		frame []byte
		cmd   byte
	}{
		{PhaseComplete, codec.FirmwareCompletion(), codec.FirmwareCmdCompletion},
		{PhaseChecksum, codec.FirmwareChecksum(), codec.FirmwareCmdChecksum},
	}
	for _, step := range steps {
		t.report(step.phase, len(chunks), len(chunks))
		if err := t.w.transport.Write(protocol.ChannelFirmwareControl, step.frame, true); err != nil {
			return t.interrupted("firmware update", step.phase, "control write", protocol.NormalizeError("firmware "+step.phase, err), true)
		}
		if err := t.await(ctx, step.cmd); err != nil {
			return t.interrupted("firmware update", step.phase, "control response", err, true)
		}
	}

	if isFirmware {
		t.report(PhaseReboot, len(chunks), len(chunks))
		// the band drops the link while rebooting, so no response is awaited
		if err := t.w.transport.Write(protocol.ChannelFirmwareControl, codec.FirmwareReboot(), true); err != nil {
			return t.interrupted("firmware update", PhaseReboot, "reboot", protocol.NormalizeError("firmware reboot", err), true)
		}
	}

	t.report(PhaseDone, len(chunks), len(chunks))
	if log != nil {
		log.WithField("rebooted", isFirmware).Info("Firmware update complete")
	}
	return nil
}

// writeChunk writes one chunk; non-final chunks are rewritten up to ChunkRetries times
func (t *Transfer) writeChunk(ch protocol.Channel, data []byte, requireAck, final bool) error {
	attempts := 1
	if !final && t.opts.ChunkRetries > 0 {
		attempts += t.opts.ChunkRetries
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = t.w.transport.Write(ch, data, requireAck)
		if err == nil {
			return nil
		}
		err = protocol.NormalizeError("write "+ch.String(), err)
		if protocol.IsKind(err, protocol.TransportDisconnected) {
			return err
		}
		if t.logger != nil {
			t.logger.WithFields(logrus.Fields{
				"channel": ch.String(),
				"attempt": attempt,
				"of":      attempts,
				"error":   err,
			}).Warn("Chunk write failed")
		}
	}
	return err
}

// await waits for 0x10 <cmd> <status> on the firmware control channel
func (t *Transfer) await(ctx context.Context, cmd byte) error {
	deadline := time.Now().Add(t.opts.ResponseTimeout)
	for {
		for {
			ev, ok := t.w.router.Pop(router.CategoryFirmwareControl)
			if !ok {
				break
			}
			resp := ev.(router.FirmwareControl)
			if resp.Command != cmd {
				if t.logger != nil {
					t.logger.WithFields(logrus.Fields{
						"expected": cmd,
						"got":      resp.Command,
					}).Warn("Ignoring unexpected firmware response")
				}
				continue
			}
			if !resp.OK() {
				return fmt.Errorf("band rejected command 0x%02x with status 0x%02x", cmd, resp.Status)
			}
			return nil
		}

		if done, err := t.w.check(ctx, nil); done {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &protocol.Error{
				Kind: protocol.Timeout,
				Op:   "firmware update",
				Msg:  fmt.Sprintf("no response to command 0x%02x within %s", cmd, t.opts.ResponseTimeout),
			}
		}
		wait := t.opts.PollInterval
		if remaining < wait {
			wait = remaining
		}
		t.w.transport.WaitForEvents(wait)
	}
}

func (t *Transfer) interrupted(op, phase, msg string, cause error, unrecoverable bool) error {
	t.report(PhaseFailed, 0, 0)
	err := &protocol.Error{
		Kind:          protocol.TransferInterrupted,
		Op:            op,
		Reason:        phase,
		Msg:           msg,
		Err:           cause,
		Unrecoverable: unrecoverable,
	}
	if t.logger != nil {
		t.logger.WithFields(logrus.Fields{
			"phase":         phase,
			"unrecoverable": unrecoverable,
			"error":         cause,
		}).Error("Transfer interrupted")
	}
	return err
}
