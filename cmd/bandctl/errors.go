package main

import (
	"errors"
	"fmt"

	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/transport/goble"
)

// Command-level errors
var (
	// ErrConnectionLost is returned when the band drops the link mid-command
	ErrConnectionLost = errors.New("connection lost")
	// ErrNoKey is returned when an authenticated command has no key configured
	ErrNoKey = errors.New("no authentication key: use --key, --key-file or key_file in config")
)

var kindHints = map[protocol.Kind]string{
	protocol.Unauthenticated:       "band rejected or did not complete authentication; check the key or retry with --pair",
	protocol.TransportDisconnected: "band disconnected; make sure it is in range and not connected to a phone",
	protocol.Timeout:               "band did not answer in time",
	protocol.AuthFailed:            "handshake failed; check the key, or retry with --pair on a band that was reset",
	protocol.MalformedPacket:       "band sent data that could not be decoded",
	protocol.TransferInterrupted:   "transfer was interrupted",
}

// FormatUserError turns protocol errors into a short actionable message.
// Unrecoverable failures get an extra warning line.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, goble.ErrChannelUnavailable) {
		return err.Error() + "\n  band does not expose a required characteristic; the model may be unsupported"
	}

	var perr *protocol.Error
	if !errors.As(err, &perr) {
		return err.Error()
	}

	msg := err.Error()
	if hint, ok := kindHints[perr.Kind]; ok {
		msg = fmt.Sprintf("%s\n  %s", msg, hint)
	}
	if protocol.IsUnrecoverable(err) {
		msg += "\n  WARNING: the band may be left in an inconsistent state; repeat the upload before rebooting it"
	}
	return msg
}
