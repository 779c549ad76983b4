package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies protocol failures
type Kind string

const (
	MalformedPacket       Kind = "malformed_packet"
	AuthFailed            Kind = "auth_failed"
	TransportDisconnected Kind = "transport_disconnected"
	Timeout               Kind = "timeout"
	TransferInterrupted   Kind = "transfer_interrupted"
	Unauthenticated       Kind = "unauthenticated"
)

// Error is the structured error value returned by every bandlink component.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "decode battery", "fetch activity"
	Reason string // machine-readable sub-reason (auth failure reason, transfer phase)
	Msg    string
	Err    error

	// Unrecoverable is set on transfer errors raised after the firmware start
	// frame: the device may be left without a valid image.
	Unrecoverable bool
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind
var (
	ErrMalformedPacket       = &Error{Kind: MalformedPacket}
	ErrAuthFailed            = &Error{Kind: AuthFailed}
	ErrTransportDisconnected = &Error{Kind: TransportDisconnected}
	ErrTimeout               = &Error{Kind: Timeout}
	ErrTransferInterrupted   = &Error{Kind: TransferInterrupted}
	ErrUnauthenticated       = &Error{Kind: Unauthenticated}
)

// Malformed builds a MalformedPacket error for a layout that needed want bytes but got got.
func Malformed(layout string, want, got int) error {
	return &Error{
		Kind: MalformedPacket,
		Op:   "decode " + layout,
		Msg:  fmt.Sprintf("need at least %d bytes, got %d", want, got),
	}
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == kind
	}
	return false
}

// IsUnrecoverable reports whether err carries the unrecoverable-device-state flag.
func IsUnrecoverable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Unrecoverable
	}
	return false
}

// NormalizeError maps known go-ble error strings to structured errors.
// Unknown errors are returned untouched.
func NormalizeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "device not connected"),
		strings.Contains(msg, "disconnected"),
		strings.Contains(msg, "connection is not initialized"),
		strings.Contains(msg, "bluetooth is turned off"):
		return &Error{Kind: TransportDisconnected, Op: op, Err: err}
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return &Error{Kind: Timeout, Op: op, Err: err}
	default:
		return err
	}
}
