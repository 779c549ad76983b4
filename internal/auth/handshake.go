package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/router"
)

// Options configures a Handshake
type Options struct {
	// EncryptionRetries is how many times a rejected encrypted challenge is resent.
	// Zero selects the default; a negative value disables retries.
	EncryptionRetries int `default:"1"`
	// PollInterval bounds each wait for auth notifications
	PollInterval time.Duration `default:"500ms"`
	// Pair sends the key before requesting a challenge, for bands that do not know it yet
	Pair bool
}

// Handshake drives the authentication state machine. Notifications reach it
// through the router's auth hook; Initialize only writes, waits and observes.
type Handshake struct {
	transport protocol.Transport
	router    *router.Router
	logger    *logrus.Logger
	opts      Options
	key       protocol.Key

	mu           sync.Mutex
	state        State
	reason       Reason
	cause        error
	retriesLeft  int
	lastSent     []byte
	authDisabled bool
}

// NewHandshake creates a handshake for key over transport
func NewHandshake(transport protocol.Transport, r *router.Router, key protocol.Key, opts Options, logger *logrus.Logger) *Handshake {
	defaults.SetDefaults(&opts)
	if opts.EncryptionRetries < 0 {
		opts.EncryptionRetries = 0
	}
	return &Handshake{
		transport: transport,
		router:    r,
		logger:    logger,
		opts:      opts,
		key:       key,
		state:     Unauthenticated,
	}
}

// Status returns the current state and failure reason
func (h *Handshake) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{State: h.state, Reason: h.reason}
}

// Authenticated reports whether the handshake completed successfully
func (h *Handshake) Authenticated() bool {
	return h.Status().State == Authenticated
}

// Reset returns a terminal handshake to Unauthenticated so it can be re-initiated
func (h *Handshake) Reset() {
	h.router.Locked(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.state = Unauthenticated
		h.reason = ReasonNone
		h.cause = nil
		h.lastSent = nil
		h.authDisabled = false
	})
}

// Wipe clears the key held by the handshake
func (h *Handshake) Wipe() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.key.Wipe()
}

// Initialize runs the handshake until it reaches a terminal state, timeout
// elapses or ctx is done. On success auth notifications are disabled once.
func (h *Handshake) Initialize(ctx context.Context, timeout time.Duration) error {
	h.mu.Lock()
	switch h.state {
	case Authenticated:
		h.mu.Unlock()
		return nil
	case AwaitingRandomNumber, AwaitingAuthResult:
		h.mu.Unlock()
		return fmt.Errorf("authentication already in progress")
	case Failed:
		h.logDebug("Re-initiating failed handshake")
	}
	h.mu.Unlock()

	if err := h.router.Err(); err != nil {
		return h.failWith(ReasonTransportError, err)
	}

	h.router.SetAuthHandler(h.HandleNotification)
	defer h.router.SetAuthHandler(nil)

	if err := h.transport.EnableNotifications(protocol.ChannelAuth); err != nil {
		return h.failWith(ReasonTransportError, protocol.NormalizeError("enable auth notifications", err))
	}

	first := codec.RequestRandomNumber()
	if h.opts.Pair {
		first = codec.EncodeSendKey(h.key)
	}
	h.router.Locked(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.state = AwaitingRandomNumber
		h.reason = ReasonNone
		h.cause = nil
		h.retriesLeft = h.opts.EncryptionRetries
	})

	if h.logger != nil {
		h.logger.WithFields(logrus.Fields{
			"pair":    h.opts.Pair,
			"timeout": timeout,
		}).Info("Starting authentication")
	}

	if err := h.transport.Write(protocol.ChannelAuth, first, false); err != nil {
		return h.failWith(ReasonTransportError, protocol.NormalizeError("auth write", err))
	}

	deadline := time.Now().Add(timeout)
	for {
		st := h.Status()
		if st.State.Terminal() {
			break
		}
		if err := ctx.Err(); err != nil {
			return h.failWith(ReasonTimeout, err)
		}
		if err := h.router.Err(); err != nil {
			return h.failWith(ReasonTransportError, err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return h.failWith(ReasonTimeout, &protocol.Error{
				Kind: protocol.Timeout,
				Op:   "authenticate",
				Msg:  fmt.Sprintf("no terminal state within %s (last state %s)", timeout, st.State),
			})
		}
		wait := h.opts.PollInterval
		if remaining < wait {
			wait = remaining
		}
		h.transport.WaitForEvents(wait)
	}

	return h.finish()
}

// HandleNotification applies one auth-channel packet. The router calls it
// under its lock, so it must not block on notification delivery.
func (h *Handshake) HandleNotification(data []byte) {
	resp, random, err := codec.DecodeAuthResponse(data)
	if err != nil {
		if h.logger != nil {
			h.logger.WithField("error", err).Warn("Ignoring malformed auth notification")
		}
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.state.awaiting() {
		if h.logger != nil {
			h.logger.WithFields(logrus.Fields{
				"state":    h.state.String(),
				"response": resp.String(),
			}).Debug("Ignoring auth notification outside handshake")
		}
		return
	}

	if h.logger != nil {
		h.logger.WithFields(logrus.Fields{
			"state":    h.state.String(),
			"response": resp.String(),
		}).Debug("Auth notification")
	}

	switch resp {
	case codec.AuthKeyAccepted:
		if h.state == AwaitingRandomNumber {
			h.send(codec.RequestRandomNumber())
		}
	case codec.AuthKeySendFailed:
		h.fail(ReasonKeySendingFailed, nil)
	case codec.AuthRandomNumber:
		if h.state != AwaitingRandomNumber {
			h.logDebug("Ignoring random number while awaiting auth result")
			return
		}
		ciphertext, err := encryptECB(h.key[:], random)
		if err != nil {
			h.fail(ReasonEncryptionFailed, err)
			return
		}
		frame, err := codec.EncodeEncryptedRandom(ciphertext)
		if err != nil {
			h.fail(ReasonEncryptionFailed, err)
			return
		}
		h.lastSent = frame
		if h.send(frame) {
			h.state = AwaitingAuthResult
		}
	case codec.AuthRandomRequestFailed:
		h.fail(ReasonRandomRequestFailed, nil)
	case codec.AuthSuccess:
		h.state = Authenticated
		h.lastSent = nil
	case codec.AuthEncryptionFailed:
		if h.state == AwaitingAuthResult && h.retriesLeft > 0 && h.lastSent != nil {
			h.retriesLeft--
			if h.logger != nil {
				h.logger.WithField("retries_left", h.retriesLeft).Warn("Encrypted challenge rejected, resending")
			}
			if h.send(h.lastSent) {
				h.state = AwaitingRandomNumber
			}
			return
		}
		h.fail(ReasonEncryptionFailed, nil)
	default:
		h.logDebug("Ignoring unknown auth notification")
	}
}

// send writes without response; caller holds h.mu
func (h *Handshake) send(frame []byte) bool {
	if err := h.transport.Write(protocol.ChannelAuth, frame, false); err != nil {
		h.fail(ReasonTransportError, protocol.NormalizeError("auth write", err))
		return false
	}
	return true
}

// fail moves to Failed; caller holds h.mu
func (h *Handshake) fail(reason Reason, cause error) {
	h.state = Failed
	h.reason = reason
	h.cause = cause
	h.lastSent = nil
}

func (h *Handshake) failWith(reason Reason, cause error) error {
	h.router.Locked(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.state != Authenticated {
			h.fail(reason, cause)
		}
	})
	return h.finish()
}

// finish turns a terminal state into the Initialize result
func (h *Handshake) finish() error {
	h.mu.Lock()
	state, reason, cause := h.state, h.reason, h.cause
	disable := state == Authenticated && !h.authDisabled
	if disable {
		h.authDisabled = true
	}
	h.mu.Unlock()

	if state == Authenticated {
		if disable {
			if err := h.transport.DisableNotifications(protocol.ChannelAuth); err != nil && h.logger != nil {
				h.logger.WithField("error", err).Warn("Failed to disable auth notifications")
			}
			if h.logger != nil {
				h.logger.Info("Authenticated")
			}
		}
		return nil
	}

	err := &protocol.Error{
		Kind:   protocol.AuthFailed,
		Op:     "authenticate",
		Reason: string(reason),
		Err:    cause,
	}
	if h.logger != nil {
		h.logger.WithFields(logrus.Fields{
			"reason": string(reason),
			"error":  cause,
		}).Error("Authentication failed")
	}
	return err
}

func (h *Handshake) logDebug(msg string) {
	if h.logger != nil {
		h.logger.Debug(msg)
	}
}
