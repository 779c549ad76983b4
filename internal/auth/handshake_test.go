package auth

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/router"
	"github.com/srg/bandlink/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestEncryptECBKnownVector(t *testing.T) {
	key, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	plaintext, _ := hex.DecodeString("00112233445566778899aabbccddeeff")

	got, err := encryptECB(key, plaintext)
	require.NoError(t, err)
	assert.Equal(t, "69c4e0d86a7b0430d8cdb78070b4c55a", hex.EncodeToString(got))

	_, err = encryptECB(key, plaintext[:15])
	assert.Error(t, err, "partial block MUST be rejected")
}

type HandshakeTestSuite struct {
	suite.Suite

	logger *logrus.Logger
	band   *testutils.FakeBand
	router *router.Router
}

func (s *HandshakeTestSuite) SetupTest() {
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.DebugLevel)
	s.band = testutils.NewFakeBand(testutils.TestKey())
	s.router = router.New(router.Options{Logger: s.logger, Location: time.UTC})
	s.band.RegisterListener(s.router.Dispatch)
}

func (s *HandshakeTestSuite) newHandshake(opts Options) *Handshake {
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	return NewHandshake(s.band, s.router, testutils.TestKey(), opts, s.logger)
}

func (s *HandshakeTestSuite) encryptedFrame() []byte {
	return append([]byte{0x03, 0x00}, testutils.EncryptChallenge(testutils.TestKey(), s.band.Random[:])...)
}

func (s *HandshakeTestSuite) TestSuccess() {
	// GOAL: Verify the happy-path handshake and the single auth notification disable
	//
	// TEST SCENARIO: Request random → encrypt and send → success → disable auth notifications once

	h := s.newHandshake(Options{})
	err := h.Initialize(context.Background(), time.Second)
	s.Require().NoError(err)
	s.Equal(Status{State: Authenticated}, h.Status())
	s.True(h.Authenticated())

	s.Equal([][]byte{{0x02, 0x00}, s.encryptedFrame()}, s.band.WritesTo(protocol.ChannelAuth))
	for _, w := range s.band.Writes() {
		s.False(w.RequireAck, "auth writes MUST be write-without-response")
	}
	s.Equal(1, s.band.DisableCount(protocol.ChannelAuth), "auth notifications MUST be disabled exactly once")

	// already authenticated: no traffic, no second disable
	s.Require().NoError(h.Initialize(context.Background(), time.Second))
	s.Len(s.band.WritesTo(protocol.ChannelAuth), 2)
	s.Equal(1, s.band.DisableCount(protocol.ChannelAuth))
}

func (s *HandshakeTestSuite) TestSingleRetryOnEncryptionFailure() {
	// GOAL: Verify a rejected encrypted value is retransmitted exactly once before success is accepted
	//
	// TEST SCENARIO: Random → encrypted → key failure → one retransmission → success

	s.band.RejectEncrypted = 1
	h := s.newHandshake(Options{})

	s.Require().NoError(h.Initialize(context.Background(), time.Second))
	s.Equal(Authenticated, h.Status().State)

	frame := s.encryptedFrame()
	s.Equal([][]byte{{0x02, 0x00}, frame, frame}, s.band.WritesTo(protocol.ChannelAuth))
	s.Equal(1, s.band.DisableCount(protocol.ChannelAuth))
}

func (s *HandshakeTestSuite) TestScriptedSequence() {
	// GOAL: Verify transitions driven purely by literal notifications
	//
	// TEST SCENARIO: [random number, key failure, success] queued up front → authenticated after one retransmission

	s.band.SilentAuth = true
	s.band.Inject(protocol.ChannelAuth,
		codec.EncodeAuthResponse(codec.AuthRandomNumber, s.band.Random[:]),
		[]byte{0x10, 0x03, 0x04},
		[]byte{0x10, 0x03, 0x01},
	)

	h := s.newHandshake(Options{})
	s.Require().NoError(h.Initialize(context.Background(), time.Second))

	frame := s.encryptedFrame()
	s.Equal([][]byte{{0x02, 0x00}, frame, frame}, s.band.WritesTo(protocol.ChannelAuth))
	s.Equal(1, s.band.DisableCount(protocol.ChannelAuth))
}

func (s *HandshakeTestSuite) TestFailures() {
	tests := []struct {
		name   string
		setup  func(b *testutils.FakeBand)
		opts   Options
		reason Reason
	}{
		{"second encryption failure", func(b *testutils.FakeBand) { b.RejectEncrypted = 2 }, Options{}, ReasonEncryptionFailed},
		{"retries disabled", func(b *testutils.FakeBand) { b.RejectEncrypted = 1 }, Options{EncryptionRetries: -1}, ReasonEncryptionFailed},
		{"random request failed", func(b *testutils.FakeBand) { b.FailRandomRequest = true }, Options{}, ReasonRandomRequestFailed},
		{"key sending failed", func(b *testutils.FakeBand) { b.FailSendKey = true }, Options{Pair: true}, ReasonKeySendingFailed},
		{"timeout", func(b *testutils.FakeBand) { b.SilentAuth = true }, Options{}, ReasonTimeout},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			tt.setup(s.band)
			h := s.newHandshake(tt.opts)

			err := h.Initialize(context.Background(), 100*time.Millisecond)
			s.Require().Error(err)
			s.ErrorIs(err, protocol.ErrAuthFailed)
			s.Equal(Status{State: Failed, Reason: tt.reason}, h.Status())
			s.Zero(s.band.DisableCount(protocol.ChannelAuth), "failed handshake MUST NOT disable auth notifications")
		})
	}
}

func (s *HandshakeTestSuite) TestTimeoutCarriesTimeoutKind() {
	s.band.SilentAuth = true
	h := s.newHandshake(Options{})

	err := h.Initialize(context.Background(), 30*time.Millisecond)
	s.ErrorIs(err, protocol.ErrAuthFailed)
	s.ErrorIs(err, protocol.ErrTimeout)
}

func (s *HandshakeTestSuite) TestPairing() {
	// GOAL: Verify pairing sends the key first and proceeds after acceptance
	//
	// TEST SCENARIO: Send key → key accepted → request random → encrypted → success

	h := s.newHandshake(Options{Pair: true})
	s.Require().NoError(h.Initialize(context.Background(), time.Second))

	key := testutils.TestKey()
	s.Equal([][]byte{
		append([]byte{0x01, 0x00}, key[:]...),
		{0x02, 0x00},
		s.encryptedFrame(),
	}, s.band.WritesTo(protocol.ChannelAuth))
}

func (s *HandshakeTestSuite) TestMalformedNotificationIgnored() {
	s.band.Inject(protocol.ChannelAuth, []byte{0x10, 0x02})
	h := s.newHandshake(Options{})
	s.Require().NoError(h.Initialize(context.Background(), time.Second))
}

func (s *HandshakeTestSuite) TestRouterClosed() {
	s.router.Close(&protocol.Error{Kind: protocol.TransportDisconnected})
	h := s.newHandshake(Options{})

	err := h.Initialize(context.Background(), time.Second)
	s.ErrorIs(err, protocol.ErrAuthFailed)
	s.ErrorIs(err, protocol.ErrTransportDisconnected)
	s.Equal(Status{State: Failed, Reason: ReasonTransportError}, h.Status())
}

func (s *HandshakeTestSuite) TestWriteFailure() {
	s.band.FailWrites(protocol.ChannelAuth, &protocol.Error{Kind: protocol.TransportDisconnected})
	h := s.newHandshake(Options{})

	err := h.Initialize(context.Background(), time.Second)
	s.ErrorIs(err, protocol.ErrTransportDisconnected)
	s.Equal(ReasonTransportError, h.Status().Reason)
}

func (s *HandshakeTestSuite) TestCancelledContext() {
	s.band.SilentAuth = true
	h := s.newHandshake(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.Initialize(ctx, time.Second)
	s.ErrorIs(err, context.Canceled)
	s.Equal(ReasonTimeout, h.Status().Reason)
}

func (s *HandshakeTestSuite) TestResetAndReinitiate() {
	s.band.FailRandomRequest = true
	h := s.newHandshake(Options{})
	s.Require().Error(h.Initialize(context.Background(), time.Second))

	h.Reset()
	s.Equal(Status{State: Unauthenticated}, h.Status())

	s.band.FailRandomRequest = false
	s.Require().NoError(h.Initialize(context.Background(), time.Second))
	s.Equal(Authenticated, h.Status().State)
}

func (s *HandshakeTestSuite) TestLateNotificationsIgnored() {
	h := s.newHandshake(Options{})
	s.Require().NoError(h.Initialize(context.Background(), time.Second))

	h.HandleNotification([]byte{0x10, 0x03, 0x04})
	s.Equal(Authenticated, h.Status().State, "terminal state MUST NOT change on stray notifications")
}

func TestHandshakeTestSuite(t *testing.T) {
	suite.Run(t, new(HandshakeTestSuite))
}
