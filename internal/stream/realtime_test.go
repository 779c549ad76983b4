package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/router"
	"github.com/srg/bandlink/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// streamSuite wires a FakeBand to a router the way a session does
type streamSuite struct {
	suite.Suite

	logger *logrus.Logger
	band   *testutils.FakeBand
	router *router.Router
}

func (s *streamSuite) SetupTest() {
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.DebugLevel)
	s.band = testutils.NewFakeBand(testutils.TestKey())
	s.router = router.New(router.Options{Logger: s.logger, Location: time.UTC})
	s.band.RegisterListener(s.router.Dispatch)
}

type RealtimeTestSuite struct {
	streamSuite
}

func (s *RealtimeTestSuite) newRealtime() *Realtime {
	return NewRealtime(s.band, s.router, RealtimeOptions{
		PollInterval:      5 * time.Millisecond,
		KeepAliveInterval: 30 * time.Millisecond,
	}, s.logger)
}

// collector gathers callback values across goroutines
type collector[T any] struct {
	mu     sync.Mutex
	values []T
}

func (c *collector[T]) add(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, v)
}

func (c *collector[T]) snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.values))
	copy(out, c.values)
	return out
}

func (s *RealtimeTestSuite) TestHeartRateStream() {
	// GOAL: Verify heart rate setup order, per-sample callbacks, keep-alive pings and teardown
	//
	// TEST SCENARIO: Start stream → receive 3 samples → observe ping → stop → stream tears down

	s.band.HeartRates = []uint8{70, 71, 72}
	s.band.PingReplies = []uint8{90}
	rt := s.newRealtime()

	got := &collector[uint8]{}
	errCh := make(chan error, 1)
	go func() { errCh <- rt.HeartRate(context.Background(), got.add) }()

	s.Eventually(func() bool { return len(got.snapshot()) >= 4 }, 2*time.Second, 5*time.Millisecond,
		"initial samples and the ping reply MUST be delivered")
	s.True(rt.Running())
	s.GreaterOrEqual(s.band.Pings(), 1)

	rt.Stop()
	select {
	case err := <-errCh:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.FailNow("stream did not stop")
	}
	s.False(rt.Running())

	s.Equal([]uint8{70, 71, 72, 90}, got.snapshot()[:4])

	control := s.band.WritesTo(protocol.ChannelHeartRateControl)
	s.Require().GreaterOrEqual(len(control), 5)
	s.Equal([][]byte{
		codec.HeartRateStopManual(),
		codec.HeartRateStopContinuous(),
		codec.HeartRateStartContinuous(),
	}, control[:3])
	s.Equal(codec.HeartRatePing(), control[3])
	s.Equal(codec.HeartRateStopContinuous(), control[len(control)-1], "teardown MUST stop continuous measurement")

	s.False(s.band.NotificationsEnabled(protocol.ChannelHeartRateMeasure))
	s.Zero(s.router.Len(router.CategoryHeartRate))
}

func (s *RealtimeTestSuite) TestRawStream() {
	// GOAL: Verify raw sensor mode routes accelerometer and PPG packets to their handlers
	//
	// TEST SCENARIO: Enable raw → start sensor → receive accel + raw heart → stop sensor on teardown

	accel := [3]codec.AccelSample{{X: 1, Y: 2, Z: 3}, {X: -1, Y: -2, Z: -3}, {X: 100, Y: 200, Z: 300}}
	s.band.RawAccel = [][3]codec.AccelSample{accel}
	s.band.RawHeart = [][7]uint16{{1, 2, 3, 4, 5, 6, 7}}
	s.band.HeartRates = []uint8{65}
	rt := s.newRealtime()

	accelGot := &collector[[3]codec.AccelSample]{}
	heartGot := &collector[[7]uint16]{}
	hrGot := &collector[uint8]{}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Raw(ctx, RawHandlers{HeartRate: hrGot.add, RawHeart: heartGot.add, RawAccel: accelGot.add})
	}()

	s.Eventually(func() bool {
		return len(accelGot.snapshot()) == 1 && len(heartGot.snapshot()) == 1 && len(hrGot.snapshot()) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	s.NoError(<-errCh, "context cancellation is a normal stop")

	s.Equal(accel, accelGot.snapshot()[0])
	s.Equal([7]uint16{1, 2, 3, 4, 5, 6, 7}, heartGot.snapshot()[0])

	sensor := s.band.WritesTo(protocol.ChannelSensorControl)
	s.Equal([][]byte{codec.SensorEnableRaw(), codec.SensorStart(), codec.SensorStop()}, sensor)
	s.False(s.band.NotificationsEnabled(protocol.ChannelSensorData))
}

func (s *RealtimeTestSuite) TestSingleActiveStream() {
	rt := s.newRealtime()
	errCh := make(chan error, 1)
	go func() { errCh <- rt.HeartRate(context.Background(), func(uint8) {}) }()

	s.Eventually(rt.Running, time.Second, time.Millisecond)
	s.ErrorIs(rt.HeartRate(context.Background(), func(uint8) {}), ErrStreamActive)

	rt.Stop()
	s.NoError(<-errCh)
}

func (s *RealtimeTestSuite) TestTransportDisconnect() {
	// GOAL: Verify a dropped link ends the stream with TransportDisconnected
	//
	// TEST SCENARIO: Start stream → router closed with disconnect cause → stream returns the cause

	rt := s.newRealtime()
	errCh := make(chan error, 1)
	go func() { errCh <- rt.HeartRate(context.Background(), func(uint8) {}) }()
	s.Eventually(rt.Running, time.Second, time.Millisecond)

	s.router.Close(&protocol.Error{Kind: protocol.TransportDisconnected, Op: "link"})

	select {
	case err := <-errCh:
		s.ErrorIs(err, protocol.ErrTransportDisconnected)
	case <-time.After(2 * time.Second):
		s.FailNow("stream did not observe disconnect")
	}
}

func (s *RealtimeTestSuite) TestSetupFailure() {
	s.band.FailWrites(protocol.ChannelHeartRateControl, &protocol.Error{Kind: protocol.Timeout, Op: "write"})
	rt := s.newRealtime()

	err := rt.HeartRate(context.Background(), func(uint8) {})
	s.ErrorIs(err, protocol.ErrTimeout)
	s.False(rt.Running())
}

func TestRealtimeTestSuite(t *testing.T) {
	suite.Run(t, new(RealtimeTestSuite))
}
