package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/router"
)

// ErrStreamActive is returned when a realtime stream is already running
var ErrStreamActive = errors.New("realtime stream already running")

// RealtimeOptions tunes realtime sampling
type RealtimeOptions struct {
	// PollInterval bounds each transport wait
	PollInterval time.Duration `default:"500ms"`
	// KeepAliveInterval is the heart-rate ping period; must exceed PollInterval
	KeepAliveInterval time.Duration `default:"12s"`
}

// RawHandlers receives raw sensor samples; nil handlers skip their category
type RawHandlers struct {
	HeartRate func(bpm uint8)
	RawHeart  func(samples [7]uint16)
	RawAccel  func(samples [3]codec.AccelSample)
}

// Realtime runs one sampling stream at a time
type Realtime struct {
	w      waiter
	logger *logrus.Logger
	opts   RealtimeOptions

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// NewRealtime creates a realtime sampler
func NewRealtime(transport protocol.Transport, r *router.Router, opts RealtimeOptions, logger *logrus.Logger) *Realtime {
	defaults.SetDefaults(&opts)
	return &Realtime{
		w:      waiter{transport: transport, router: r},
		logger: logger,
		opts:   opts,
	}
}

// Running reports whether a stream loop is active
func (rt *Realtime) Running() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.running
}

// Stop signals the active loop to tear down; it returns immediately.
func (rt *Realtime) Stop() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.stop != nil {
		close(rt.stop)
		rt.stop = nil
	}
}

// HeartRate streams heart-rate samples to fn until ctx ends or Stop is called.
func (rt *Realtime) HeartRate(ctx context.Context, fn func(bpm uint8)) error {
	setup := []command{
		{channel: protocol.ChannelHeartRateControl, data: codec.HeartRateStopManual()},
		{channel: protocol.ChannelHeartRateControl, data: codec.HeartRateStopContinuous()},
		enable(protocol.ChannelHeartRateMeasure),
		{channel: protocol.ChannelHeartRateControl, data: codec.HeartRateStartContinuous()},
	}
	teardown := []command{
		{channel: protocol.ChannelHeartRateControl, data: codec.HeartRateStopContinuous()},
		disable(protocol.ChannelHeartRateMeasure),
	}
	return rt.run(ctx, "heart_rate", setup, teardown, RawHandlers{HeartRate: fn})
}

// Raw streams raw PPG and accelerometer packets, plus heart rate when requested.
func (rt *Realtime) Raw(ctx context.Context, h RawHandlers) error {
	setup := []command{
		{channel: protocol.ChannelSensorControl, data: codec.SensorEnableRaw()},
		{channel: protocol.ChannelHeartRateControl, data: codec.HeartRateStopContinuous()},
		enable(protocol.ChannelHeartRateMeasure),
		enable(protocol.ChannelSensorData),
		{channel: protocol.ChannelSensorControl, data: codec.SensorStart()},
		{channel: protocol.ChannelHeartRateControl, data: codec.HeartRateStartContinuous()},
	}
	teardown := []command{
		{channel: protocol.ChannelSensorControl, data: codec.SensorStop()},
		{channel: protocol.ChannelHeartRateControl, data: codec.HeartRateStopContinuous()},
		disable(protocol.ChannelSensorData),
		disable(protocol.ChannelHeartRateMeasure),
	}
	return rt.run(ctx, "raw", setup, teardown, h)
}

func (rt *Realtime) run(ctx context.Context, mode string, setup, teardown []command, h RawHandlers) error {
	rt.mu.Lock()
	if rt.running {
		rt.mu.Unlock()
		return ErrStreamActive
	}
	rt.running = true
	stop := make(chan struct{})
	rt.stop = stop
	rt.mu.Unlock()

	defer func() {
		rt.mu.Lock()
		rt.running = false
		if rt.stop == stop {
			rt.stop = nil
		}
		rt.mu.Unlock()
	}()

	log := rt.logger
	if log != nil {
		log.WithFields(logrus.Fields{
			"mode":       mode,
			"poll":       rt.opts.PollInterval,
			"keep_alive": rt.opts.KeepAliveInterval,
		}).Info("Starting realtime stream")
	}

	categories := []router.Category{router.CategoryHeartRate, router.CategoryRawHeart, router.CategoryRawAccel}
	rt.w.router.Reset(categories...)

	if err := runCommands(rt.w.transport, setup); err != nil {
		rt.teardown(teardown)
		return err
	}

	lastPing := time.Now()
	samples := 0
	var loopErr error
	for {
		done, err := rt.w.check(ctx, stop)
		if done {
			// a caller-ended context is a normal stop
			if ctx.Err() == nil {
				loopErr = err
			}
			break
		}

		rt.w.transport.WaitForEvents(rt.opts.PollInterval)
		samples += rt.drain(h)

		if time.Since(lastPing) >= rt.opts.KeepAliveInterval {
			if err := rt.w.transport.Write(protocol.ChannelHeartRateControl, codec.HeartRatePing(), true); err != nil {
				loopErr = protocol.NormalizeError("heart rate keep-alive", err)
				break
			}
			lastPing = time.Now()
			if log != nil {
				log.Debug("Heart rate keep-alive sent")
			}
		}
	}

	rt.teardown(teardown)
	rt.w.router.Reset(categories...)

	if log != nil {
		log.WithFields(logrus.Fields{
			"mode":    mode,
			"samples": samples,
			"error":   loopErr,
		}).Info("Realtime stream stopped")
	}
	return loopErr
}

func (rt *Realtime) drain(h RawHandlers) int {
	n := 0
	for _, ev := range rt.w.router.Drain(router.CategoryHeartRate) {
		if h.HeartRate != nil {
			h.HeartRate(ev.(router.HeartRate).BPM)
			n++
		}
	}
	for _, ev := range rt.w.router.Drain(router.CategoryRawHeart) {
		if h.RawHeart != nil {
			h.RawHeart(ev.(router.RawHeart).Samples)
			n++
		}
	}
	for _, ev := range rt.w.router.Drain(router.CategoryRawAccel) {
		if h.RawAccel != nil {
			h.RawAccel(ev.(router.RawAccel).Samples)
			n++
		}
	}
	return n
}

// teardown is best effort: the link may already be gone
func (rt *Realtime) teardown(cmds []command) {
	for _, c := range cmds {
		if err := c.run(rt.w.transport); err != nil && rt.logger != nil {
			rt.logger.WithFields(logrus.Fields{
				"channel": c.channel.String(),
				"error":   err,
			}).Debug("Realtime teardown step failed")
		}
	}
}

type commandOp int

const (
	opWrite commandOp = iota
	opEnable
	opDisable
)

// command is one setup or teardown step
type command struct {
	channel protocol.Channel
	data    []byte
	op      commandOp
}

func enable(ch protocol.Channel) command  { return command{channel: ch, op: opEnable} }
func disable(ch protocol.Channel) command { return command{channel: ch, op: opDisable} }

func (c command) run(t protocol.Transport) error {
	var err error
	switch c.op {
	case opEnable:
		err = t.EnableNotifications(c.channel)
	case opDisable:
		err = t.DisableNotifications(c.channel)
	default:
		err = t.Write(c.channel, c.data, true)
	}
	return protocol.NormalizeError("write "+c.channel.String(), err)
}

func runCommands(t protocol.Transport, cmds []command) error {
	for _, c := range cmds {
		if err := c.run(t); err != nil {
			return err
		}
	}
	return nil
}
