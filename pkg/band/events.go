package band

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/groutine"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/router"
	"github.com/srg/bandlink/internal/stream"
)

// StartHeartRateStream streams heart-rate samples to fn in the background
// until StopHeartRateStream is called or the link drops.
func (s *Session) StartHeartRateStream(fn func(bpm uint8)) error {
	if err := s.requireAuth("start heart rate stream"); err != nil {
		return err
	}
	return s.startStream("heart-rate", func(ctx context.Context) error {
		return s.realtime.HeartRate(ctx, fn)
	})
}

// StartRawStream streams raw PPG, accelerometer and heart-rate samples in the background
func (s *Session) StartRawStream(h stream.RawHandlers) error {
	if err := s.requireAuth("start raw stream"); err != nil {
		return err
	}
	return s.startStream("raw", func(ctx context.Context) error {
		return s.realtime.Raw(ctx, h)
	})
}

// StopHeartRateStream stops the active stream and returns the error it ended with
func (s *Session) StopHeartRateStream() error {
	s.mu.Lock()
	done, cancel := s.streamDone, s.streamCancel
	s.streamDone, s.streamCancel = nil, nil
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()
	s.realtime.Stop()
	return <-done
}

func (s *Session) startStream(name string, run func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamDone != nil {
		select {
		case err := <-s.streamDone:
			// previous stream already ended on its own
			s.log.WithFields(logrus.Fields{"stream": name, "previous_error": err}).Debug("Reaping finished stream")
			s.streamCancel()
		default:
			return stream.ErrStreamActive
		}
	}

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	s.streamDone, s.streamCancel = done, cancel

	groutine.GoSafe(ctx, "band-"+name+"-stream", s.logger, func(ctx context.Context) {
		done <- run(ctx)
	}, func(err error) {
		done <- err
	})
	s.log.WithField("stream", name).Info("Stream started")
	return nil
}

// RegisterMusicCallback installs the handler for media keys pressed on the band
func (s *Session) RegisterMusicCallback(fn func(codec.MusicCommand)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMusic = fn
}

// RegisterLostDeviceCallback installs the handler for find-my-phone requests
func (s *Session) RegisterLostDeviceCallback(fn func(codec.LostDeviceCommand)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLostDevice = fn
}

// Listen dispatches device events to the registered callbacks until ctx
// ends (returns nil) or the link drops (returns the cause).
func (s *Session) Listen(ctx context.Context) error {
	if err := s.requireAuth("listen"); err != nil {
		return err
	}
	if err := s.enableDeviceEvents(); err != nil {
		return err
	}

	poll := s.opts.Realtime.PollInterval
	if poll <= 0 {
		poll = s.opts.Fetch.PollInterval
	}
	for {
		if err := s.router.Err(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		s.transport.WaitForEvents(poll)
		s.dispatchDeviceEvents()
	}
}

func (s *Session) enableDeviceEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventsEnabled {
		return nil
	}
	if err := s.transport.EnableNotifications(protocol.ChannelDeviceEvent); err != nil {
		return protocol.NormalizeError("enable device events", err)
	}
	s.eventsEnabled = true
	return nil
}

func (s *Session) dispatchDeviceEvents() {
	s.mu.Lock()
	onMusic, onLost := s.onMusic, s.onLostDevice
	s.mu.Unlock()

	for _, ev := range s.router.Drain(router.CategoryMusic) {
		cmd := ev.(router.Music).Command
		s.log.WithField("command", cmd.String()).Debug("Music event")
		if onMusic != nil {
			onMusic(cmd)
		}
	}
	for _, ev := range s.router.Drain(router.CategoryLostDevice) {
		cmd := ev.(router.LostDevice).Command
		s.log.WithField("command", cmd.String()).Info("Lost device event")
		if onLost != nil {
			onLost(cmd)
		}
	}
}

// Stats reports pending events per router category and the number of dropped notifications
func (s *Session) Stats() ([]router.CategoryStat, int) {
	return s.router.Stats(), s.router.Dropped()
}

// Close stops background work, wipes the key and releases the transport
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.StopHeartRateStream(); err != nil {
		s.log.WithField("error", err).Debug("Stream ended with error during close")
	}
	s.cancel()
	s.handshake.Wipe()
	s.router.Close(&protocol.Error{Kind: protocol.TransportDisconnected, Op: "session", Msg: "closed"})

	err := s.transport.Close()
	s.log.Info("Session closed")
	return err
}
