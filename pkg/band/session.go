// Package band is the device session for a Huami-style fitness band: it owns
// the transport and the key, and gates every device operation on a
// completed authentication handshake.
package band

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/auth"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/groutine"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/router"
	"github.com/srg/bandlink/internal/stream"
	"github.com/srg/bandlink/internal/transport/goble"
	"github.com/srg/bandlink/pkg/config"
)

// Options configures a session
type Options struct {
	AuthTimeout time.Duration `default:"10s"`
	// Timezone names the zone device timestamps are interpreted in
	Timezone string `default:"Local"`
	// AssetChunkType is the chunk type byte used by SendAsset
	AssetChunkType uint8

	Auth     auth.Options
	Realtime stream.RealtimeOptions
	Fetch    stream.FetchOptions
	Transfer stream.TransferOptions
}

// DeviceInfo holds the device information service strings
type DeviceInfo struct {
	Serial           string
	HardwareRevision string
	SoftwareRevision string
}

// Session is one connected band
type Session struct {
	id        string
	transport protocol.Transport
	logger    *logrus.Logger
	log       *logrus.Entry
	opts      Options
	loc       *time.Location

	router    *router.Router
	handshake *auth.Handshake
	realtime  *stream.Realtime
	fetcher   *stream.Fetcher
	transfer  *stream.Transfer

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes request/response operations on the link
	opMu sync.Mutex

	mu            sync.Mutex
	onMusic       func(codec.MusicCommand)
	onLostDevice  func(codec.LostDeviceCommand)
	eventsEnabled bool
	streamDone    chan error
	streamCancel  context.CancelFunc
	closed        bool
}

// Connect dials address over go-ble and wraps the link in a session
func Connect(ctx context.Context, address string, key protocol.Key, opts Options, connect goble.Options, logger *logrus.Logger) (*Session, error) {
	transport, err := goble.Connect(ctx, address, connect, logger)
	if err != nil {
		return nil, err
	}
	s, err := New(transport, key, opts, logger)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return s, nil
}

// New builds a session on an already connected transport. The session takes
// ownership of transport and key.
func New(transport protocol.Transport, key protocol.Key, opts Options, logger *logrus.Logger) (*Session, error) {
	defaults.SetDefaults(&opts)
	if logger == nil {
		logger = logrus.New()
	}

	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", opts.Timezone, err)
	}

	id := uuid.NewString()
	r := router.New(router.Options{Logger: logger, Location: loc})
	transport.RegisterListener(r.Dispatch)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		transport: transport,
		logger:    logger,
		log:       logger.WithField("session_id", id),
		opts:      opts,
		loc:       loc,
		router:    r,
		handshake: auth.NewHandshake(transport, r, key, opts.Auth, logger),
		realtime:  stream.NewRealtime(transport, r, opts.Realtime, logger),
		fetcher:   stream.NewFetcher(transport, r, opts.Fetch, logger),
		transfer:  stream.NewTransfer(transport, r, opts.Transfer, logger),
		ctx:       ctx,
		cancel:    cancel,
	}

	groutine.GoSafe(ctx, "band-disconnect-watch", logger, s.watchDisconnect, nil)

	s.log.WithField("timezone", loc.String()).Info("Session created")
	return s, nil
}

// ID is the session correlation id carried in log entries
func (s *Session) ID() string {
	return s.id
}

func (s *Session) watchDisconnect(ctx context.Context) {
	select {
	case <-s.transport.Disconnected():
		s.log.Warn("Link dropped, tearing down session")
		s.router.Close(&protocol.Error{Kind: protocol.TransportDisconnected, Op: "session", Msg: "link dropped"})
		s.realtime.Stop()
	case <-ctx.Done():
	}
}

// Authenticate runs the handshake, bounded by Options.AuthTimeout
func (s *Session) Authenticate(ctx context.Context) error {
	if err := s.handshake.Initialize(ctx, s.opts.AuthTimeout); err != nil {
		s.log.WithField("error", err).Error("Authentication failed")
		return err
	}
	s.log.Info("Authenticated")
	return nil
}

// Status reports the handshake state
func (s *Session) Status() auth.Status {
	return s.handshake.Status()
}

// Reauthenticate resets a failed handshake and runs it again
func (s *Session) Reauthenticate(ctx context.Context) error {
	s.handshake.Reset()
	return s.Authenticate(ctx)
}

func (s *Session) requireAuth(op string) error {
	if err := s.router.Err(); err != nil {
		return err
	}
	if !s.handshake.Authenticated() {
		return &protocol.Error{Kind: protocol.Unauthenticated, Op: op, Msg: "authenticate first"}
	}
	return nil
}

// SendAlert shows an alert. Immediate kinds ignore payload; the others
// carry a title/body payload built with codec.AlertPayload.
func (s *Session) SendAlert(kind codec.AlertKind, payload []byte) error {
	if err := s.requireAuth("send alert"); err != nil {
		return err
	}
	data, err := codec.EncodeAlert(kind, payload)
	if err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.log.WithField("kind", kind.String()).Debug("Sending alert")
	if kind.Immediate() {
		return s.transport.Write(protocol.ChannelImmediateAlert, data, false)
	}
	return s.transport.Write(protocol.ChannelNewAlert, data, true)
}

// SetAlarm programs one alarm slot
func (s *Session) SetAlarm(a codec.Alarm) error {
	if err := s.requireAuth("set alarm"); err != nil {
		return err
	}
	data, err := codec.EncodeAlarm(a)
	if err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.log.WithFields(logrus.Fields{
		"id":      a.ID,
		"time":    fmt.Sprintf("%02d:%02d", a.Hour, a.Minute),
		"enabled": a.Enabled,
		"repeat":  a.Repeat.String(),
	}).Info("Setting alarm")
	return s.transport.Write(protocol.ChannelConfiguration, data, true)
}

// Battery reads and decodes the battery characteristic
func (s *Session) Battery() (codec.BatteryStatus, error) {
	if err := s.requireAuth("get battery status"); err != nil {
		return codec.BatteryStatus{}, err
	}
	data, err := s.read(protocol.ChannelBattery)
	if err != nil {
		return codec.BatteryStatus{}, err
	}
	return codec.DecodeBattery(data, s.loc)
}

// Steps reads today's step counters
func (s *Session) Steps() (codec.StepsInfo, error) {
	if err := s.requireAuth("get steps"); err != nil {
		return codec.StepsInfo{}, err
	}
	data, err := s.read(protocol.ChannelSteps)
	if err != nil {
		return codec.StepsInfo{}, err
	}
	return codec.DecodeSteps(data)
}

// CurrentTime reads the band clock
func (s *Session) CurrentTime() (time.Time, error) {
	if err := s.requireAuth("get current time"); err != nil {
		return time.Time{}, err
	}
	data, err := s.read(protocol.ChannelCurrentTime)
	if err != nil {
		return time.Time{}, err
	}
	return codec.DecodeDeviceTime(data, s.loc)
}

// SetCurrentTime sets the band clock to t in the session timezone
func (s *Session) SetCurrentTime(t time.Time) error {
	if err := s.requireAuth("set current time"); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	local := t.In(s.loc)
	return s.transport.Write(protocol.ChannelCurrentTime, codec.EncodeCurrentTime(local, s.opts.Fetch.UTCOffsetQuarters), true)
}

// DeviceInfo reads the device information service. It does not need authentication.
func (s *Session) DeviceInfo() (DeviceInfo, error) {
	var info DeviceInfo
	fields := []struct {
		ch  protocol.Channel
		dst *string
	}{
		{protocol.ChannelSerialNumber, &info.Serial},
		{protocol.ChannelHardwareRevision, &info.HardwareRevision},
		{protocol.ChannelSoftwareRevision, &info.SoftwareRevision},
	}
	for _, f := range fields {
		data, err := s.read(f.ch)
		if err != nil {
			return info, err
		}
		*f.dst = strings.TrimRight(string(data), "\x00 ")
	}
	return info, nil
}

func (s *Session) read(ch protocol.Channel) ([]byte, error) {
	if err := s.router.Err(); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	data, err := s.transport.Read(ch)
	if err != nil {
		return nil, protocol.NormalizeError("read "+ch.String(), err)
	}
	return data, nil
}

// FetchActivity delivers every activity record in [start, end) to fn and
// returns how many were delivered
func (s *Session) FetchActivity(ctx context.Context, start, end time.Time, fn stream.ActivityFunc) (int, error) {
	if err := s.requireAuth("fetch activity"); err != nil {
		return 0, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.fetcher.Fetch(ctx, start.In(s.loc), end.In(s.loc), fn)
}

// OnProgress installs a transfer progress callback
func (s *Session) OnProgress(fn stream.ProgressFunc) {
	s.transfer.OnProgress(fn)
}

// SendAsset uploads data through the chunked-transfer channel
func (s *Session) SendAsset(ctx context.Context, data []byte) error {
	if err := s.requireAuth("send asset"); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.transfer.SendChunked(ctx, s.opts.AssetChunkType, data)
}

// SetTrack shows the playing track on the band's music screen
func (s *Session) SetTrack(ctx context.Context, info codec.MusicInfo) error {
	if err := s.requireAuth("set track"); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.transfer.SendChunked(ctx, codec.ChunkTypeMusicInfo, codec.EncodeMusicInfo(info))
}

// UpdateFirmware uploads a firmware image (isFirmware) or a resource such
// as a watch face. Failures after the start frame are flagged unrecoverable.
func (s *Session) UpdateFirmware(ctx context.Context, image []byte, isFirmware bool) error {
	if err := s.requireAuth("update firmware"); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	err := s.transfer.UpdateFirmware(ctx, image, isFirmware)
	if err != nil && protocol.IsUnrecoverable(err) {
		s.log.WithField("error", err).Error("Firmware update failed, band may need a fresh upload")
	}
	return err
}

// OptionsFromConfig maps application configuration onto session options
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	quarters, err := cfg.UTCOffsetQuarters(time.Now())
	if err != nil {
		return Options{}, err
	}
	return Options{
		AuthTimeout: cfg.AuthTimeout,
		Auth: auth.Options{
			EncryptionRetries: retries(cfg.AuthRetries),
			PollInterval:      cfg.PollInterval,
		},
		Realtime: stream.RealtimeOptions{
			PollInterval:      cfg.PollInterval,
			KeepAliveInterval: cfg.KeepAliveInterval,
		},
		Fetch: stream.FetchOptions{
			PollInterval:      cfg.PollInterval,
			IdleTimeout:       cfg.FetchTimeout,
			RetriggerDelay:    cfg.FetchRetriggerDelay,
			UTCOffsetQuarters: quarters,
		},
		Transfer: stream.TransferOptions{
			ChunkRetries:    retries(cfg.ChunkRetries),
			ResponseTimeout: cfg.FirmwareResponseTimeout,
			PollInterval:    cfg.PollInterval,
		},
	}, nil
}

// retries turns a configured count into an option value, where zero means "use the default"
func retries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// Disconnected is closed when the link drops
func (s *Session) Disconnected() <-chan struct{} {
	return s.transport.Disconnected()
}
