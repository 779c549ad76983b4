// Package goble implements protocol.Transport on top of go-ble/ble.
//
// Notifications arrive on go-ble's goroutines. They are buffered and handed
// to the registered listener from WaitForEvents, on the caller's goroutine,
// so listeners may write to the device without re-entering the BLE stack.
package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/groutine"
	"github.com/srg/bandlink/internal/protocol"
)

// ErrChannelUnavailable is returned for channels the device does not expose
var ErrChannelUnavailable = errors.New("channel not available on this device")

// gattClient is the part of ble.Client the transport drives
type gattClient interface {
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// Options tunes the transport
type Options struct {
	// ConnectTimeout bounds Dial plus profile discovery
	ConnectTimeout time.Duration `default:"30s"`
	// PendingLimit sizes the notification ring; the oldest are overwritten beyond it
	PendingLimit uint32 `default:"4096"`
}

type notification struct {
	ch   protocol.Channel
	data []byte
}

// Transport is a connected band
type Transport struct {
	client gattClient
	logger *logrus.Logger
	opts   Options

	chars *hashmap.Map[protocol.Channel, *ble.Characteristic]

	writeMutex sync.Mutex

	mu       sync.Mutex
	pending  mpmc.RichOverlappedRingBuffer[notification]
	dropped  atomic.Int64
	listener protocol.Listener
	signal   chan struct{}

	deliverMu sync.Mutex

	disconnected chan struct{}
	downOnce     sync.Once
	closeOnce    sync.Once
	closeErr     error
}

var _ protocol.Transport = (*Transport)(nil)

// Connect dials address, discovers its profile and maps every known channel
func Connect(ctx context.Context, address string, opts Options, logger *logrus.Logger) (*Transport, error) {
	defaults.SetDefaults(&opts)

	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"address": address,
			"timeout": opts.ConnectTimeout,
		}).Info("Connecting to band...")
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	connCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		return nil, protocol.NormalizeError("connect", fmt.Errorf("failed to connect to device with address %q: %w", address, err))
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil && logger != nil {
			logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection after discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	t, err := newTransport(client, profile, opts, logger)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil && logger != nil {
			logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection")
		}
		return nil, err
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"address":  address,
			"services": len(profile.Services),
			"channels": t.chars.Len(),
		}).Info("Band connected")
	}
	return t, nil
}

func newTransport(client gattClient, profile *ble.Profile, opts Options, logger *logrus.Logger) (*Transport, error) {
	defaults.SetDefaults(&opts)
	t := &Transport{
		client:       client,
		logger:       logger,
		opts:         opts,
		chars:        mapChannels(profile),
		pending:      mpmc.NewOverlappedRingBuffer[notification](opts.PendingLimit),
		signal:       make(chan struct{}, 1),
		disconnected: make(chan struct{}),
	}

	if _, ok := t.chars.Get(protocol.ChannelAuth); !ok {
		return nil, fmt.Errorf("auth characteristic not found: %w", ErrChannelUnavailable)
	}

	if logger != nil {
		for _, ch := range protocol.Channels() {
			if _, ok := t.chars.Get(ch); !ok {
				logger.WithField("channel", ch.String()).Debug("Channel not exposed by device")
			}
		}
	}

	// CoreBluetooth and the linux HCI client both expose a Disconnected channel
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "band-link-monitor", func(context.Context) {
			select {
			case <-dc.Disconnected():
				if logger != nil {
					logger.Warn("BLE stack reported disconnection")
				}
				t.markDisconnected()
			case <-t.disconnected:
			}
		})
	} else if logger != nil {
		logger.Debug("Client does not expose a Disconnected() channel")
	}

	return t, nil
}

// Channels lists the channels the device exposes
func (t *Transport) Channels() []protocol.Channel {
	var out []protocol.Channel
	for _, ch := range protocol.Channels() {
		if _, ok := t.chars.Get(ch); ok {
			out = append(out, ch)
		}
	}
	return out
}

func (t *Transport) characteristic(op string, ch protocol.Channel) (*ble.Characteristic, error) {
	if t.isDisconnected() {
		return nil, &protocol.Error{Kind: protocol.TransportDisconnected, Op: op + " " + ch.String()}
	}
	c, ok := t.chars.Get(ch)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", op, ch.String(), ErrChannelUnavailable)
	}
	return c, nil
}

// Write sends data; requireAck selects write-with-response
func (t *Transport) Write(ch protocol.Channel, data []byte, requireAck bool) error {
	c, err := t.characteristic("write", ch)
	if err != nil {
		return err
	}

	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	if t.logger != nil {
		t.logger.WithFields(logrus.Fields{
			"channel": ch.String(),
			"ack":     requireAck,
			"data":    fmt.Sprintf("% x", data),
		}).Debug("BLE write")
	}
	return protocol.NormalizeError("write "+ch.String(), t.client.WriteCharacteristic(c, data, !requireAck))
}

// Read returns the current characteristic value
func (t *Transport) Read(ch protocol.Channel) ([]byte, error) {
	c, err := t.characteristic("read", ch)
	if err != nil {
		return nil, err
	}
	data, err := t.client.ReadCharacteristic(c)
	if err != nil {
		return nil, protocol.NormalizeError("read "+ch.String(), err)
	}
	return data, nil
}

// EnableNotifications subscribes to ch; go-ble writes 0x0100 to the CCCD
func (t *Transport) EnableNotifications(ch protocol.Channel) error {
	c, err := t.characteristic("subscribe", ch)
	if err != nil {
		return err
	}
	err = t.client.Subscribe(c, false, func(data []byte) {
		t.enqueue(ch, data)
	})
	if err != nil {
		return protocol.NormalizeError("subscribe "+ch.String(), err)
	}
	if t.logger != nil {
		t.logger.WithField("channel", ch.String()).Debug("Notifications enabled")
	}
	return nil
}

// DisableNotifications unsubscribes from ch; go-ble writes 0x0000 to the CCCD
func (t *Transport) DisableNotifications(ch protocol.Channel) error {
	c, err := t.characteristic("unsubscribe", ch)
	if err != nil {
		return err
	}
	if err := t.client.Unsubscribe(c, false); err != nil {
		return protocol.NormalizeError("unsubscribe "+ch.String(), err)
	}
	if t.logger != nil {
		t.logger.WithField("channel", ch.String()).Debug("Notifications disabled")
	}
	return nil
}

// RegisterListener installs the notification listener
func (t *Transport) RegisterListener(fn protocol.Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = fn
}

func (t *Transport) enqueue(ch protocol.Channel, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	overwrites, err := t.pending.EnqueueM(notification{ch: ch, data: buf})
	switch {
	case err != nil:
		if t.logger != nil {
			t.logger.WithFields(logrus.Fields{
				"channel": ch.String(),
				"error":   err,
			}).Error("Failed to buffer notification")
		}
	case overwrites > 0:
		total := t.dropped.Add(int64(overwrites))
		if t.logger != nil {
			t.logger.WithFields(logrus.Fields{
				"dropped": total,
				"limit":   t.opts.PendingLimit,
			}).Warn("Notification buffer full, dropping oldest")
		}
	}

	select {
	case t.signal <- struct{}{}:
	default:
	}
}

// Dropped is the number of notifications overwritten before delivery
func (t *Transport) Dropped() int {
	return int(t.dropped.Load())
}

// WaitForEvents delivers buffered notifications to the listener. It waits up
// to timeout for the first one and reports whether anything was delivered.
func (t *Transport) WaitForEvents(timeout time.Duration) bool {
	if t.deliver() {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-t.signal:
			if t.deliver() {
				return true
			}
		case <-timer.C:
			return t.deliver()
		case <-t.disconnected:
			return t.deliver()
		}
	}
}

func (t *Transport) deliver() bool {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	var batch []notification
	for !t.pending.IsEmpty() {
		n, err := t.pending.Dequeue()
		if err != nil {
			break
		}
		batch = append(batch, n)
	}

	t.mu.Lock()
	listener := t.listener
	t.mu.Unlock()

	if len(batch) == 0 {
		return false
	}
	if listener == nil {
		if t.logger != nil {
			t.logger.WithField("count", len(batch)).Debug("No listener, discarding notifications")
		}
		return false
	}
	for _, n := range batch {
		listener(n.ch, n.data)
	}
	return true
}

// Disconnected is closed when the link drops or the transport is closed
func (t *Transport) Disconnected() <-chan struct{} {
	return t.disconnected
}

// Close cancels the connection
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		wasDown := t.isDisconnected()
		t.markDisconnected()
		if wasDown {
			return
		}
		t.closeErr = t.client.CancelConnection()
		if t.logger != nil {
			if t.closeErr != nil {
				t.logger.WithField("error", t.closeErr).Warn("Band disconnected with errors")
			} else {
				t.logger.Info("Band disconnected")
			}
		}
	})
	return t.closeErr
}

func (t *Transport) markDisconnected() {
	t.downOnce.Do(func() { close(t.disconnected) })
}

func (t *Transport) isDisconnected() bool {
	select {
	case <-t.disconnected:
		return true
	default:
		return false
	}
}
