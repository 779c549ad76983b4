package testutils

import (
	"sync"
	"time"

	"github.com/srg/bandlink/internal/protocol"
)

// Notification is a device-to-host packet queued for delivery
type Notification struct {
	Channel protocol.Channel
	Data    []byte
}

// WriteRecord is one Write call observed by the fake
type WriteRecord struct {
	Channel    protocol.Channel
	Data       []byte
	RequireAck bool
	Err        error
}

// NotifyChange is one EnableNotifications/DisableNotifications call
type NotifyChange struct {
	Channel protocol.Channel
	Enabled bool
}

// Responder produces the device's answer to a successful write
type Responder func(w WriteRecord) []Notification

// FakeTransport is an in-memory protocol.Transport. Notifications are queued
// and handed to the listener only inside WaitForEvents, on the caller's goroutine.
type FakeTransport struct {
	mu        sync.Mutex
	listener  protocol.Listener
	pending   []Notification
	writes    []WriteRecord
	changes   []NotifyChange
	enabled   map[protocol.Channel]bool
	values    map[protocol.Channel][]byte
	writeErrs map[protocol.Channel][]error
	responder Responder
	closed    bool

	signal         chan struct{}
	disconnected   chan struct{}
	disconnectOnce sync.Once
}

// NewFakeTransport creates an empty fake
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		enabled:      make(map[protocol.Channel]bool),
		values:       make(map[protocol.Channel][]byte),
		writeErrs:    make(map[protocol.Channel][]error),
		signal:       make(chan struct{}, 1),
		disconnected: make(chan struct{}),
	}
}

// SetResponder installs the device behavior
func (f *FakeTransport) SetResponder(r Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responder = r
}

// Inject queues notifications for the next WaitForEvents
func (f *FakeTransport) Inject(ch protocol.Channel, packets ...[]byte) {
	f.mu.Lock()
	for _, p := range packets {
		f.pending = append(f.pending, Notification{Channel: ch, Data: clone(p)})
	}
	f.mu.Unlock()
	f.wake()
}

// SetValue sets what Read returns for ch
func (f *FakeTransport) SetValue(ch protocol.Channel, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[ch] = clone(data)
}

// FailWrites makes the next len(errs) writes to ch fail with errs, in order
func (f *FakeTransport) FailWrites(ch protocol.Channel, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErrs[ch] = append(f.writeErrs[ch], errs...)
}

// Disconnect simulates a link drop
func (f *FakeTransport) Disconnect() {
	f.disconnectOnce.Do(func() { close(f.disconnected) })
}

// Writes returns every observed write in call order
func (f *FakeTransport) Writes() []WriteRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]WriteRecord, len(f.writes))
	copy(out, f.writes)
	return out
}

// WritesTo returns the payloads of successful writes to ch
func (f *FakeTransport) WritesTo(ch protocol.Channel) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, w := range f.writes {
		if w.Channel == ch && w.Err == nil {
			out = append(out, w.Data)
		}
	}
	return out
}

// NotifyChanges returns enable/disable calls in call order
func (f *FakeTransport) NotifyChanges() []NotifyChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]NotifyChange, len(f.changes))
	copy(out, f.changes)
	return out
}

// DisableCount counts DisableNotifications calls for ch
func (f *FakeTransport) DisableCount(ch protocol.Channel) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.changes {
		if c.Channel == ch && !c.Enabled {
			n++
		}
	}
	return n
}

// NotificationsEnabled reports the current CCCD state of ch
func (f *FakeTransport) NotificationsEnabled(ch protocol.Channel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[ch]
}

// Pending returns the number of undelivered notifications
func (f *FakeTransport) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// IsClosed reports whether Close was called
func (f *FakeTransport) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeTransport) Write(ch protocol.Channel, data []byte, requireAck bool) error {
	if f.isDisconnected() {
		return &protocol.Error{Kind: protocol.TransportDisconnected, Op: "write " + ch.String()}
	}

	f.mu.Lock()
	rec := WriteRecord{Channel: ch, Data: clone(data), RequireAck: requireAck}
	if errs := f.writeErrs[ch]; len(errs) > 0 {
		rec.Err = errs[0]
		f.writeErrs[ch] = errs[1:]
	}
	f.writes = append(f.writes, rec)
	responder := f.responder
	f.mu.Unlock()

	if rec.Err != nil {
		return rec.Err
	}
	if responder == nil {
		return nil
	}
	if replies := responder(rec); len(replies) > 0 {
		f.mu.Lock()
		f.pending = append(f.pending, replies...)
		f.mu.Unlock()
		f.wake()
	}
	return nil
}

func (f *FakeTransport) Read(ch protocol.Channel) ([]byte, error) {
	if f.isDisconnected() {
		return nil, &protocol.Error{Kind: protocol.TransportDisconnected, Op: "read " + ch.String()}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[ch]
	if !ok {
		return nil, &protocol.Error{Kind: protocol.Timeout, Op: "read " + ch.String(), Msg: "no value"}
	}
	return clone(v), nil
}

func (f *FakeTransport) EnableNotifications(ch protocol.Channel) error {
	return f.setNotify(ch, true)
}

func (f *FakeTransport) DisableNotifications(ch protocol.Channel) error {
	return f.setNotify(ch, false)
}

func (f *FakeTransport) setNotify(ch protocol.Channel, on bool) error {
	if f.isDisconnected() {
		return &protocol.Error{Kind: protocol.TransportDisconnected, Op: "cccd " + ch.String()}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[ch] = on
	f.changes = append(f.changes, NotifyChange{Channel: ch, Enabled: on})
	return nil
}

func (f *FakeTransport) RegisterListener(fn protocol.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
}

// WaitForEvents delivers every queued notification to the listener and returns true,
// or waits up to timeout for one to arrive.
func (f *FakeTransport) WaitForEvents(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		f.mu.Lock()
		batch := f.pending
		f.pending = nil
		listener := f.listener
		f.mu.Unlock()

		if len(batch) > 0 {
			if listener != nil {
				for _, n := range batch {
					listener(n.Channel, n.Data)
				}
			}
			return true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-f.signal:
			timer.Stop()
		case <-f.disconnected:
			timer.Stop()
			return false
		case <-timer.C:
			return false
		}
	}
}

func (f *FakeTransport) Disconnected() <-chan struct{} {
	return f.disconnected
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.Disconnect()
	return nil
}

func (f *FakeTransport) wake() {
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *FakeTransport) isDisconnected() bool {
	select {
	case <-f.disconnected:
		return true
	default:
		return false
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ protocol.Transport = (*FakeTransport)(nil)
