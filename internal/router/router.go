package router

import (
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/protocol"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrClosed is returned by Err after Close was called without a cause
var ErrClosed error = &protocol.Error{Kind: protocol.TransportDisconnected, Op: "router", Msg: "closed"}

// AuthHandler receives auth-channel notifications synchronously, under the router lock.
type AuthHandler func(data []byte)

// Router classifies notifications by channel and keeps one FIFO per category.
// Its mutex is the single serialization point for notification-driven state:
// auth transitions and queue pushes never run concurrently.
type Router struct {
	mu     sync.Mutex
	logger *logrus.Logger
	loc    *time.Location

	decoders *hashmap.Map[protocol.Channel, decodeFunc]
	queues   *orderedmap.OrderedMap[Category, *queue]
	auth     AuthHandler

	closed  error
	dropped int
}

// Options configures a Router
type Options struct {
	Logger *logrus.Logger
	// Location is used for timestamps carried in notifications. Defaults to time.Local.
	Location *time.Location
}

// New creates a Router with a queue for every category
func New(opts Options) *Router {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	r := &Router{
		logger:   opts.Logger,
		loc:      loc,
		decoders: hashmap.New[protocol.Channel, decodeFunc](),
		queues:   orderedmap.New[Category, *queue](),
	}

	r.decoders.Set(protocol.ChannelHeartRateMeasure, decodeHeartRate)
	r.decoders.Set(protocol.ChannelSensorData, decodeSensorData)
	r.decoders.Set(protocol.ChannelFetch, decodeFetchControl)
	r.decoders.Set(protocol.ChannelActivityData, decodeActivity)
	r.decoders.Set(protocol.ChannelDeviceEvent, decodeDeviceEvent)
	r.decoders.Set(protocol.ChannelFirmwareControl, decodeFirmwareControl)

	for _, c := range Categories() {
		r.queues.Set(c, &queue{})
	}
	return r
}

// SetAuthHandler installs the auth-channel handler; nil removes it
func (r *Router) SetAuthHandler(h AuthHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auth = h
}

// Dispatch classifies one notification. It is the transport listener.
func (r *Router) Dispatch(ch protocol.Channel, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed != nil {
		r.debug(ch, len(data), "Dropping notification after close")
		return
	}

	if ch == protocol.ChannelAuth {
		if r.auth == nil {
			r.debug(ch, len(data), "Dropping auth notification, no handshake in progress")
			return
		}
		buf := make([]byte, len(data))
		copy(buf, data)
		r.auth(buf)
		return
	}

	decode, ok := r.decoders.Get(ch)
	if !ok {
		r.dropped++
		r.debug(ch, len(data), "Dropping notification from unrouted channel")
		return
	}

	events, err := decode(data, r.loc)
	if err != nil {
		r.dropped++
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"channel": ch.String(),
				"size":    len(data),
				"error":   err,
			}).Warn("Dropping undecodable notification")
		}
		return
	}

	for _, ev := range events {
		q, ok := r.queues.Get(ev.Category())
		if !ok {
			continue
		}
		q.push(ev)
	}

	if r.logger != nil && len(events) > 0 {
		r.logger.WithFields(logrus.Fields{
			"channel":  ch.String(),
			"category": events[0].Category().String(),
			"events":   len(events),
		}).Debug("Notification queued")
	}
}

// Pop removes and returns the oldest event of category c.
// ok is false when nothing is queued; events of other categories are untouched.
func (r *Router) Pop(c Category) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues.Get(c)
	if !ok {
		return nil, false
	}
	return q.pop()
}

// Drain removes and returns every queued event of category c, oldest first
func (r *Router) Drain(c Category) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues.Get(c)
	if !ok {
		return nil
	}
	return q.drain()
}

// Len returns the number of queued events of category c
func (r *Router) Len(c Category) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues.Get(c)
	if !ok {
		return 0
	}
	return q.len()
}

// CategoryStat is a queue depth snapshot
type CategoryStat struct {
	Category Category
	Pending  int
}

// Stats reports pending counts per category in registration order
func (r *Router) Stats() []CategoryStat {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]CategoryStat, 0, r.queues.Len())
	for pair := r.queues.Oldest(); pair != nil; pair = pair.Next() {
		stats = append(stats, CategoryStat{Category: pair.Key, Pending: pair.Value.len()})
	}
	return stats
}

// Dropped returns the number of notifications discarded as unroutable or undecodable
func (r *Router) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Reset discards queued events of the given categories, or of all categories if none given
func (r *Router) Reset(categories ...Category) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(categories) == 0 {
		for pair := r.queues.Oldest(); pair != nil; pair = pair.Next() {
			pair.Value.drain()
		}
		return
	}
	for _, c := range categories {
		if q, ok := r.queues.Get(c); ok {
			q.drain()
		}
	}
}

// Close tears the router down: queues are emptied, the auth handler is
// removed and every later Dispatch is dropped. Err reports cause afterwards.
// Only the first Close takes effect.
func (r *Router) Close(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed != nil {
		return
	}
	if cause == nil {
		cause = ErrClosed
	}
	r.closed = cause
	r.auth = nil

	pending := 0
	for pair := r.queues.Oldest(); pair != nil; pair = pair.Next() {
		pending += len(pair.Value.drain())
	}

	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{
			"cause":   cause,
			"dropped": pending,
		}).Debug("Router closed")
	}
}

// Err returns the Close cause, or nil while the router is open
func (r *Router) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Locked runs fn while holding the router lock, serializing it with Dispatch.
func (r *Router) Locked(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (r *Router) debug(ch protocol.Channel, size int, msg string) {
	if r.logger == nil {
		return
	}
	r.logger.WithFields(logrus.Fields{
		"channel": ch.String(),
		"size":    size,
	}).Debug(msg)
}

// queue is an unbounded FIFO
type queue struct {
	items []Event
	head  int
}

func (q *queue) push(ev Event) {
	q.items = append(q.items, ev)
}

func (q *queue) pop() (Event, bool) {
	if q.head >= len(q.items) {
		return nil, false
	}
	ev := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return ev, true
}

func (q *queue) drain() []Event {
	if q.head >= len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return nil
	}
	out := make([]Event, len(q.items)-q.head)
	copy(out, q.items[q.head:])
	q.items = nil
	q.head = 0
	return out
}

func (q *queue) len() int {
	return len(q.items) - q.head
}
