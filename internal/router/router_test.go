package router

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *Router {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return New(Options{Logger: logger, Location: time.UTC})
}

func TestRouterRedeliveryAcrossCategories(t *testing.T) {
	// GOAL: Verify that dequeuing one category leaves other categories untouched and ordered
	//
	// TEST SCENARIO: Push heart rate A1, music B, heart rate A2 → pop music → pop heart rate twice

	r := newTestRouter()
	r.Dispatch(protocol.ChannelHeartRateMeasure, []byte{0x00, 60})
	r.Dispatch(protocol.ChannelDeviceEvent, []byte{0xfe, 0x03})
	r.Dispatch(protocol.ChannelHeartRateMeasure, []byte{0x00, 61})

	ev, ok := r.Pop(CategoryMusic)
	require.True(t, ok)
	assert.Equal(t, Music{Command: codec.MusicNext}, ev)

	_, ok = r.Pop(CategoryMusic)
	assert.False(t, ok, "single music event MUST be consumed")

	first, ok := r.Pop(CategoryHeartRate)
	require.True(t, ok)
	second, ok := r.Pop(CategoryHeartRate)
	require.True(t, ok)
	assert.Equal(t, HeartRate{BPM: 60}, first)
	assert.Equal(t, HeartRate{BPM: 61}, second)

	_, ok = r.Pop(CategoryHeartRate)
	assert.False(t, ok)
}

func TestRouterPopEmpty(t *testing.T) {
	r := newTestRouter()
	for _, c := range Categories() {
		ev, ok := r.Pop(c)
		assert.False(t, ok)
		assert.Nil(t, ev)
	}
	_, ok := r.Pop(CategoryUnknown)
	assert.False(t, ok)
}

func TestRouterClassification(t *testing.T) {
	accel := codec.EncodeRawAccel(1, [3]codec.AccelSample{{X: 1}, {Y: 2}, {Z: 3}})
	rawHeart := []byte{0x02, 0x00, 1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0, 7, 0}

	tests := []struct {
		name     string
		channel  protocol.Channel
		data     []byte
		category Category
		want     Event
	}{
		{"heart rate", protocol.ChannelHeartRateMeasure, []byte{0x00, 88}, CategoryHeartRate, HeartRate{BPM: 88}},
		{"raw accel", protocol.ChannelSensorData, accel, CategoryRawAccel, RawAccel{Samples: [3]codec.AccelSample{{X: 1}, {Y: 2}, {Z: 3}}}},
		{"raw heart", protocol.ChannelSensorData, rawHeart, CategoryRawHeart, RawHeart{Samples: [7]uint16{1, 2, 3, 4, 5, 6, 7}}},
		{"lost device", protocol.ChannelDeviceEvent, []byte{0x08}, CategoryLostDevice, LostDevice{Command: codec.LostDeviceStart}},
		{"firmware control", protocol.ChannelFirmwareControl, []byte{0x10, 0x01, 0x01}, CategoryFirmwareControl,
			FirmwareControl{FirmwareResponse: codec.FirmwareResponse{Command: 0x01, Status: 0x01}}},
		{"fetch control", protocol.ChannelFetch, []byte{0x10, 0x02, 0x04}, CategoryFetchControl,
			FetchControl{FetchControl: codec.FetchControl{Kind: codec.FetchNoMoreData}, Raw: []byte{0x10, 0x02, 0x04}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter()
			r.Dispatch(tt.channel, tt.data)

			ev, ok := r.Pop(tt.category)
			require.True(t, ok, "event MUST land in %s", tt.category)
			assert.Equal(t, tt.want, ev)
			assert.Equal(t, tt.category, ev.Category())
		})
	}
}

func TestRouterActivityFanOut(t *testing.T) {
	r := newTestRouter()
	r.Dispatch(protocol.ChannelActivityData, []byte{5, 1, 10, 20, 70, 1, 11, 21, 71, 1, 12, 22, 72})

	events := r.Drain(CategoryActivity)
	require.Len(t, events, 3, "one event per record")
	for i, ev := range events {
		rec := ev.(ActivityRecord)
		assert.Equal(t, uint8(5), rec.Seq)
		assert.Equal(t, i, rec.Index)
		assert.Equal(t, uint16(20+i), rec.Record.Steps)
	}
	assert.Zero(t, r.Len(CategoryActivity))
}

func TestRouterDropsUndecodable(t *testing.T) {
	r := newTestRouter()
	r.Dispatch(protocol.ChannelHeartRateMeasure, []byte{0x00})
	r.Dispatch(protocol.ChannelSensorData, []byte{0x01, 0x02, 0x03})
	r.Dispatch(protocol.ChannelBattery, []byte{0x0f})
	r.Dispatch(protocol.ChannelDeviceEvent, []byte{0x42})

	for _, stat := range r.Stats() {
		assert.Zero(t, stat.Pending, "category %s MUST stay empty", stat.Category)
	}
	assert.Equal(t, 3, r.Dropped(), "unknown device event codes are ignored, not dropped as errors")
}

func TestRouterAuthHandler(t *testing.T) {
	r := newTestRouter()

	// no handler: silently dropped
	r.Dispatch(protocol.ChannelAuth, []byte{0x10, 0x03, 0x01})

	var got [][]byte
	r.SetAuthHandler(func(data []byte) {
		got = append(got, data)
	})

	src := []byte{0x10, 0x02, 0x04}
	r.Dispatch(protocol.ChannelAuth, src)
	src[0] = 0xff

	require.Len(t, got, 1)
	assert.Equal(t, []byte{0x10, 0x02, 0x04}, got[0], "handler MUST receive a private copy")
	for _, stat := range r.Stats() {
		assert.Zero(t, stat.Pending, "auth notifications MUST never be queued")
	}
}

func TestRouterStatsOrder(t *testing.T) {
	r := newTestRouter()
	r.Dispatch(protocol.ChannelDeviceEvent, []byte{0xfe, 0x00})
	r.Dispatch(protocol.ChannelDeviceEvent, []byte{0xfe, 0x01})

	stats := r.Stats()
	require.Len(t, stats, len(Categories()))
	for i, c := range Categories() {
		assert.Equal(t, c, stats[i].Category)
	}
	assert.Equal(t, 2, r.Len(CategoryMusic))

	r.Reset(CategoryMusic)
	assert.Zero(t, r.Len(CategoryMusic))
}

func TestRouterClose(t *testing.T) {
	r := newTestRouter()
	calls := 0
	r.SetAuthHandler(func([]byte) { calls++ })
	r.Dispatch(protocol.ChannelHeartRateMeasure, []byte{0x00, 70})

	assert.NoError(t, r.Err())

	cause := &protocol.Error{Kind: protocol.TransportDisconnected, Op: "link"}
	r.Close(cause)
	r.Close(errors.New("second close is ignored"))

	assert.ErrorIs(t, r.Err(), protocol.ErrTransportDisconnected)
	_, ok := r.Pop(CategoryHeartRate)
	assert.False(t, ok, "queues MUST be torn down on close")

	r.Dispatch(protocol.ChannelHeartRateMeasure, []byte{0x00, 71})
	r.Dispatch(protocol.ChannelAuth, []byte{0x10, 0x03, 0x01})
	assert.Zero(t, r.Len(CategoryHeartRate))
	assert.Zero(t, calls)
}

func TestRouterCloseWithoutCause(t *testing.T) {
	r := newTestRouter()
	r.Close(nil)
	assert.ErrorIs(t, r.Err(), ErrClosed)
	assert.True(t, protocol.IsKind(r.Err(), protocol.TransportDisconnected), "close without cause MUST still be structured")
}

func TestQueueReuse(t *testing.T) {
	q := &queue{}
	for round := 0; round < 3; round++ {
		for i := 0; i < 5; i++ {
			q.push(HeartRate{BPM: uint8(i)})
		}
		for i := 0; i < 5; i++ {
			ev, ok := q.pop()
			require.True(t, ok)
			assert.Equal(t, HeartRate{BPM: uint8(i)}, ev)
		}
		assert.Zero(t, q.len())
	}
}
