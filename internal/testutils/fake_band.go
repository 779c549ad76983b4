package testutils

import (
	"bytes"
	"crypto/aes"
	"hash/crc32"
	"sync"
	"time"

	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
)

// FakeBand is a FakeTransport that answers the way a band does: it runs the
// auth handshake against Key, serves activity history and accepts firmware.
// Configure fields before handing the band to the code under test.
type FakeBand struct {
	*FakeTransport

	Key    protocol.Key
	Random [codec.RandomNumberSize]byte

	// Auth behavior
	RejectEncrypted   int  // answer this many encrypted challenges with 0x10 0x03 0x04
	FailRandomRequest bool // answer random requests with 0x10 0x02 0x04
	FailSendKey       bool // answer send-key with 0x10 0x01 0x04
	SilentAuth        bool // never answer on the auth channel

	// Activity history served from HistoryStart, one record per minute
	HistoryStart     time.Time
	History          []codec.ActivityRecord
	BatchSize        int  // records per trigger before "more data"; 0 means all
	PacketRecords    int  // records per activity packet; 0 means 4
	DuplicateControl bool // send every fetch control frame twice
	Location         *time.Location

	// Heart rate and raw sensor samples emitted once a stream starts
	HeartRates  []uint8
	RawHeart    [][7]uint16
	RawAccel    [][3]codec.AccelSample
	PingReplies []uint8 // one heart rate sample per keep-alive ping

	// Firmware behavior
	FailFirmwareCommand *byte // answer this control command with failure

	mu          sync.Mutex
	fwSize      int
	fwCRC       uint32
	fwData      bytes.Buffer
	fwCommands  []byte
	fetchCursor int
	pingCount   int
}

// NewFakeBand creates a band accepting key
func NewFakeBand(key protocol.Key) *FakeBand {
	b := &FakeBand{
		FakeTransport: NewFakeTransport(),
		Key:           key,
		Location:      time.UTC,
	}
	for i := range b.Random {
		b.Random[i] = byte(0xa0 + i)
	}
	b.SetResponder(b.respond)
	return b
}

// TestKey is the key 00 01 02 .. 0f
func TestKey() protocol.Key {
	var k protocol.Key
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

// EncryptChallenge computes AES-128-ECB(random, key)
func EncryptChallenge(key protocol.Key, random []byte) []byte {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(random))
	for i := 0; i+aes.BlockSize <= len(random); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], random[i:i+aes.BlockSize])
	}
	return out
}

// FirmwareImage returns the data chunks received on the firmware data channel
func (b *FakeBand) FirmwareImage() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.fwData.Bytes())
}

// FirmwareCommands returns the firmware control commands in receive order
func (b *FakeBand) FirmwareCommands() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.fwCommands)
}

// Pings returns the number of heart rate keep-alive pings received
func (b *FakeBand) Pings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pingCount
}

func (b *FakeBand) respond(w WriteRecord) []Notification {
	switch w.Channel {
	case protocol.ChannelAuth:
		return b.respondAuth(w.Data)
	case protocol.ChannelFetch:
		return b.respondFetch(w.Data)
	case protocol.ChannelHeartRateControl:
		return b.respondHeartRate(w.Data)
	case protocol.ChannelSensorControl:
		return b.respondSensor(w.Data)
	case protocol.ChannelFirmwareControl:
		return b.respondFirmware(w.Data)
	case protocol.ChannelFirmwareData:
		b.mu.Lock()
		b.fwData.Write(w.Data)
		b.mu.Unlock()
	}
	return nil
}

func (b *FakeBand) respondAuth(data []byte) []Notification {
	if b.SilentAuth || len(data) < 2 {
		return nil
	}
	reply := func(r codec.AuthResponse, random []byte) []Notification {
		return []Notification{{Channel: protocol.ChannelAuth, Data: codec.EncodeAuthResponse(r, random)}}
	}

	switch data[0] {
	case 0x01:
		if b.FailSendKey || !bytes.Equal(data[2:], b.Key[:]) {
			return reply(codec.AuthKeySendFailed, nil)
		}
		return reply(codec.AuthKeyAccepted, nil)
	case 0x02:
		if b.FailRandomRequest {
			return reply(codec.AuthRandomRequestFailed, nil)
		}
		return reply(codec.AuthRandomNumber, b.Random[:])
	case 0x03:
		b.mu.Lock()
		reject := b.RejectEncrypted > 0
		if reject {
			b.RejectEncrypted--
		}
		b.mu.Unlock()
		if reject || !bytes.Equal(data[2:], EncryptChallenge(b.Key, b.Random[:])) {
			return reply(codec.AuthEncryptionFailed, nil)
		}
		return reply(codec.AuthSuccess, nil)
	}
	return nil
}

func (b *FakeBand) respondFetch(data []byte) []Notification {
	control := func(c codec.FetchControl) []Notification {
		n := Notification{Channel: protocol.ChannelFetch, Data: codec.EncodeFetchControl(c)}
		if b.DuplicateControl {
			return []Notification{n, {Channel: n.Channel, Data: clone(n.Data)}}
		}
		return []Notification{n}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case len(data) >= 2 && data[0] == 0x01 && data[1] == 0x01:
		from, err := codec.DecodeTimestamp(data[2:], codec.TimestampSecond, b.Location)
		if err != nil {
			return nil
		}
		idx := 0
		if from.After(b.HistoryStart) {
			idx = int(from.Sub(b.HistoryStart) / time.Minute)
		}
		if idx >= len(b.History) {
			return control(codec.FetchControl{Kind: codec.FetchNoData})
		}
		b.fetchCursor = idx
		return control(codec.FetchControl{
			Kind:            codec.FetchStarted,
			ExpectedRecords: uint32(b.batchEnd(idx) - idx),
			Start:           b.HistoryStart.Add(time.Duration(idx) * time.Minute),
		})

	case len(data) == 1 && data[0] == 0x02:
		start := b.fetchCursor
		end := b.batchEnd(start)
		per := b.PacketRecords
		if per <= 0 {
			per = 4
		}
		var out []Notification
		seq := uint8(0)
		for i := start; i < end; i += per {
			j := i + per
			if j > end {
				j = end
			}
			out = append(out, Notification{
				Channel: protocol.ChannelActivityData,
				Data:    codec.EncodeActivityPacket(seq, b.History[i:j]),
			})
			seq++
		}
		b.fetchCursor = end
		kind := codec.FetchNoMoreData
		if end < len(b.History) {
			kind = codec.FetchMoreData
		}
		return append(out, control(codec.FetchControl{Kind: kind})...)
	}
	return nil
}

func (b *FakeBand) batchEnd(idx int) int {
	end := len(b.History)
	if b.BatchSize > 0 && idx+b.BatchSize < end {
		end = idx + b.BatchSize
	}
	return end
}

func (b *FakeBand) respondHeartRate(data []byte) []Notification {
	hr := func(bpm uint8) Notification {
		return Notification{Channel: protocol.ChannelHeartRateMeasure, Data: []byte{0x00, bpm}}
	}

	switch {
	case bytes.Equal(data, codec.HeartRateStartContinuous()):
		out := make([]Notification, 0, len(b.HeartRates))
		for _, bpm := range b.HeartRates {
			out = append(out, hr(bpm))
		}
		return out
	case bytes.Equal(data, codec.HeartRatePing()):
		b.mu.Lock()
		defer b.mu.Unlock()
		b.pingCount++
		if b.pingCount <= len(b.PingReplies) {
			return []Notification{hr(b.PingReplies[b.pingCount-1])}
		}
	}
	return nil
}

func (b *FakeBand) respondSensor(data []byte) []Notification {
	if !bytes.Equal(data, codec.SensorStart()) {
		return nil
	}
	var out []Notification
	for i, samples := range b.RawAccel {
		out = append(out, Notification{
			Channel: protocol.ChannelSensorData,
			Data:    codec.EncodeRawAccel(uint8(i), samples),
		})
	}
	for i, samples := range b.RawHeart {
		packet := []byte{0x02, uint8(i)}
		for _, s := range samples {
			packet = append(packet, byte(s), byte(s>>8))
		}
		out = append(out, Notification{Channel: protocol.ChannelSensorData, Data: packet})
	}
	return out
}

func (b *FakeBand) respondFirmware(data []byte) []Notification {
	if len(data) == 0 {
		return nil
	}
	cmd := data[0]

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fwCommands = append(b.fwCommands, cmd)

	status := codec.StatusSuccess
	switch cmd {
	case codec.FirmwareCmdStart:
		if len(data) >= 10 {
			b.fwSize = int(data[2]) | int(data[3])<<8 | int(data[4])<<16
			b.fwCRC = uint32(data[6]) | uint32(data[7])<<8 | uint32(data[8])<<16 | uint32(data[9])<<24
		}
		b.fwData.Reset()
	case codec.FirmwareCmdBeginData:
		return nil
	case codec.FirmwareCmdChecksum:
		if b.fwData.Len() != b.fwSize || crc32.ChecksumIEEE(b.fwData.Bytes()) != b.fwCRC {
			status = codec.StatusFailure
		}
	}
	if b.FailFirmwareCommand != nil && *b.FailFirmwareCommand == cmd {
		status = codec.StatusFailure
	}
	return []Notification{{
		Channel: protocol.ChannelFirmwareControl,
		Data:    []byte{codec.ResponsePrefix, cmd, status},
	}}
}
