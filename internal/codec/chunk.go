package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/srg/bandlink/internal/protocol"
)

const (
	ChunkHeaderSize = 3

	ChunkFlagLast  byte = 0x80
	ChunkFlagFirst byte = 0x40
	chunkTypeMask  byte = 0x3f

	// AssetChunkCapacity is the payload size of one framed asset chunk
	AssetChunkCapacity = 17
	// FirmwareChunkCapacity is the payload size of one firmware data write
	FirmwareChunkCapacity = 20
)

// Chunk types used on the chunked-transfer channel
const (
	ChunkTypeAsset     uint8 = 0x00
	ChunkTypeMusicInfo uint8 = 0x03
)

// ChunkFrame is one framed piece of a chunked transfer
type ChunkFrame struct {
	First   bool
	Last    bool
	Type    uint8
	Seq     uint8
	Payload []byte
}

// EncodeChunkFrame builds reserved byte, flags|type, sequence, payload
func EncodeChunkFrame(f ChunkFrame) []byte {
	flags := f.Type & chunkTypeMask
	if f.First {
		flags |= ChunkFlagFirst
	}
	if f.Last {
		flags |= ChunkFlagLast
	}
	out := make([]byte, 0, ChunkHeaderSize+len(f.Payload))
	out = append(out, 0x00, flags, f.Seq)
	return append(out, f.Payload...)
}

// DecodeChunkFrame parses a framed chunk. The returned payload aliases b.
func DecodeChunkFrame(b []byte) (ChunkFrame, error) {
	if len(b) < ChunkHeaderSize {
		return ChunkFrame{}, protocol.Malformed("chunk frame", ChunkHeaderSize, len(b))
	}
	flags := b[1]
	return ChunkFrame{
		First:   flags&ChunkFlagFirst != 0,
		Last:    flags&ChunkFlagLast != 0,
		Type:    flags & chunkTypeMask,
		Seq:     b[2],
		Payload: b[ChunkHeaderSize:],
	}, nil
}

// SplitChunks cuts payload into ceil(len/capacity) frames. The first frame is
// flagged First, the last is flagged Last, and a single frame carries both.
// Sequence numbers wrap modulo 256. Payload slices alias the input.
func SplitChunks(typ uint8, payload []byte, capacity int) []ChunkFrame {
	if capacity <= 0 || len(payload) == 0 {
		return nil
	}
	count := (len(payload) + capacity - 1) / capacity
	frames := make([]ChunkFrame, 0, count)
	for i := 0; i < count; i++ {
		start := i * capacity
		end := start + capacity
		if end > len(payload) {
			end = len(payload)
		}
		frames = append(frames, ChunkFrame{
			First:   i == 0,
			Last:    i == count-1,
			Type:    typ,
			Seq:     uint8(i),
			Payload: payload[start:end],
		})
	}
	return frames
}

// MaxFirmwareSize is the largest image the 3-byte length field can describe
const MaxFirmwareSize = 1<<24 - 1

// FirmwareCRC is the IEEE CRC32 over the whole image
func FirmwareCRC(image []byte) uint32 {
	return crc32.ChecksumIEEE(image)
}

// EncodeFirmwareStart builds 0x01 0x08 + LE24 length + 0x00 + LE32 CRC32
func EncodeFirmwareStart(size int, crc uint32) ([]byte, error) {
	if size <= 0 || size > MaxFirmwareSize {
		return nil, fmt.Errorf("firmware size %d out of range 1..%d", size, MaxFirmwareSize)
	}
	out := []byte{
		FirmwareCmdStart, firmwareStartKind,
		byte(size), byte(size >> 8), byte(size >> 16),
		0x00,
	}
	return binary.LittleEndian.AppendUint32(out, crc), nil
}

// FirmwareResponse is a decoded firmware-control notification
type FirmwareResponse struct {
	Command byte
	Status  byte
}

// OK reports a success status
func (r FirmwareResponse) OK() bool {
	return r.Status == StatusSuccess
}

// DecodeFirmwareResponse parses 0x10 <command> <status>
func DecodeFirmwareResponse(b []byte) (FirmwareResponse, error) {
	if len(b) < 3 {
		return FirmwareResponse{}, protocol.Malformed("firmware response", 3, len(b))
	}
	if b[0] != ResponsePrefix {
		return FirmwareResponse{}, &protocol.Error{
			Kind: protocol.MalformedPacket,
			Op:   "decode firmware response",
			Msg:  fmt.Sprintf("unexpected prefix 0x%02x", b[0]),
		}
	}
	return FirmwareResponse{Command: b[1], Status: b[2]}, nil
}
