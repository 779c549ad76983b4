package codec

import (
	"encoding/binary"
	"time"

	"github.com/srg/bandlink/internal/protocol"
)

const (
	HeartRateSize = 2
	RawAccelSize  = 20
	RawHeartSize  = 16

	// RawAccelMarker is the first byte of an accelerometer packet on the sensor-data channel
	RawAccelMarker byte = 0x01

	rawHeaderSize   = 2
	accelTripleSize = 6
	rawHeartSamples = 7
)

// AccelSample is one accelerometer reading
type AccelSample struct {
	X, Y, Z int16
}

// DecodeHeartRate returns the beats-per-minute byte of a heart-rate measurement
func DecodeHeartRate(b []byte) (uint8, error) {
	if len(b) < HeartRateSize {
		return 0, protocol.Malformed("heart rate", HeartRateSize, len(b))
	}
	return b[1], nil
}

// DecodeRawAccel parses a 20-byte sensor packet into three little-endian triples at offsets 2, 8 and 14.
func DecodeRawAccel(b []byte) ([3]AccelSample, error) {
	var out [3]AccelSample
	if len(b) < RawAccelSize {
		return out, protocol.Malformed("raw accel", RawAccelSize, len(b))
	}
	for i := range out {
		off := rawHeaderSize + i*accelTripleSize
		out[i] = AccelSample{
			X: int16(binary.LittleEndian.Uint16(b[off:])),
			Y: int16(binary.LittleEndian.Uint16(b[off+2:])),
			Z: int16(binary.LittleEndian.Uint16(b[off+4:])),
		}
	}
	return out, nil
}

// EncodeRawAccel is the inverse of DecodeRawAccel, with seq in the second header byte
func EncodeRawAccel(seq uint8, samples [3]AccelSample) []byte {
	out := make([]byte, RawAccelSize)
	out[0] = RawAccelMarker
	out[1] = seq
	for i, s := range samples {
		off := rawHeaderSize + i*accelTripleSize
		binary.LittleEndian.PutUint16(out[off:], uint16(s.X))
		binary.LittleEndian.PutUint16(out[off+2:], uint16(s.Y))
		binary.LittleEndian.PutUint16(out[off+4:], uint16(s.Z))
	}
	return out
}

// DecodeRawHeart parses a 16-byte sensor packet into seven unsigned samples
func DecodeRawHeart(b []byte) ([7]uint16, error) {
	var out [rawHeartSamples]uint16
	if len(b) < RawHeartSize {
		return out, protocol.Malformed("raw heart", RawHeartSize, len(b))
	}
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[rawHeaderSize+2*i:])
	}
	return out, nil
}

// BatterySize covers level, charging flag and both timestamps
const BatterySize = 18

const batteryLastLevelOffset = 19

// BatteryStatus is the decoded battery characteristic
type BatteryStatus struct {
	Level      uint8
	Charging   bool
	LastOff    time.Time
	LastCharge time.Time
	// LastLevel is the level at the last charge, zero when the device omits it
	LastLevel uint8
}

// DecodeBattery parses the battery characteristic: level at 1, charging at 2,
// last-off timestamp at 3..9 and last-charge timestamp at 11..17.
func DecodeBattery(b []byte, loc *time.Location) (BatteryStatus, error) {
	if len(b) < BatterySize {
		return BatteryStatus{}, protocol.Malformed("battery", BatterySize, len(b))
	}
	lastOff, err := DecodeTimestamp(b[3:10], TimestampSecond, loc)
	if err != nil {
		return BatteryStatus{}, err
	}
	lastCharge, err := DecodeTimestamp(b[11:18], TimestampSecond, loc)
	if err != nil {
		return BatteryStatus{}, err
	}

	status := BatteryStatus{
		Level:      b[1],
		Charging:   b[2] != 0,
		LastOff:    lastOff,
		LastCharge: lastCharge,
	}
	if len(b) > batteryLastLevelOffset {
		status.LastLevel = b[batteryLastLevelOffset]
	}
	return status, nil
}

const stepsMinSize = 3

// StepsInfo is the decoded realtime steps characteristic
type StepsInfo struct {
	Steps    uint16
	Meters   uint16
	Calories uint8
}

// DecodeSteps parses the steps characteristic. Only the step field is mandatory.
func DecodeSteps(b []byte) (StepsInfo, error) {
	if len(b) < stepsMinSize {
		return StepsInfo{}, protocol.Malformed("steps", stepsMinSize, len(b))
	}
	info := StepsInfo{Steps: binary.LittleEndian.Uint16(b[1:3])}
	if len(b) >= 7 {
		info.Meters = binary.LittleEndian.Uint16(b[5:7])
	}
	if len(b) >= 10 {
		info.Calories = b[9]
	}
	return info, nil
}
