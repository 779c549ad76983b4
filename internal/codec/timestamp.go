package codec

import (
	"encoding/binary"
	"time"

	"github.com/srg/bandlink/internal/protocol"
)

// TimestampLayout selects one of the device timestamp encodings; its value is the encoded length.
type TimestampLayout int

const (
	// TimestampMinute is year(LE16) month day hour minute
	TimestampMinute TimestampLayout = 6
	// TimestampSecond appends seconds
	TimestampSecond TimestampLayout = 7
	// TimestampFull appends weekday (Monday=1..Sunday=7) and 1/256 second fractions
	TimestampFull TimestampLayout = 9
)

const nanosPerFraction = int64(time.Second) / 256

// AppendTimestamp appends t in the given layout to dst.
func AppendTimestamp(dst []byte, t time.Time, layout TimestampLayout) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(t.Year()))
	dst = append(dst,
		byte(int8(t.Month())),
		byte(int8(t.Day())),
		byte(int8(t.Hour())),
		byte(int8(t.Minute())),
	)
	if layout == TimestampMinute {
		return dst
	}
	dst = append(dst, byte(int8(t.Second())))
	if layout == TimestampSecond {
		return dst
	}
	return append(dst, isoWeekday(t.Weekday()), byte(int64(t.Nanosecond())/nanosPerFraction))
}

// EncodeTimestamp returns t in the given layout
func EncodeTimestamp(t time.Time, layout TimestampLayout) []byte {
	return AppendTimestamp(make([]byte, 0, int(layout)), t, layout)
}

// DecodeTimestamp parses exactly the given layout from the start of b.
// Bytes after the layout are ignored. A nil loc means UTC.
func DecodeTimestamp(b []byte, layout TimestampLayout, loc *time.Location) (time.Time, error) {
	if len(b) < int(layout) {
		return time.Time{}, protocol.Malformed("timestamp", int(layout), len(b))
	}
	if loc == nil {
		loc = time.UTC
	}

	year := int(binary.LittleEndian.Uint16(b[0:2]))
	month := time.Month(int8(b[2]))
	day := int(int8(b[3]))
	hour := int(int8(b[4]))
	minute := int(int8(b[5]))

	var second, nanos int
	if layout >= TimestampSecond {
		second = int(int8(b[6]))
	}
	if layout >= TimestampFull {
		// b[7] carries the weekday, which is implied by the date
		nanos = int(int64(b[8]) * nanosPerFraction)
	}
	return time.Date(year, month, day, hour, minute, second, nanos, loc), nil
}

// DecodeDeviceTime parses a device-reported timestamp of variable length:
// 7 bytes minimum, with weekday and fractions honoured when present.
func DecodeDeviceTime(b []byte, loc *time.Location) (time.Time, error) {
	switch {
	case len(b) >= int(TimestampFull):
		return DecodeTimestamp(b, TimestampFull, loc)
	default:
		return DecodeTimestamp(b, TimestampSecond, loc)
	}
}

// isoWeekday maps Sunday=0 to Sunday=7 while keeping Monday=1
func isoWeekday(d time.Weekday) byte {
	if d == time.Sunday {
		return 7
	}
	return byte(d)
}

// EncodeCurrentTime builds the current-time characteristic value: a full
// timestamp, an adjust-reason byte and the UTC offset in quarter hours.
func EncodeCurrentTime(t time.Time, utcOffsetQuarters int8) []byte {
	out := AppendTimestamp(make([]byte, 0, int(TimestampFull)+2), t, TimestampFull)
	return append(out, 0x00, byte(utcOffsetQuarters))
}

// UTCOffsetQuarters returns the zone offset of t in quarter hours, as the band expects it.
func UTCOffsetQuarters(t time.Time) int8 {
	_, offset := t.Zone()
	return int8(offset / (15 * 60))
}
