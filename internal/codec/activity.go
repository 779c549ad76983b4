package codec

import (
	"encoding/binary"
	"time"

	"github.com/srg/bandlink/internal/protocol"
)

// ActivityRecordSize is the wire size of one activity record
const ActivityRecordSize = 4

// MaxRecordSteps is the largest step count a record can carry.
// The wire field is one byte; larger counts saturate.
const MaxRecordSteps = 0xff

// ActivityRecord is one minute of activity history
type ActivityRecord struct {
	Category  uint8
	Intensity uint8
	Steps     uint16
	HeartRate uint8
}

// EncodeActivityRecord packs r into 4 bytes. Steps above 255 saturate.
func EncodeActivityRecord(r ActivityRecord) [ActivityRecordSize]byte {
	steps := r.Steps
	if steps > MaxRecordSteps {
		steps = MaxRecordSteps
	}
	return [ActivityRecordSize]byte{r.Category, r.Intensity, byte(steps), r.HeartRate}
}

// DecodeActivityRecord parses the first 4 bytes of b
func DecodeActivityRecord(b []byte) (ActivityRecord, error) {
	if len(b) < ActivityRecordSize {
		return ActivityRecord{}, protocol.Malformed("activity record", ActivityRecordSize, len(b))
	}
	return ActivityRecord{
		Category:  b[0],
		Intensity: b[1],
		Steps:     uint16(b[2]),
		HeartRate: b[3],
	}, nil
}

// DecodeActivityPacket splits an activity-data notification into its sequence
// byte and records. The payload after the sequence byte must be a whole number
// of records.
func DecodeActivityPacket(b []byte) (uint8, []ActivityRecord, error) {
	if len(b) < 1 {
		return 0, nil, protocol.Malformed("activity packet", 1, len(b))
	}
	body := b[1:]
	if len(body)%ActivityRecordSize != 0 {
		want := len(b) + ActivityRecordSize - len(body)%ActivityRecordSize
		return 0, nil, protocol.Malformed("activity packet", want, len(b))
	}

	records := make([]ActivityRecord, 0, len(body)/ActivityRecordSize)
	for i := 0; i < len(body); i += ActivityRecordSize {
		r, err := DecodeActivityRecord(body[i : i+ActivityRecordSize])
		if err != nil {
			return 0, nil, err
		}
		records = append(records, r)
	}
	return b[0], records, nil
}

// EncodeFetchTrigger builds 0x01 0x01 + 7-byte start timestamp + UTC offset byte.
func EncodeFetchTrigger(start time.Time, utcOffsetQuarters int8) []byte {
	out := make([]byte, 0, len(fetchTriggerPrefix)+int(TimestampSecond)+1)
	out = append(out, fetchTriggerPrefix...)
	out = AppendTimestamp(out, start, TimestampSecond)
	return append(out, byte(utcOffsetQuarters))
}

// FetchControlKind classifies notifications on the fetch channel
type FetchControlKind int

const (
	FetchUnknown FetchControlKind = iota
	// FetchStarted carries the device's first available timestamp
	FetchStarted
	// FetchNoData means the device has nothing for the requested range
	FetchNoData
	// FetchMoreData means the current batch is done and another trigger may follow
	FetchMoreData
	// FetchNoMoreData ends the retrieval
	FetchNoMoreData
)

func (k FetchControlKind) String() string {
	switch k {
	case FetchStarted:
		return "started"
	case FetchNoData:
		return "no_data"
	case FetchMoreData:
		return "more_data"
	case FetchNoMoreData:
		return "no_more_data"
	default:
		return "unknown"
	}
}

// FetchControl is a decoded fetch-channel notification
type FetchControl struct {
	Kind            FetchControlKind
	ExpectedRecords uint32
	Start           time.Time
}

const (
	fetchStartedMinLen  = 13 // prefix(3) + count(4) + minute timestamp(6)
	fetchStartedWithSec = 14
)

// DecodeFetchControl parses a fetch-channel notification.
// The first-timestamp variant is 0x10 0x01 0x01 + LE32 record count + timestamp.
func DecodeFetchControl(b []byte, loc *time.Location) (FetchControl, error) {
	if len(b) < 3 {
		return FetchControl{}, protocol.Malformed("fetch control", 3, len(b))
	}
	if b[0] != ResponsePrefix {
		return FetchControl{Kind: FetchUnknown}, nil
	}

	switch {
	case b[1] == 0x01 && b[2] == StatusSuccess:
		if len(b) < fetchStartedMinLen {
			return FetchControl{}, protocol.Malformed("fetch start", fetchStartedMinLen, len(b))
		}
		layout := TimestampMinute
		if len(b) >= fetchStartedWithSec {
			layout = TimestampSecond
		}
		start, err := DecodeTimestamp(b[7:], layout, loc)
		if err != nil {
			return FetchControl{}, err
		}
		return FetchControl{
			Kind:            FetchStarted,
			ExpectedRecords: binary.LittleEndian.Uint32(b[3:7]),
			Start:           start.Truncate(time.Minute),
		}, nil
	case b[1] == 0x01 && b[2] == StatusFailure:
		return FetchControl{Kind: FetchNoData}, nil
	case b[1] == 0x02 && b[2] == StatusSuccess:
		return FetchControl{Kind: FetchMoreData}, nil
	case b[1] == 0x02 && b[2] == StatusFailure:
		return FetchControl{Kind: FetchNoMoreData}, nil
	default:
		return FetchControl{Kind: FetchUnknown}, nil
	}
}

// EncodeActivityPacket builds a sequence byte followed by the records; used by simulators.
func EncodeActivityPacket(seq uint8, records []ActivityRecord) []byte {
	out := make([]byte, 0, 1+len(records)*ActivityRecordSize)
	out = append(out, seq)
	for _, r := range records {
		wire := EncodeActivityRecord(r)
		out = append(out, wire[:]...)
	}
	return out
}

// EncodeFetchControl builds the device-side fetch notification for c; used by simulators.
func EncodeFetchControl(c FetchControl) []byte {
	switch c.Kind {
	case FetchStarted:
		out := []byte{ResponsePrefix, 0x01, StatusSuccess}
		out = binary.LittleEndian.AppendUint32(out, c.ExpectedRecords)
		return AppendTimestamp(out, c.Start, TimestampSecond)
	case FetchNoData:
		return []byte{ResponsePrefix, 0x01, StatusFailure}
	case FetchMoreData:
		return []byte{ResponsePrefix, 0x02, StatusSuccess}
	case FetchNoMoreData:
		return []byte{ResponsePrefix, 0x02, StatusFailure}
	default:
		return nil
	}
}
