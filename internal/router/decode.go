package router

import (
	"time"

	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
)

// decodeFunc turns one notification into zero or more events
type decodeFunc func(data []byte, loc *time.Location) ([]Event, error)

func decodeHeartRate(data []byte, _ *time.Location) ([]Event, error) {
	bpm, err := codec.DecodeHeartRate(data)
	if err != nil {
		return nil, err
	}
	return []Event{HeartRate{BPM: bpm}}, nil
}

// decodeSensorData splits the shared sensor channel by packet shape:
// 20 bytes with marker 0x01 is accelerometer, 16 bytes is raw heart.
func decodeSensorData(data []byte, _ *time.Location) ([]Event, error) {
	switch {
	case len(data) == codec.RawAccelSize && data[0] == codec.RawAccelMarker:
		samples, err := codec.DecodeRawAccel(data)
		if err != nil {
			return nil, err
		}
		return []Event{RawAccel{Samples: samples}}, nil
	case len(data) == codec.RawHeartSize:
		samples, err := codec.DecodeRawHeart(data)
		if err != nil {
			return nil, err
		}
		return []Event{RawHeart{Samples: samples}}, nil
	default:
		return nil, protocol.Malformed("sensor data", codec.RawHeartSize, len(data))
	}
}

func decodeFetchControl(data []byte, loc *time.Location) ([]Event, error) {
	ctrl, err := codec.DecodeFetchControl(data, loc)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return []Event{FetchControl{FetchControl: ctrl, Raw: raw}}, nil
}

func decodeActivity(data []byte, _ *time.Location) ([]Event, error) {
	seq, records, err := codec.DecodeActivityPacket(data)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(records))
	for i, r := range records {
		events = append(events, ActivityRecord{Seq: seq, Index: i, Record: r})
	}
	return events, nil
}

func decodeDeviceEvent(data []byte, _ *time.Location) ([]Event, error) {
	ev, err := codec.DecodeDeviceEvent(data)
	if err != nil {
		return nil, err
	}
	switch ev.Kind {
	case codec.DeviceEventMusic:
		return []Event{Music{Command: ev.Music}}, nil
	case codec.DeviceEventLostDevice:
		return []Event{LostDevice{Command: ev.LostDevice}}, nil
	default:
		return nil, nil
	}
}

func decodeFirmwareControl(data []byte, _ *time.Location) ([]Event, error) {
	resp, err := codec.DecodeFirmwareResponse(data)
	if err != nil {
		return nil, err
	}
	return []Event{FirmwareControl{FirmwareResponse: resp}}, nil
}
