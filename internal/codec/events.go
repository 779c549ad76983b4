package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/srg/bandlink/internal/protocol"
)

// AlertKind selects the alert shown on the band
type AlertKind uint8

const (
	// Immediate alerts carry no payload
	AlertOff AlertKind = iota
	AlertMessage
	AlertPhone
	AlertVibrate

	// Custom alerts carry a title/body payload
	AlertEmail
	AlertCall
	AlertMissedCall
	AlertSMS
)

// Immediate reports whether the alert goes to the immediate-alert channel
func (k AlertKind) Immediate() bool {
	return k <= AlertVibrate
}

func (k AlertKind) String() string {
	switch k {
	case AlertOff:
		return "off"
	case AlertMessage:
		return "message"
	case AlertPhone:
		return "phone"
	case AlertVibrate:
		return "vibrate"
	case AlertEmail:
		return "email"
	case AlertCall:
		return "call"
	case AlertMissedCall:
		return "missed_call"
	case AlertSMS:
		return "sms"
	default:
		return fmt.Sprintf("alert(%d)", uint8(k))
	}
}

var alertCategories = map[AlertKind]byte{
	AlertEmail:      0x01,
	AlertCall:       0x03,
	AlertMissedCall: 0x04,
	AlertSMS:        0x05,
}

// EncodeAlert builds the value for kind; immediate kinds ignore payload.
func EncodeAlert(kind AlertKind, payload []byte) ([]byte, error) {
	if kind.Immediate() {
		return []byte{byte(kind)}, nil
	}
	category, ok := alertCategories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown alert kind %d", uint8(kind))
	}
	out := make([]byte, 0, 2+len(payload))
	out = append(out, category, 0x01)
	return append(out, payload...), nil
}

var alertSeparator = []byte{0x0a, 0x0a, 0x0a}

// AlertPayload joins title and body the way the band splits them on screen
func AlertPayload(title, body string) []byte {
	out := make([]byte, 0, len(title)+len(alertSeparator)+len(body))
	out = append(out, title...)
	out = append(out, alertSeparator...)
	return append(out, body...)
}

// MusicCommand is a media key pressed on the band
type MusicCommand uint8

const (
	MusicPlay       MusicCommand = 0x00
	MusicPause      MusicCommand = 0x01
	MusicNext       MusicCommand = 0x03
	MusicPrevious   MusicCommand = 0x04
	MusicVolumeUp   MusicCommand = 0x05
	MusicVolumeDown MusicCommand = 0x06
	MusicOpened     MusicCommand = 0xe0
	MusicClosed     MusicCommand = 0xe1
)

func (c MusicCommand) String() string {
	switch c {
	case MusicPlay:
		return "play"
	case MusicPause:
		return "pause"
	case MusicNext:
		return "next"
	case MusicPrevious:
		return "previous"
	case MusicVolumeUp:
		return "volume_up"
	case MusicVolumeDown:
		return "volume_down"
	case MusicOpened:
		return "opened"
	case MusicClosed:
		return "closed"
	default:
		return fmt.Sprintf("music(0x%02x)", uint8(c))
	}
}

// LostDeviceCommand is the band's find-my-phone request
type LostDeviceCommand uint8

const (
	LostDeviceStart LostDeviceCommand = 0x08
	LostDeviceStop  LostDeviceCommand = 0x0f
)

func (c LostDeviceCommand) String() string {
	switch c {
	case LostDeviceStart:
		return "start"
	case LostDeviceStop:
		return "stop"
	default:
		return fmt.Sprintf("lost_device(0x%02x)", uint8(c))
	}
}

const deviceEventMusic byte = 0xfe

// DeviceEventKind classifies a device-event notification
type DeviceEventKind int

const (
	DeviceEventOther DeviceEventKind = iota
	DeviceEventMusic
	DeviceEventLostDevice
)

// DeviceEvent is a decoded device-event notification
type DeviceEvent struct {
	Kind       DeviceEventKind
	Music      MusicCommand
	LostDevice LostDeviceCommand
	Code       byte
}

// DecodeDeviceEvent parses 0xFE <music cmd>, 0x08 and 0x0F; other codes come back as DeviceEventOther.
func DecodeDeviceEvent(b []byte) (DeviceEvent, error) {
	if len(b) < 1 {
		return DeviceEvent{}, protocol.Malformed("device event", 1, len(b))
	}
	code := b[0]
	switch code {
	case deviceEventMusic:
		if len(b) < 2 {
			return DeviceEvent{}, protocol.Malformed("music event", 2, len(b))
		}
		return DeviceEvent{Kind: DeviceEventMusic, Music: MusicCommand(b[1]), Code: code}, nil
	case byte(LostDeviceStart), byte(LostDeviceStop):
		return DeviceEvent{Kind: DeviceEventLostDevice, LostDevice: LostDeviceCommand(code), Code: code}, nil
	default:
		return DeviceEvent{Kind: DeviceEventOther, Code: code}, nil
	}
}

// MusicState is the player state shown on the band
type MusicState uint8

const (
	MusicPaused  MusicState = 0x00
	MusicPlaying MusicState = 0x01
)

// MusicInfo is what the band's music screen displays
type MusicInfo struct {
	State    MusicState
	Track    string
	Position uint32 // seconds
	Volume   uint16 // percent
}

const (
	musicFlagState byte = 0x01
	musicFlagTrack byte = 0x0e
	musicInfoSize       = 8
)

// EncodeMusicInfo builds flag, state, LE32 position, LE16 volume and an optional NUL-terminated track.
func EncodeMusicInfo(info MusicInfo) []byte {
	flags := musicFlagState
	if info.Track != "" {
		flags |= musicFlagTrack
	}
	out := make([]byte, 0, musicInfoSize+len(info.Track)+1)
	out = append(out, flags, byte(info.State))
	out = binary.LittleEndian.AppendUint32(out, info.Position)
	out = binary.LittleEndian.AppendUint16(out, info.Volume)
	if info.Track != "" {
		out = append(out, info.Track...)
		out = append(out, 0x00)
	}
	return out
}

// DecodeMusicInfo is the inverse of EncodeMusicInfo
func DecodeMusicInfo(b []byte) (MusicInfo, error) {
	if len(b) < musicInfoSize {
		return MusicInfo{}, protocol.Malformed("music info", musicInfoSize, len(b))
	}
	info := MusicInfo{
		State:    MusicState(b[1]),
		Position: binary.LittleEndian.Uint32(b[2:6]),
		Volume:   binary.LittleEndian.Uint16(b[6:8]),
	}
	if b[0]&musicFlagTrack != 0 {
		track := b[musicInfoSize:]
		if i := bytes.IndexByte(track, 0x00); i >= 0 {
			track = track[:i]
		}
		info.Track = string(track)
	}
	return info, nil
}
