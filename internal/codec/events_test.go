package codec

import (
	"testing"

	"github.com/srg/bandlink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAlert(t *testing.T) {
	tests := []struct {
		name    string
		kind    AlertKind
		payload []byte
		want    []byte
	}{
		{"off", AlertOff, nil, []byte{0x00}},
		{"message", AlertMessage, nil, []byte{0x01}},
		{"phone", AlertPhone, nil, []byte{0x02}},
		{"vibrate ignores payload", AlertVibrate, []byte("x"), []byte{0x03}},
		{"email", AlertEmail, []byte("a"), []byte{0x01, 0x01, 'a'}},
		{"call", AlertCall, []byte("b"), []byte{0x03, 0x01, 'b'}},
		{"missed call", AlertMissedCall, nil, []byte{0x04, 0x01}},
		{"sms", AlertSMS, []byte("c"), []byte{0x05, 0x01, 'c'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeAlert(tt.kind, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := EncodeAlert(AlertKind(42), nil)
	assert.Error(t, err)
}

func TestAlertPayload(t *testing.T) {
	assert.Equal(t, []byte("Title\n\n\nBody"), AlertPayload("Title", "Body"))
	assert.Equal(t, []byte("\n\n\n"), AlertPayload("", ""))
}

func TestDecodeDeviceEvent(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want DeviceEvent
	}{
		{"music play", []byte{0xfe, 0x00}, DeviceEvent{Kind: DeviceEventMusic, Music: MusicPlay, Code: 0xfe}},
		{"music volume down", []byte{0xfe, 0x06}, DeviceEvent{Kind: DeviceEventMusic, Music: MusicVolumeDown, Code: 0xfe}},
		{"music opened", []byte{0xfe, 0xe0}, DeviceEvent{Kind: DeviceEventMusic, Music: MusicOpened, Code: 0xfe}},
		{"find device", []byte{0x08}, DeviceEvent{Kind: DeviceEventLostDevice, LostDevice: LostDeviceStart, Code: 0x08}},
		{"find device stop", []byte{0x0f}, DeviceEvent{Kind: DeviceEventLostDevice, LostDevice: LostDeviceStop, Code: 0x0f}},
		{"other", []byte{0x01}, DeviceEvent{Kind: DeviceEventOther, Code: 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDeviceEvent(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DecodeDeviceEvent(nil)
	assert.ErrorIs(t, err, protocol.ErrMalformedPacket)
	_, err = DecodeDeviceEvent([]byte{0xfe})
	assert.ErrorIs(t, err, protocol.ErrMalformedPacket)
}

func TestMusicInfo(t *testing.T) {
	info := MusicInfo{State: MusicPlaying, Track: "Song", Position: 75, Volume: 40}
	wire := EncodeMusicInfo(info)
	assert.Equal(t, []byte{0x0f, 0x01, 75, 0, 0, 0, 40, 0, 'S', 'o', 'n', 'g', 0x00}, wire)

	decoded, err := DecodeMusicInfo(wire)
	require.NoError(t, err)
	assert.Equal(t, info, decoded)

	bare := EncodeMusicInfo(MusicInfo{State: MusicPaused})
	assert.Equal(t, []byte{0x01, 0x00, 0, 0, 0, 0, 0, 0}, bare)

	_, err = DecodeMusicInfo(bare[:7])
	assert.ErrorIs(t, err, protocol.ErrMalformedPacket)
}
