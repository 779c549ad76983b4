package codec

import (
	"testing"
	"time"

	"github.com/srg/bandlink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTimestamp(t *testing.T) {
	ts := time.Date(2024, time.March, 17, 9, 45, 30, 0, time.UTC) // a Sunday

	tests := []struct {
		name   string
		layout TimestampLayout
		want   []byte
	}{
		{"minute layout", TimestampMinute, []byte{0xe8, 0x07, 3, 17, 9, 45}},
		{"second layout", TimestampSecond, []byte{0xe8, 0x07, 3, 17, 9, 45, 30}},
		{"full layout", TimestampFull, []byte{0xe8, 0x07, 3, 17, 9, 45, 30, 7, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeTimestamp(ts, tt.layout)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, int(tt.layout))
		})
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	tests := []struct {
		name   string
		layout TimestampLayout
		value  time.Time
	}{
		{"minute", TimestampMinute, time.Date(2023, time.December, 31, 23, 59, 0, 0, loc)},
		{"second", TimestampSecond, time.Date(2020, time.February, 29, 0, 0, 59, 0, loc)},
		{"full with fractions", TimestampFull, time.Date(2025, time.July, 4, 12, 30, 15, 128*int(nanosPerFraction), loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := DecodeTimestamp(EncodeTimestamp(tt.value, tt.layout), tt.layout, loc)
			require.NoError(t, err)
			assert.True(t, tt.value.Equal(decoded), "expected %v, got %v", tt.value, decoded)
		})
	}
}

func TestDecodeTimestampShortInput(t *testing.T) {
	for _, layout := range []TimestampLayout{TimestampMinute, TimestampSecond, TimestampFull} {
		buf := make([]byte, int(layout)-1)
		_, err := DecodeTimestamp(buf, layout, nil)
		assert.ErrorIs(t, err, protocol.ErrMalformedPacket, "layout %d", layout)
	}
}

func TestDecodeDeviceTime(t *testing.T) {
	full := []byte{0xe8, 0x07, 1, 2, 3, 4, 5, 2, 64}
	got, err := DecodeDeviceTime(full, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 2, 3, 4, 5, 250*int(time.Millisecond), time.UTC), got)

	got, err = DecodeDeviceTime(full[:7], time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC), got)

	_, err = DecodeDeviceTime(full[:6], time.UTC)
	assert.ErrorIs(t, err, protocol.ErrMalformedPacket)
}

func TestEncodeCurrentTime(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*3600)
	ts := time.Date(2024, time.March, 18, 6, 0, 0, 0, loc) // Monday
	got := EncodeCurrentTime(ts, UTCOffsetQuarters(ts))

	assert.Equal(t, []byte{0xe8, 0x07, 3, 18, 6, 0, 0, 1, 0, 0x00, 0xf4}, got)
}
