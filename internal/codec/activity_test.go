package codec

import (
	"testing"
	"time"

	"github.com/srg/bandlink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityRecordRoundTrip(t *testing.T) {
	records := []ActivityRecord{
		{},
		{Category: 1, Intensity: 20, Steps: 55, HeartRate: 72},
		{Category: 0xff, Intensity: 0xff, Steps: MaxRecordSteps, HeartRate: 0xff},
	}
	for _, r := range records {
		wire := EncodeActivityRecord(r)
		decoded, err := DecodeActivityRecord(wire[:])
		require.NoError(t, err)
		assert.Equal(t, r, decoded)
	}
}

func TestActivityRecordStepsSaturate(t *testing.T) {
	wire := EncodeActivityRecord(ActivityRecord{Steps: 300})
	assert.Equal(t, byte(0xff), wire[2], "steps above 255 MUST saturate, not wrap to 44")

	decoded, err := DecodeActivityRecord(wire[:])
	require.NoError(t, err)
	assert.Equal(t, uint16(MaxRecordSteps), decoded.Steps)
}

func TestDecodeActivityPacket(t *testing.T) {
	t.Run("sequence and records", func(t *testing.T) {
		seq, records, err := DecodeActivityPacket([]byte{7, 1, 2, 3, 4, 5, 6, 7, 8})
		require.NoError(t, err)
		assert.Equal(t, uint8(7), seq)
		assert.Equal(t, []ActivityRecord{
			{Category: 1, Intensity: 2, Steps: 3, HeartRate: 4},
			{Category: 5, Intensity: 6, Steps: 7, HeartRate: 8},
		}, records)
	})

	t.Run("sequence only", func(t *testing.T) {
		_, records, err := DecodeActivityPacket([]byte{1})
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("partial record", func(t *testing.T) {
		_, _, err := DecodeActivityPacket([]byte{1, 2, 3})
		assert.ErrorIs(t, err, protocol.ErrMalformedPacket)
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := DecodeActivityPacket(nil)
		assert.ErrorIs(t, err, protocol.ErrMalformedPacket)
	})

	t.Run("short record", func(t *testing.T) {
		_, err := DecodeActivityRecord([]byte{1, 2, 3})
		assert.ErrorIs(t, err, protocol.ErrMalformedPacket)
	})
}

func TestEncodeFetchTrigger(t *testing.T) {
	start := time.Date(2024, time.May, 1, 8, 30, 0, 0, time.UTC)
	got := EncodeFetchTrigger(start, 8)
	assert.Equal(t, []byte{0x01, 0x01, 0xe8, 0x07, 5, 1, 8, 30, 0, 8}, got)
}

func TestDecodeFetchControl(t *testing.T) {
	started := []byte{0x10, 0x01, 0x01, 0x3c, 0x00, 0x00, 0x00, 0xe8, 0x07, 5, 1, 8, 31, 12}

	tests := []struct {
		name string
		in   []byte
		want FetchControl
	}{
		{"started with seconds", started, FetchControl{
			Kind:            FetchStarted,
			ExpectedRecords: 60,
			Start:           time.Date(2024, time.May, 1, 8, 31, 0, 0, time.UTC),
		}},
		{"started without seconds", started[:13], FetchControl{
			Kind:            FetchStarted,
			ExpectedRecords: 60,
			Start:           time.Date(2024, time.May, 1, 8, 31, 0, 0, time.UTC),
		}},
		{"no data", []byte{0x10, 0x01, 0x04}, FetchControl{Kind: FetchNoData}},
		{"more data", []byte{0x10, 0x02, 0x01}, FetchControl{Kind: FetchMoreData}},
		{"no more data", []byte{0x10, 0x02, 0x04}, FetchControl{Kind: FetchNoMoreData}},
		{"foreign prefix", []byte{0x20, 0x02, 0x01}, FetchControl{Kind: FetchUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFetchControl(tt.in, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Kind, got.Kind)
			assert.Equal(t, tt.want.ExpectedRecords, got.ExpectedRecords)
			assert.True(t, tt.want.Start.Equal(got.Start), "start %v != %v", tt.want.Start, got.Start)
		})
	}

	_, err := DecodeFetchControl(started[:12], time.UTC)
	assert.ErrorIs(t, err, protocol.ErrMalformedPacket)
	_, err = DecodeFetchControl([]byte{0x10, 0x02}, time.UTC)
	assert.ErrorIs(t, err, protocol.ErrMalformedPacket)
}

func TestFetchControlEncodeDecode(t *testing.T) {
	start := time.Date(2024, time.June, 9, 23, 59, 0, 0, time.UTC)
	for _, c := range []FetchControl{
		{Kind: FetchStarted, ExpectedRecords: 1440, Start: start},
		{Kind: FetchNoData},
		{Kind: FetchMoreData},
		{Kind: FetchNoMoreData},
	} {
		got, err := DecodeFetchControl(EncodeFetchControl(c), time.UTC)
		require.NoError(t, err)
		assert.Equal(t, c.Kind, got.Kind)
		assert.Equal(t, c.ExpectedRecords, got.ExpectedRecords)
		assert.True(t, c.Start.Equal(got.Start))
	}

	seq, records, err := DecodeActivityPacket(EncodeActivityPacket(3, []ActivityRecord{{Steps: 9}}))
	require.NoError(t, err)
	assert.Equal(t, uint8(3), seq)
	assert.Equal(t, []ActivityRecord{{Steps: 9}}, records)
}
