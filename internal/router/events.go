package router

import (
	"fmt"

	"github.com/srg/bandlink/internal/codec"
)

// Category is the queue an Event lands in
type Category int

const (
	CategoryUnknown Category = iota
	CategoryHeartRate
	CategoryRawHeart
	CategoryRawAccel
	CategoryFetchControl
	CategoryActivity
	CategoryMusic
	CategoryLostDevice
	CategoryFirmwareControl
)

var categoryNames = map[Category]string{
	CategoryUnknown:         "unknown",
	CategoryHeartRate:       "heart_rate",
	CategoryRawHeart:        "raw_heart",
	CategoryRawAccel:        "raw_accel",
	CategoryFetchControl:    "fetch_control",
	CategoryActivity:        "activity",
	CategoryMusic:           "music",
	CategoryLostDevice:      "lost_device",
	CategoryFirmwareControl: "firmware_control",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Categories lists every queued category in registration order
func Categories() []Category {
	return []Category{
		CategoryHeartRate,
		CategoryRawHeart,
		CategoryRawAccel,
		CategoryFetchControl,
		CategoryActivity,
		CategoryMusic,
		CategoryLostDevice,
		CategoryFirmwareControl,
	}
}

// Event is one classified notification
type Event interface {
	Category() Category
}

// HeartRate is a heart-rate measurement sample
type HeartRate struct {
	BPM uint8
}

// RawHeart is one raw PPG packet
type RawHeart struct {
	Samples [7]uint16
}

// RawAccel is one raw accelerometer packet
type RawAccel struct {
	Samples [3]codec.AccelSample
}

// FetchControl is a fetch-control notification. Raw keeps the wire bytes so
// consumers can detect duplicated frames.
type FetchControl struct {
	codec.FetchControl
	Raw []byte
}

// ActivityRecord is one record of an activity-data packet
type ActivityRecord struct {
	Seq    uint8
	Index  int
	Record codec.ActivityRecord
}

// Music is a media key pressed on the band
type Music struct {
	Command codec.MusicCommand
}

// LostDevice is a find-my-phone request from the band
type LostDevice struct {
	Command codec.LostDeviceCommand
}

// FirmwareControl is a response on the firmware control channel
type FirmwareControl struct {
	codec.FirmwareResponse
}

func (HeartRate) Category() Category       { return CategoryHeartRate }
func (RawHeart) Category() Category        { return CategoryRawHeart }
func (RawAccel) Category() Category        { return CategoryRawAccel }
func (FetchControl) Category() Category    { return CategoryFetchControl }
func (ActivityRecord) Category() Category  { return CategoryActivity }
func (Music) Category() Category           { return CategoryMusic }
func (LostDevice) Category() Category      { return CategoryLostDevice }
func (FirmwareControl) Category() Category { return CategoryFirmwareControl }
