package codec

import (
	"fmt"
	"strings"
	"time"

	"github.com/srg/bandlink/internal/protocol"
)

const (
	AlarmSize = 5

	alarmCommand     byte = 0x02
	alarmEnabledBit  byte = 0x80
	alarmNoSnoozeBit byte = 0x40
	alarmIDMask      byte = 0x3f
	weekdayMask      byte = 0x7f
)

// MaxAlarmID is the highest alarm slot the band accepts
const MaxAlarmID = int(alarmIDMask)

// Weekdays is a repeat bitmask: bit 0 is Monday, bit 6 is Sunday
type Weekdays uint8

const (
	Monday Weekdays = 1 << iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday

	Once     Weekdays = 0
	Workdays          = Monday | Tuesday | Wednesday | Thursday | Friday
	Weekend           = Saturday | Sunday
	Everyday          = Workdays | Weekend
)

// WeekdaysOf builds a mask from time.Weekday values
func WeekdaysOf(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= weekdayBit(d)
	}
	return w
}

// Has reports whether d is set in the mask
func (w Weekdays) Has(d time.Weekday) bool {
	return w&weekdayBit(d) != 0
}

func (w Weekdays) String() string {
	if w == Once {
		return "once"
	}
	names := []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}
	var parts []string
	for i, n := range names {
		if w&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, ",")
}

func weekdayBit(d time.Weekday) Weekdays {
	// Monday is bit 0, Sunday bit 6
	return Weekdays(1) << ((int(d) + 6) % 7)
}

// Alarm describes one of the band's alarm slots
type Alarm struct {
	ID             uint8
	Enabled        bool
	SnoozeDisabled bool
	Hour           uint8
	Minute         uint8
	Repeat         Weekdays
}

// Validate checks the ranges the 5-byte layout can carry
func (a Alarm) Validate() error {
	switch {
	case int(a.ID) > MaxAlarmID:
		return fmt.Errorf("alarm id %d out of range 0..%d", a.ID, MaxAlarmID)
	case a.Hour > 23:
		return fmt.Errorf("alarm hour %d out of range 0..23", a.Hour)
	case a.Minute > 59:
		return fmt.Errorf("alarm minute %d out of range 0..59", a.Minute)
	case byte(a.Repeat)&^weekdayMask != 0:
		return fmt.Errorf("alarm repeat mask 0x%02x has bits outside 0x7f", uint8(a.Repeat))
	}
	return nil
}

// EncodeAlarm builds command, tag (id | 0x80 enabled | 0x40 no-snooze), hour, minute, repeat mask.
func EncodeAlarm(a Alarm) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	tag := a.ID
	if a.Enabled {
		tag |= alarmEnabledBit
	}
	if a.SnoozeDisabled {
		tag |= alarmNoSnoozeBit
	}
	return []byte{alarmCommand, tag, a.Hour, a.Minute, byte(a.Repeat)}, nil
}

// DecodeAlarm parses an encoded alarm
func DecodeAlarm(b []byte) (Alarm, error) {
	if len(b) < AlarmSize {
		return Alarm{}, protocol.Malformed("alarm", AlarmSize, len(b))
	}
	if b[0] != alarmCommand {
		return Alarm{}, &protocol.Error{
			Kind: protocol.MalformedPacket,
			Op:   "decode alarm",
			Msg:  fmt.Sprintf("unexpected command 0x%02x", b[0]),
		}
	}
	tag := b[1]
	return Alarm{
		ID:             tag & alarmIDMask,
		Enabled:        tag&alarmEnabledBit != 0,
		SnoozeDisabled: tag&alarmNoSnoozeBit != 0,
		Hour:           b[2],
		Minute:         b[3],
		Repeat:         Weekdays(b[4]),
	}, nil
}
