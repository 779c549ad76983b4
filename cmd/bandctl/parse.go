package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/srg/bandlink/internal/codec"
)

var alertKinds = map[string]codec.AlertKind{
	"off":         codec.AlertOff,
	"message":     codec.AlertMessage,
	"phone":       codec.AlertPhone,
	"vibrate":     codec.AlertVibrate,
	"email":       codec.AlertEmail,
	"call":        codec.AlertCall,
	"missed-call": codec.AlertMissedCall,
	"sms":         codec.AlertSMS,
}

func parseAlertKind(s string) (codec.AlertKind, error) {
	kind, ok := alertKinds[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown alert kind %q (want off, message, phone, vibrate, email, call, missed-call or sms)", s)
	}
	return kind, nil
}

// parseClock parses HH:MM
func parseClock(s string) (hour, minute uint8, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return uint8(t.Hour()), uint8(t.Minute()), nil
}

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday, "thu": time.Thursday,
	"fri": time.Friday, "sat": time.Saturday, "sun": time.Sunday,
}

// parseWeekdays accepts "once", "daily", "weekdays", "weekend" or a list like "mon,wed,fri"
func parseWeekdays(s string) (codec.Weekdays, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "once":
		return 0, nil
	case "daily":
		return codec.WeekdaysOf(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday), nil
	case "weekdays":
		return codec.WeekdaysOf(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday), nil
	case "weekend":
		return codec.WeekdaysOf(time.Saturday, time.Sunday), nil
	}

	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if len(name) > 3 {
			name = name[:3]
		}
		d, ok := weekdayNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", part)
		}
		days = append(days, d)
	}
	return codec.WeekdaysOf(days...), nil
}

// parseWhen accepts RFC 3339, "2006-01-02 15:04", "2006-01-02", a duration
// before now such as "2h", or "now".
func parseWhen(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "now" {
		return now, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return now.AddDate(0, 0, -n), nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (want RFC 3339, YYYY-MM-DD[ HH:MM], a duration like 2h or 3d, or now)", s)
}
