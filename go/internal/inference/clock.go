package inference

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock reads the compact clock formats typed into the edit box:
// "0630", "630" and "06:30".
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	var hs, ms string
	if before, after, ok := strings.Cut(s, ":"); ok {
		hs, ms = before, after
	} else {
		switch len(s) {
		case 3:
			hs, ms = s[:1], s[1:]
		case 4:
			hs, ms = s[:2], s[2:]
		default:
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
	}

	hour, herr := strconv.Atoi(hs)
	minute, merr := strconv.Atoi(ms)
	if herr != nil || merr != nil || len(ms) != 2 || !ValidClock(hour, minute) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return hour, minute, nil
}

// ClockOf returns the wall-clock hour and minute of a millisecond timestamp in loc.
func ClockOf(ms int64, loc *time.Location) (hour, minute int) {
	t := time.UnixMilli(ms).In(loc)
	return t.Hour(), t.Minute()
}

// FormatClock renders a timestamp as "HHMM", the format used in shared lists.
func FormatClock(ms int64, loc *time.Location) string {
	h, m := ClockOf(ms, loc)
	return fmt.Sprintf("%02d%02d", h, m)
}
