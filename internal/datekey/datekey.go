// Package datekey converts between date-time values and the canonical
// YYYY-MM-DD calendar keys used to bucket occurrences by day.
//
// The reference frame is UTC everywhere: a time.Time handled by the core is a
// civil wall-clock value carried in time.UTC. Keys never carry a zone, so the
// same key always names the same day regardless of the host timezone.
package datekey

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Layout is the canonical calendar key layout.
	Layout = "2006-01-02"

	MinutesPerDay = 24 * 60
)

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidTime = errors.New("invalid time")
)

var (
	clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)
	loosePattern = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
)

// ToCalendarKey returns the calendar day of t in the UTC frame.
func ToCalendarKey(t time.Time) string {
	return t.UTC().Format(Layout)
}

// FromCalendarKey parses a canonical key into midnight of that day (UTC).
func FromCalendarKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, key)
	}
	return t, nil
}

// Civil reinterprets the wall clock of t (in whatever zone it carries) as a
// value in the UTC frame. Use it at the boundary when a caller hands over a
// local time.Time, e.g. a calendar grid click.
func Civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// NormalizeKey accepts YYYY-MM-DD, YYYY-M-D or an RFC3339 timestamp and
// returns the canonical key. Normalizing a canonical key returns it unchanged.
func NormalizeKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if t, err := FromCalendarKey(s); err == nil {
		return ToCalendarKey(t), nil
	}
	if m := loosePattern.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		// Reject roll-over such as 2025-2-30.
		if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
			return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		return ToCalendarKey(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		// The day as written, not shifted into another offset.
		return ToCalendarKey(Civil(t)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Combine joins a calendar key and an HH:MM clock into one UTC-frame value.
func Combine(key, clock string) (time.Time, error) {
	day, err := FromCalendarKey(key)
	if err != nil {
		return time.Time{}, err
	}
	mins, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(mins) * time.Minute), nil
}

// AddDays shifts a key by n days.
func AddDays(key string, n int) (string, error) {
	t, err := FromCalendarKey(key)
	if err != nil {
		return "", err
	}
	return ToCalendarKey(t.AddDate(0, 0, n)), nil
}

// Weekday returns the weekday of a key (Sunday=0).
func Weekday(key string) (time.Weekday, error) {
	t, err := FromCalendarKey(key)
	if err != nil {
		return 0, err
	}
	return t.Weekday(), nil
}

// ParseClock converts an H:MM or HH:MM 24-hour clock to minutes since midnight.
func ParseClock(s string) (int, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return h*60 + mm, nil
}

// FormatClock renders minutes since midnight as HH:MM, wrapping past 24h.
func FormatClock(mins int) string {
	mins = ((mins % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

// NormalizeClock pads a clock to HH:MM ("9:05" -> "09:05").
func NormalizeClock(s string) (string, error) {
	mins, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FormatClock(mins), nil
}

// Format12Hour renders "13:05" as "1:05 PM".
func Format12Hour(clock string) (string, error) {
	mins, err := ParseClock(clock)
	if err != nil {
		return "", err
	}
	h, m := mins/60, mins%60
	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, m, period), nil
}
