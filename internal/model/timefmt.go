package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the length of a grid day.
const MinutesPerDay = 24 * 60

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04:05 PM",
	"3:04PM",
	"3:04:05PM",
	"3 PM",
	"3PM",
}

// ParseClock parses a time of day and returns minutes since midnight.
// "24:00" is accepted as the end of the day.
func ParseClock(s string) (int, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return 0, errors.New("empty time of day")
	}
	if v == "24:00" || v == "24:00:00" {
		return MinutesPerDay, nil
	}
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized time of day %q", s)
}

// FormatClock formats minutes since midnight on a 12-hour clock, e.g.
// "9:30 AM". 1440 is shown as "12:00 AM".
func FormatClock(minute int) string {
	h, m := (minute/60)%24, minute%60
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, m, suffix)
}

// ParseLegacyHours parses the legacy course "hours" shape, two triples of
// hour, minute and AM/PM marker, into start and end minutes.
func ParseLegacyHours(hours [][]string) (start, end int, err error) {
	if len(hours) != 2 {
		return 0, 0, fmt.Errorf("expected 2 hour triples, got %d", len(hours))
	}
	mins := make([]int, 2)
	for i, triple := range hours {
		if len(triple) != 3 {
			return 0, 0, fmt.Errorf("hour triple %d has %d fields", i, len(triple))
		}
		m, perr := parseHourTriple(triple)
		if perr != nil {
			return 0, 0, fmt.Errorf("hour triple %d: %w", i, perr)
		}
		mins[i] = m
	}
	return mins[0], mins[1], nil
}

// parseHourTriple reads hour (1-12), minute (0-59) and an AM/PM marker.
// Minutes need not be zero padded, since numeric YAML values decode as "0".
func parseHourTriple(triple []string) (int, error) {
	h, err := strconv.Atoi(strings.TrimSpace(triple[0]))
	if err != nil || h < 1 || h > 12 {
		return 0, fmt.Errorf("invalid hour %q", triple[0])
	}
	m, err := strconv.Atoi(strings.TrimSpace(triple[1]))
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute %q", triple[1])
	}
	h %= 12
	switch strings.ToUpper(strings.TrimSpace(triple[2])) {
	case "AM":
	case "PM":
		h += 12
	default:
		return 0, fmt.Errorf("invalid AM/PM marker %q", triple[2])
	}
	return h*60 + m, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/06",
	"01/02/2006",
	"1/2/2006",
	"Mon Jan 02 2006",
	"Mon Jan 2 2006",
	time.RFC3339,
}

// ParseDate parses a calendar date and returns local midnight of that date
// in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, errors.New("empty date")
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, v, loc)
		if err == nil {
			if layout == time.RFC3339 {
				t = t.In(loc)
			}
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday, "su": time.Sunday,
	"monday": time.Monday, "mon": time.Monday, "mo": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday, "tu": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "we": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "th": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "fr": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "sa": time.Saturday,
}

// ParseWeekday parses a weekday name, short name, or index (0 = Sunday).
func ParseWeekday(s string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if wd, ok := weekdayNames[v]; ok {
		return wd, nil
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < DaysPerWeek {
		return time.Weekday(n), nil
	}
	return time.Sunday, fmt.Errorf("unrecognized weekday %q", s)
}
