package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "weekplan/internal/log"
)

// ParsedEvent is a VEVENT as read from a feed. ToRecords turns a batch of
// them into fixed-event records for normalization.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
	// Recurrence is the RECURRENCE-ID of an override.
	Recurrence *time.Time
	IsOverride bool
	Cancelled  bool
}

// ParseICS reads every VEVENT of body. RRULE, EXDATE and RECURRENCE-ID are
// recorded but not expanded. Events without a UID or DTSTART are logged
// and skipped.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics %s: %w", src.ID, err)
	}

	vevents := cal.Events()
	events := make([]ParsedEvent, 0, len(vevents))
	for _, ve := range vevents {
		ev, err := parseVEvent(src, ve)
		if err != nil {
			appLog.Error("ics: skipping vevent", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}
	appLog.Debug("ics parsed", "id", src.ID, "events", len(events), "skipped", len(vevents)-len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	ev := ParsedEvent{
		Source:      src,
		UID:         value(ve, ical.ComponentPropertyUniqueId),
		Summary:     value(ve, ical.ComponentPropertySummary),
		Description: value(ve, ical.ComponentPropertyDescription),
		Location:    value(ve, ical.ComponentPropertyLocation),
		RawRRule:    value(ve, ical.ComponentPropertyRrule),
		Cancelled:   strings.EqualFold(value(ve, ical.ComponentPropertyStatus), "CANCELLED"),
	}
	if ev.UID == "" {
		return ev, errors.New("missing UID")
	}
	if n, err := strconv.Atoi(value(ve, ical.ComponentPropertySequence)); err == nil {
		ev.Seq = n
	}

	// The library resolves TZID and VTIMEZONE.
	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("uid %s: DTSTART: %w", ev.UID, err)
	}
	ev.Start = start
	ev.End = start
	if end, err := ve.GetEndAt(); err == nil {
		ev.End = end
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		ev.AllDay = isDateValue(p)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			t, err := propertyTime(p, part)
			if err != nil {
				appLog.Debug("ics: ignoring EXDATE", "uid", ev.UID, "value", part)
				continue
			}
			ev.ExDates = append(ev.ExDates, t)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		t, err := propertyTime(p, p.Value)
		if err != nil {
			return ev, fmt.Errorf("uid %s: RECURRENCE-ID: %w", ev.UID, err)
		}
		ev.Recurrence = &t
		ev.IsOverride = true
	}
	return ev, nil
}

func value(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

func param(p *ical.IANAProperty, name string) string {
	if vs := p.ICalParameters[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// isDateValue reports a DATE (all-day) value: VALUE=DATE or no time part.
func isDateValue(p *ical.IANAProperty) bool {
	return strings.EqualFold(param(p, "VALUE"), "DATE") || !strings.Contains(p.Value, "T")
}

// propertyTime parses one DATE or DATE-TIME value of p, honoring its TZID.
// Floating and date-only values are local to the host zone, as the library
// does for DTSTART.
func propertyTime(p *ical.IANAProperty, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	loc := time.Local
	if tzid := param(p, "TZID"); tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
