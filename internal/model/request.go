package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Priority of a flexible request. Only the three levels are meaningful;
// decoded values are snapped to the nearest level.
type Priority float64

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 0.5
	PriorityHigh   Priority = 1
)

func (p Priority) String() string {
	switch p.level() {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	default:
		return "high"
	}
}

func (p Priority) level() Priority {
	switch {
	case p < 0.25:
		return PriorityLow
	case p < 0.75:
		return PriorityNormal
	default:
		return PriorityHigh
	}
}

// ParsePriority accepts a level name or a number in [0, 1].
func ParsePriority(s string) (Priority, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "low":
		return PriorityLow, nil
	case "normal", "medium", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
	if f < 0 || f > 1 {
		return PriorityNormal, fmt.Errorf("priority %v out of range [0, 1]", f)
	}
	return Priority(f).level(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Priority) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParsePriority(node.Value)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p Priority) MarshalYAML() (any, error) {
	return p.String(), nil
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar date of t lies within the range.
// The comparison is done on dates in the range's timezone.
func (r DateRange) Contains(t time.Time) bool {
	loc := r.Start.Location()
	k := dateKey(t.In(loc))
	return k >= dateKey(r.Start) && k <= dateKey(r.End.In(loc))
}

type dateRangeYAML struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// UnmarshalYAML implements yaml.Unmarshaler. Dates are read in time.Local;
// callers that need another zone re-anchor with In.
func (r *DateRange) UnmarshalYAML(node *yaml.Node) error {
	var raw dateRangeYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}
	start, err := ParseDate(raw.Start, time.Local)
	if err != nil {
		return fmt.Errorf("date_range.start: %w", err)
	}
	end := start
	if raw.End != "" {
		if end, err = ParseDate(raw.End, time.Local); err != nil {
			return fmt.Errorf("date_range.end: %w", err)
		}
	}
	if end.Before(start) {
		return fmt.Errorf("date_range: end %s before start %s", raw.End, raw.Start)
	}
	r.Start, r.End = start, end
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r DateRange) MarshalYAML() (any, error) {
	return dateRangeYAML{Start: r.Start.Format("2006-01-02"), End: r.End.Format("2006-01-02")}, nil
}

// In returns the same calendar dates anchored in loc.
func (r DateRange) In(loc *time.Location) DateRange {
	return DateRange{
		Start: time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, loc),
		End:   time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, loc),
	}
}

// FlexibleEventRequest is an activity the engine places into free time.
type FlexibleEventRequest struct {
	ID          string     `yaml:"id" json:"id"`
	Title       string     `yaml:"title" json:"title"`
	Hours       int        `yaml:"hours" json:"hours"`
	Minutes     int        `yaml:"minutes" json:"minutes"`
	Priority    Priority   `yaml:"priority" json:"priority"`
	Occurrences int        `yaml:"occurrences" json:"occurrences"`
	DateRange   *DateRange `yaml:"date_range,omitempty" json:"date_range,omitempty"`
	Divisible   bool       `yaml:"divisible,omitempty" json:"divisible,omitempty"`
	Location    string     `yaml:"location,omitempty" json:"location,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler. A request without a priority
// gets PriorityNormal.
func (r *FlexibleEventRequest) UnmarshalYAML(node *yaml.Node) error {
	type plain FlexibleEventRequest
	v := plain{Priority: PriorityNormal}
	if err := node.Decode(&v); err != nil {
		return err
	}
	*r = FlexibleEventRequest(v)
	return nil
}

// DurationSlots converts the requested duration into slots, rounding up
// and never returning less than one slot.
func (r FlexibleEventRequest) DurationSlots(slotMinutes int) int {
	if slotMinutes <= 0 {
		slotMinutes = 60
	}
	total := r.Hours*60 + r.Minutes
	n := (total + slotMinutes - 1) / slotMinutes
	if n < 1 {
		n = 1
	}
	return n
}

// OccurrenceCount returns the requested occurrences, at least one.
func (r FlexibleEventRequest) OccurrenceCount() int {
	if r.Occurrences < 1 {
		return 1
	}
	return r.Occurrences
}
