package model

import (
	"fmt"
	"strings"
	"time"
)

// DaysPerWeek is the number of day columns in a schedule.
const DaysPerWeek = 7

// Week identifies the displayed week. Start is local midnight of day 0 in
// the display timezone; day indexes 0..6 are relative to it.
type Week struct {
	Start time.Time
}

// NewWeek returns the week containing t that begins on firstDay.
func NewWeek(t time.Time, firstDay time.Weekday) Week {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	back := (int(midnight.Weekday()) - int(firstDay) + DaysPerWeek) % DaysPerWeek
	return Week{Start: midnight.AddDate(0, 0, -back)}
}

// Location returns the display timezone of the week.
func (w Week) Location() *time.Location {
	if w.Start.Location() == nil {
		return time.Local
	}
	return w.Start.Location()
}

// Date returns local midnight of the given day index.
func (w Week) Date(day int) time.Time {
	return w.Start.AddDate(0, 0, day)
}

// End returns local midnight following the last day of the week.
func (w Week) End() time.Time {
	return w.Start.AddDate(0, 0, DaysPerWeek)
}

// Weekday returns the weekday of the given day index.
func (w Week) Weekday(day int) time.Weekday {
	return w.Date(day).Weekday()
}

// DayOf returns the day index of t within the week, or -1 if t falls
// outside of it. t is interpreted in the week's timezone.
func (w Week) DayOf(t time.Time) int {
	key := dateKey(t.In(w.Location()))
	for d := 0; d < DaysPerWeek; d++ {
		if dateKey(w.Date(d)) == key {
			return d
		}
	}
	return -1
}

// Kind is the closed set of schedule entry kinds.
type Kind uint8

const (
	KindCourse Kind = iota + 1
	KindFixedEvent
	KindNonFixedEvent
)

func (k Kind) String() string {
	switch k {
	case KindCourse:
		return "course"
	case KindFixedEvent:
		return "fixed"
	case KindNonFixedEvent:
		return "nonfixed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Movable reports whether the placement engine chooses entries of this kind.
func (k Kind) Movable() bool {
	switch k {
	case KindNonFixedEvent:
		return true
	case KindCourse, KindFixedEvent:
		return false
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindCourse, KindFixedEvent, KindNonFixedEvent:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("model: invalid kind %d", uint8(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "course", "school":
		*k = KindCourse
	case "fixed", "fixedevent", "fixed_event":
		*k = KindFixedEvent
	case "nonfixed", "nonfixedevent", "non_fixed_event", "ai":
		*k = KindNonFixedEvent
	default:
		return fmt.Errorf("model: unknown kind %q", string(b))
	}
	return nil
}

// Commitment is an immovable occupied range derived from a course or a
// fixed event.
type Commitment struct {
	Day           int
	StartSlot     int
	DurationSlots int
	Kind          Kind
	SourceID      string
	Title         string
}

// EndSlot returns the exclusive end slot.
func (c Commitment) EndSlot() int {
	return c.StartSlot + c.DurationSlots
}

// PlacedEvent is a single entry of a schedule.
type PlacedEvent struct {
	RequestID     string `json:"request_id" yaml:"request_id"`
	Title         string `json:"title" yaml:"title"`
	Day           int    `json:"day" yaml:"day"`
	StartSlot     int    `json:"start_slot" yaml:"start_slot"`
	DurationSlots int    `json:"duration_slots" yaml:"duration_slots"`
	Kind          Kind   `json:"kind" yaml:"kind"`
}

// EndSlot returns the exclusive end slot.
func (e PlacedEvent) EndSlot() int {
	return e.StartSlot + e.DurationSlots
}

// Overlaps reports whether two events share at least one slot on the same day.
func (e PlacedEvent) Overlaps(o PlacedEvent) bool {
	return e.Day == o.Day && e.StartSlot < o.EndSlot() && o.StartSlot < e.EndSlot()
}

// FromCommitment converts a commitment into its schedule entry.
func FromCommitment(c Commitment) PlacedEvent {
	return PlacedEvent{
		RequestID:     c.SourceID,
		Title:         c.Title,
		Day:           c.Day,
		StartSlot:     c.StartSlot,
		DurationSlots: c.DurationSlots,
		Kind:          c.Kind,
	}
}

// Schedule is one candidate weekly layout.
type Schedule struct {
	Index       int
	Events      []PlacedEvent
	Unsatisfied []*UnsatisfiableRequestError
}

// OfKind returns the events of the given kind in schedule order.
func (s Schedule) OfKind(k Kind) []PlacedEvent {
	out := make([]PlacedEvent, 0)
	for _, ev := range s.Events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// SameFlexiblePlacements reports whether both schedules place every
// non-fixed event identically.
func (s Schedule) SameFlexiblePlacements(o Schedule) bool {
	a := s.OfKind(KindNonFixedEvent)
	b := o.OfKind(KindNonFixedEvent)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Summary returns the user-facing diagnostic for unsatisfied placements,
// or an empty string when everything was placed.
func (s Schedule) Summary() string {
	switch n := len(s.Unsatisfied); n {
	case 0:
		return ""
	case 1:
		return "1 event could not be scheduled"
	default:
		return fmt.Sprintf("%d events could not be scheduled", n)
	}
}

// CandidateSet is the ordered set of alternative schedules for one week.
type CandidateSet struct {
	Week        Week
	SlotMinutes int
	Schedules   []Schedule
	Malformed   []*MalformedRecordError
	Unavailable []*SourceError
}

func dateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
