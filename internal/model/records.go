package model

import (
	"fmt"
	"strings"
	"time"
)

// CourseRecord is a school course as entered by the user or imported from
// a school schedule. Either StartTime/EndTime or the legacy Hours triple
// is set.
type CourseRecord struct {
	ID       string     `yaml:"id" json:"id"`
	Code     string     `yaml:"code" json:"code"`
	Day      string     `yaml:"day" json:"day"`
	Location string     `yaml:"location,omitempty" json:"location,omitempty"`
	Hours    [][]string `yaml:"hours,omitempty" json:"hours,omitempty"`

	StartTime string `yaml:"start_time,omitempty" json:"start_time,omitempty"`
	EndTime   string `yaml:"end_time,omitempty" json:"end_time,omitempty"`

	// Optional semester bounds; outside them the course does not occur.
	SemesterStart string `yaml:"semester_start,omitempty" json:"semester_start,omitempty"`
	SemesterEnd   string `yaml:"semester_end,omitempty" json:"semester_end,omitempty"`
}

// Recurrence is the repeat rule of a fixed event.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// ParseRecurrence accepts the canonical values case-insensitively; an empty
// string means no recurrence.
func ParseRecurrence(s string) (Recurrence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "never", "does not repeat":
		return RecurrenceNone, nil
	case "daily", "everyday":
		return RecurrenceDaily, nil
	case "weekly":
		return RecurrenceWeekly, nil
	case "monthly":
		return RecurrenceMonthly, nil
	default:
		return RecurrenceNone, fmt.Errorf("unknown recurrence %q", s)
	}
}

// FixedEventRecord is an appointment with a fixed time. Records entered by
// hand use the date/time strings; records imported from an ICS feed carry
// absolute Start/End plus the raw RRULE and EXDATE values instead.
type FixedEventRecord struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Location    string `yaml:"location,omitempty" json:"location,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	AllDay      bool   `yaml:"all_day,omitempty" json:"all_day,omitempty"`

	StartDate  string `yaml:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate    string `yaml:"end_date,omitempty" json:"end_date,omitempty"`
	StartTime  string `yaml:"start_time,omitempty" json:"start_time,omitempty"`
	EndTime    string `yaml:"end_time,omitempty" json:"end_time,omitempty"`
	Recurrence string `yaml:"recurrence,omitempty" json:"recurrence,omitempty"`

	Start   time.Time   `yaml:"-" json:"-"`
	End     time.Time   `yaml:"-" json:"-"`
	RRule   string      `yaml:"-" json:"-"`
	ExDates []time.Time `yaml:"-" json:"-"`
}

// Absolute reports whether the record carries absolute times (ICS import).
func (r FixedEventRecord) Absolute() bool {
	return !r.Start.IsZero()
}

// Records bundles the raw commitment inputs of one generation run.
type Records struct {
	Courses     []CourseRecord     `yaml:"courses" json:"courses"`
	FixedEvents []FixedEventRecord `yaml:"fixed_events" json:"fixed_events"`

	// Unavailable lists sources skipped by a lenient collaborator.
	Unavailable []*SourceError `yaml:"-" json:"-"`
}
