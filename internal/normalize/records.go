package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"weekplan/internal/model"
)

func malformed(kind model.Kind, id, field, value string, err error) *model.MalformedRecordError {
	return &model.MalformedRecordError{Kind: kind, SourceID: id, Field: field, Value: value, Err: err}
}

// courseIntervals expands a weekly course into its occurrences this week.
func (n *Normalizer) courseIntervals(c model.CourseRecord) ([]interval, error) {
	loc := n.week.Location()

	wd, err := model.ParseWeekday(c.Day)
	if err != nil {
		return nil, malformed(model.KindCourse, c.ID, "day", c.Day, err)
	}

	var startMin, endMin int
	if len(c.Hours) > 0 {
		startMin, endMin, err = model.ParseLegacyHours(c.Hours)
		if err != nil {
			return nil, malformed(model.KindCourse, c.ID, "hours", fmt.Sprint(c.Hours), err)
		}
	} else {
		if startMin, err = model.ParseClock(c.StartTime); err != nil {
			return nil, malformed(model.KindCourse, c.ID, "start_time", c.StartTime, err)
		}
		if endMin, err = model.ParseClock(c.EndTime); err != nil {
			return nil, malformed(model.KindCourse, c.ID, "end_time", c.EndTime, err)
		}
	}
	if endMin <= startMin {
		return nil, malformed(model.KindCourse, c.ID, "end_time", c.EndTime, errors.New("course ends before it starts"))
	}

	// Without a semester the course recurs every week; anchor it one week
	// back so the first occurrence is always in range.
	anchor := n.week.Start.AddDate(0, 0, -model.DaysPerWeek)
	if c.SemesterStart != "" {
		if anchor, err = model.ParseDate(c.SemesterStart, loc); err != nil {
			return nil, malformed(model.KindCourse, c.ID, "semester_start", c.SemesterStart, err)
		}
	}
	opt := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekdays[wd]},
		Dtstart:   atMinute(anchor, startMin),
	}
	if c.SemesterEnd != "" {
		until, perr := model.ParseDate(c.SemesterEnd, loc)
		if perr != nil {
			return nil, malformed(model.KindCourse, c.ID, "semester_end", c.SemesterEnd, perr)
		}
		opt.Until = endOfDay(until)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, malformed(model.KindCourse, c.ID, "", "", err)
	}
	var set rrule.Set
	set.RRule(r)
	return n.occurrences(&set, time.Duration(endMin-startMin)*time.Minute), nil
}

// fixedIntervals expands a fixed event into its occurrences this week.
func (n *Normalizer) fixedIntervals(r model.FixedEventRecord) ([]interval, error) {
	if r.Absolute() {
		return n.absoluteIntervals(r)
	}
	loc := n.week.Location()

	rec, err := model.ParseRecurrence(r.Recurrence)
	if err != nil {
		return nil, malformed(model.KindFixedEvent, r.ID, "recurrence", r.Recurrence, err)
	}

	startDate, err := model.ParseDate(r.StartDate, loc)
	if err != nil {
		return nil, malformed(model.KindFixedEvent, r.ID, "start_date", r.StartDate, err)
	}
	endDate := startDate
	if r.EndDate != "" {
		if endDate, err = model.ParseDate(r.EndDate, loc); err != nil {
			return nil, malformed(model.KindFixedEvent, r.ID, "end_date", r.EndDate, err)
		}
	}
	if endDate.Before(startDate) {
		return nil, malformed(model.KindFixedEvent, r.ID, "end_date", r.EndDate, errors.New("event ends before it starts"))
	}

	startMin, endMin := 0, model.MinutesPerDay
	if !r.AllDay {
		if startMin, err = model.ParseClock(r.StartTime); err != nil {
			return nil, malformed(model.KindFixedEvent, r.ID, "start_time", r.StartTime, err)
		}
		if endMin, err = model.ParseClock(r.EndTime); err != nil {
			return nil, malformed(model.KindFixedEvent, r.ID, "end_time", r.EndTime, err)
		}
	}

	if rec == model.RecurrenceNone {
		// One continuous span from the start date/time to the end date/time.
		start := atMinute(startDate, startMin)
		end := atMinute(endDate, endMin)
		if !end.After(start) {
			return nil, malformed(model.KindFixedEvent, r.ID, "end_time", r.EndTime, errors.New("event ends before it starts"))
		}
		return []interval{{start: start, end: end}}, nil
	}

	if endMin <= startMin {
		return nil, malformed(model.KindFixedEvent, r.ID, "end_time", r.EndTime, errors.New("occurrence ends before it starts"))
	}

	opt := rrule.ROption{
		Freq:    recurrenceFreq(rec),
		Dtstart: atMinute(startDate, startMin),
	}
	if r.EndDate != "" {
		opt.Until = endOfDay(endDate)
	}
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, malformed(model.KindFixedEvent, r.ID, "recurrence", r.Recurrence, err)
	}
	var set rrule.Set
	set.RRule(rule)
	return n.occurrences(&set, time.Duration(endMin-startMin)*time.Minute), nil
}

func recurrenceFreq(rec model.Recurrence) rrule.Frequency {
	switch rec {
	case model.RecurrenceDaily:
		return rrule.DAILY
	case model.RecurrenceWeekly:
		return rrule.WEEKLY
	case model.RecurrenceMonthly:
		return rrule.MONTHLY
	default:
		return rrule.YEARLY
	}
}

// absoluteIntervals handles ICS-imported records: absolute start/end and
// an optional raw RRULE with EXDATEs.
func (n *Normalizer) absoluteIntervals(r model.FixedEventRecord) ([]interval, error) {
	start, end := r.Start, r.End
	if r.AllDay {
		// All-day: whole local days in the display zone.
		days := 1
		if end.After(start) {
			days = int((end.Sub(start) + 12*time.Hour) / (24 * time.Hour))
			if days < 1 {
				days = 1
			}
		}
		loc := n.week.Location()
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, days)
	}
	if !end.After(start) {
		return nil, malformed(model.KindFixedEvent, r.ID, "end", end.Format(time.RFC3339), errors.New("event has no duration"))
	}

	if r.RRule == "" {
		return []interval{{start: start, end: end}}, nil
	}

	rule, err := rrule.StrToRRule(r.RRule)
	if err != nil {
		return nil, malformed(model.KindFixedEvent, r.ID, "rrule", r.RRule, err)
	}
	rule.DTStart(start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range r.ExDates {
		if r.AllDay {
			set.ExDate(time.Date(ex.Year(), ex.Month(), ex.Day(), 0, 0, 0, 0, start.Location()))
			continue
		}
		set.ExDate(ex.In(start.Location()))
	}
	return n.occurrences(&set, end.Sub(start)), nil
}
