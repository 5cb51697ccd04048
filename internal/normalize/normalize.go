// Package normalize turns raw course and fixed-event records into
// commitments on the displayed week.
package normalize

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "weekplan/internal/log"
	"weekplan/internal/model"
)

const (
	defaultMaxOccurrencesPerRecord = 500
)

// Normalizer expands records for one week at one slot granularity.
type Normalizer struct {
	week        model.Week
	slotMinutes int

	// MaxOccurrencesPerRecord is a safety cap against runaway rules. If
	// zero, defaultMaxOccurrencesPerRecord is used.
	MaxOccurrencesPerRecord int
}

// Result is the outcome of one normalization batch.
type Result struct {
	Commitments []model.Commitment
	Malformed   []*model.MalformedRecordError
	// Truncated records the IDs of records that hit the occurrence cap.
	Truncated []string
}

// New returns a Normalizer. slotMinutes is assumed to be a valid grid
// granularity.
func New(week model.Week, slotMinutes int) *Normalizer {
	return &Normalizer{week: week, slotMinutes: slotMinutes}
}

// interval is a concrete [start, end) occupation in absolute time.
type interval struct {
	start time.Time
	end   time.Time
}

// Normalize converts every record it can and reports the rest. One bad
// record never aborts the batch.
func (n *Normalizer) Normalize(records model.Records) Result {
	var res Result
	if n.MaxOccurrencesPerRecord <= 0 {
		n.MaxOccurrencesPerRecord = defaultMaxOccurrencesPerRecord
	}

	for _, c := range records.Courses {
		ivs, err := n.courseIntervals(c)
		if err != nil {
			res.addMalformed(err)
			continue
		}
		ivs, truncated := n.capIntervals(ivs)
		if truncated {
			res.Truncated = append(res.Truncated, c.ID)
		}
		for _, iv := range ivs {
			res.Commitments = append(res.Commitments, n.split(iv, model.KindCourse, c.ID, c.Code)...)
		}
	}

	for _, r := range records.FixedEvents {
		ivs, err := n.fixedIntervals(r)
		if err != nil {
			res.addMalformed(err)
			continue
		}
		ivs, truncated := n.capIntervals(ivs)
		if truncated {
			res.Truncated = append(res.Truncated, r.ID)
		}
		for _, iv := range ivs {
			res.Commitments = append(res.Commitments, n.split(iv, model.KindFixedEvent, r.ID, r.Title)...)
		}
	}

	sort.SliceStable(res.Commitments, func(i, j int) bool {
		a, b := res.Commitments[i], res.Commitments[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.StartSlot < b.StartSlot
	})

	for _, id := range res.Truncated {
		appLog.Error("normalize: truncated occurrences due to cap",
			errors.New("max occurrences reached"),
			"id", id,
			"cap", n.MaxOccurrencesPerRecord,
		)
	}

	appLog.Debug("normalize completed",
		"week_start", n.week.Start.Format("2006-01-02"),
		"commitments", len(res.Commitments),
		"malformed", len(res.Malformed),
	)
	return res
}

func (res *Result) addMalformed(err error) {
	var me *model.MalformedRecordError
	if !errors.As(err, &me) {
		me = &model.MalformedRecordError{Err: err}
	}
	appLog.Error("normalize: record skipped", me.Err, "kind", me.Kind.String(), "id", me.SourceID, "field", me.Field)
	res.Malformed = append(res.Malformed, me)
}

func (n *Normalizer) capIntervals(ivs []interval) ([]interval, bool) {
	if len(ivs) > n.MaxOccurrencesPerRecord {
		return ivs[:n.MaxOccurrencesPerRecord], true
	}
	return ivs, false
}

// split clips an interval to the week and emits one commitment per day it
// touches. Partially covered slots count as occupied.
func (n *Normalizer) split(iv interval, kind model.Kind, id, title string) []model.Commitment {
	loc := n.week.Location()
	s := iv.start.In(loc)
	e := iv.end.In(loc)

	out := make([]model.Commitment, 0, 1)
	for d := 0; d < model.DaysPerWeek; d++ {
		dayStart := n.week.Date(d)
		dayEnd := n.week.Date(d + 1)
		if !e.After(dayStart) || !s.Before(dayEnd) {
			continue
		}

		startMin := 0
		if s.After(dayStart) {
			startMin = s.Hour()*60 + s.Minute()
		}
		endMin := model.MinutesPerDay
		if e.Before(dayEnd) {
			endMin = e.Hour()*60 + e.Minute()
			if e.Second() > 0 || e.Nanosecond() > 0 {
				endMin++
			}
		}

		startSlot := startMin / n.slotMinutes
		endSlot := (endMin + n.slotMinutes - 1) / n.slotMinutes
		if endSlot <= startSlot {
			continue
		}
		out = append(out, model.Commitment{
			Day:           d,
			StartSlot:     startSlot,
			DurationSlots: endSlot - startSlot,
			Kind:          kind,
			SourceID:      id,
			Title:         title,
		})
	}
	return out
}

// atMinute returns the wall-clock time minute minutes after midnight of date.
func atMinute(date time.Time, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, minute, 0, 0, date.Location())
}

// endOfDay returns the last second of date, used as an inclusive UNTIL.
func endOfDay(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 0, date.Location())
}

var rruleWeekdays = [model.DaysPerWeek]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

// occurrences evaluates rule within the week, widened backwards by dur so
// that occurrences starting before the week but reaching into it count.
func (n *Normalizer) occurrences(set *rrule.Set, dur time.Duration) []interval {
	after := n.week.Start.Add(-dur)
	times := set.Between(after, n.week.End(), true)
	out := make([]interval, 0, len(times))
	for _, t := range times {
		out = append(out, interval{start: t, end: t.Add(dur)})
	}
	return out
}
