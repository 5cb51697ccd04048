// Package placement places flexible requests into free time and produces
// alternative candidate schedules.
package placement

import (
	"cmp"
	"slices"

	"weekplan/internal/grid"
	appLog "weekplan/internal/log"
	"weekplan/internal/model"
	"weekplan/internal/slots"
)

const (
	// DefaultCount is the number of candidate schedules generated when
	// Options.Count is not set.
	DefaultCount = 3

	defaultMaxAttempts = 8 * model.DaysPerWeek
)

// Options tune candidate generation.
type Options struct {
	// Count is the number of schedules to produce.
	Count int
	// MaxAttempts bounds the perturbation variants tried per schedule
	// while looking for one that differs from the previous schedules.
	MaxAttempts int
	// SpreadOccurrences prefers days not yet used by the same request.
	SpreadOccurrences bool
	// PadDuplicates repeats the last schedule when no further distinct
	// schedule can be found, instead of returning fewer schedules.
	PadDuplicates bool
}

// Engine generates candidate schedules. It holds no mutable state and may
// be shared between goroutines.
type Engine struct {
	opts Options
}

// New returns an Engine, filling unset options with defaults.
func New(opts Options) *Engine {
	if opts.Count <= 0 {
		opts.Count = DefaultCount
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &Engine{opts: opts}
}

// Order returns the requests sorted by priority descending, ties broken by
// ascending ID. The input is not modified.
func Order(requests []model.FlexibleEventRequest) []model.FlexibleEventRequest {
	out := slices.Clone(requests)
	slices.SortStableFunc(out, func(a, b model.FlexibleEventRequest) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Parts returns the duration in slots of each placement of a request.
// Divisible requests split their duration over the occurrences, the
// remainder going to the first part; otherwise every occurrence uses the
// full duration. A divisible request never yields parts shorter than one
// slot, so it may produce fewer parts than occurrences.
func Parts(req model.FlexibleEventRequest, slotMinutes int) []int {
	total := req.DurationSlots(slotMinutes)
	n := req.OccurrenceCount()
	if req.Divisible && n > total {
		n = total
	}
	parts := make([]int, n)
	if !req.Divisible || n == 1 {
		for i := range parts {
			parts[i] = total
		}
		return parts
	}
	each := total / n
	for i := range parts {
		parts[i] = each
	}
	parts[0] += total % n
	return parts
}

// variant identifies one deterministic perturbation of the slot order.
type variant int

func (v variant) dayOffset() int { return int(v) % model.DaysPerWeek }
func (v variant) skip() int      { return int(v) / model.DaysPerWeek }

// Generate produces up to Options.Count pairwise distinct schedules. The
// base grid must already hold the commitments; it is never modified.
func (e *Engine) Generate(base *grid.Grid, commitments []model.Commitment, requests []model.FlexibleEventRequest) []model.Schedule {
	ordered := Order(requests)
	out := make([]model.Schedule, 0, e.opts.Count)

	next := variant(0)
	for k := 0; k < e.opts.Count; k++ {
		if next < variant(k) {
			next = variant(k)
		}

		found := false
		for a := 0; a < e.opts.MaxAttempts; a++ {
			v := next + variant(a)
			s := e.attempt(base, commitments, ordered, v)
			if k > 0 && duplicate(out, s) {
				continue
			}
			s.Index = k
			out = append(out, s)
			next = v + 1
			found = true
			break
		}
		if found {
			continue
		}

		if !e.opts.PadDuplicates || len(out) == 0 {
			appLog.Debug("placement: search space exhausted", "requested", e.opts.Count, "generated", len(out))
			break
		}
		dup := out[len(out)-1]
		dup.Index = k
		out = append(out, dup)
	}
	return out
}

func duplicate(prev []model.Schedule, s model.Schedule) bool {
	for _, p := range prev {
		if p.SameFlexiblePlacements(s) {
			return true
		}
	}
	return false
}

// attempt builds one schedule on a private copy of the base grid.
func (e *Engine) attempt(base *grid.Grid, commitments []model.Commitment, ordered []model.FlexibleEventRequest, v variant) model.Schedule {
	g := base.Clone()
	week := g.Week()

	var s model.Schedule
	s.Events = make([]model.PlacedEvent, 0, len(commitments)+len(ordered))
	for _, c := range commitments {
		s.Events = append(s.Events, model.FromCommitment(c))
	}

	for _, req := range ordered {
		var window *model.DateRange
		if req.DateRange != nil {
			w := req.DateRange.In(week.Location())
			window = &w
		}

		var used slots.DaySet
		for i, dur := range Parts(req, g.SlotMinutes()) {
			q := slots.Query{
				Duration:  dur,
				Days:      slots.AllDays,
				Window:    window,
				DayOffset: v.dayOffset(),
			}
			avoid := slots.DaySet(0)
			if e.opts.SpreadOccurrences {
				avoid = used
			}
			slot, ok := pick(g, q, v.skip(), avoid)
			if ok {
				if err := g.MarkBusy(slot.Day, slot.Start, dur); err != nil {
					appLog.Error("placement: candidate rejected by grid", err, "request", req.ID, "day", slot.Day, "start", slot.Start)
					ok = false
				}
			}
			if !ok {
				s.Unsatisfied = append(s.Unsatisfied, &model.UnsatisfiableRequestError{
					RequestID:     req.ID,
					Title:         req.Title,
					Priority:      req.Priority,
					Occurrence:    i + 1,
					DurationSlots: dur,
					Displaced:     slots.Count(base, q) > 0,
				})
				continue
			}
			used |= slots.Days(slot.Day)
			s.Events = append(s.Events, model.PlacedEvent{
				RequestID:     req.ID,
				Title:         req.Title,
				Day:           slot.Day,
				StartSlot:     slot.Start,
				DurationSlots: dur,
				Kind:          model.KindNonFixedEvent,
			})
		}
	}

	slices.SortStableFunc(s.Events, func(a, b model.PlacedEvent) int {
		if c := cmp.Compare(a.Day, b.Day); c != 0 {
			return c
		}
		return cmp.Compare(a.StartSlot, b.StartSlot)
	})
	return s
}

// pick returns the candidate at index skip, or the last candidate when
// there are fewer. Days in avoid are tried last.
func pick(g *grid.Grid, q slots.Query, skip int, avoid slots.DaySet) (grid.Slot, bool) {
	if avoid != 0 {
		preferred := q
		preferred.Days = q.Days &^ avoid
		if s, ok := nth(g, preferred, skip); ok {
			return s, true
		}
	}
	return nth(g, q, skip)
}

func nth(g *grid.Grid, q slots.Query, n int) (grid.Slot, bool) {
	var last grid.Slot
	found := false
	i := 0
	for s := range slots.Find(g, q) {
		last, found = s, true
		if i == n {
			break
		}
		i++
	}
	return last, found
}
