// Package slots enumerates free placements on a grid.
package slots

import (
	"iter"

	"weekplan/internal/grid"
	"weekplan/internal/model"
)

// DaySet is a set of day indexes 0..6.
type DaySet uint8

// AllDays contains every day of the week.
const AllDays DaySet = 1<<model.DaysPerWeek - 1

// Days builds a set from day indexes; out-of-range indexes are ignored.
func Days(days ...int) DaySet {
	var s DaySet
	for _, d := range days {
		if d >= 0 && d < model.DaysPerWeek {
			s |= 1 << d
		}
	}
	return s
}

// Has reports whether day is in the set.
func (s DaySet) Has(day int) bool {
	return day >= 0 && day < model.DaysPerWeek && s&(1<<day) != 0
}

// Query describes the placements to enumerate.
type Query struct {
	Duration int
	Days     DaySet
	// Window, if set, restricts candidates to days whose calendar date
	// falls within it.
	Window *model.DateRange
	// DayOffset rotates the day order: enumeration starts at day
	// DayOffset mod 7 and wraps around.
	DayOffset int
}

// Find returns the free placements of q.Duration slots in a fixed order:
// days ascending from the offset, then start slots ascending. The sequence
// is lazy, finite, and can be ranged over any number of times; it reads
// the grid at iteration time.
func Find(g *grid.Grid, q Query) iter.Seq[grid.Slot] {
	return func(yield func(grid.Slot) bool) {
		if q.Duration <= 0 || q.Duration > g.SlotsPerDay() {
			return
		}
		offset := ((q.DayOffset % model.DaysPerWeek) + model.DaysPerWeek) % model.DaysPerWeek
		week := g.Week()
		for i := 0; i < model.DaysPerWeek; i++ {
			day := (offset + i) % model.DaysPerWeek
			if !q.Days.Has(day) {
				continue
			}
			if q.Window != nil && !q.Window.Contains(week.Date(day)) {
				continue
			}
			for start := 0; start+q.Duration <= g.SlotsPerDay(); start++ {
				if !g.IsFree(day, start, q.Duration) {
					continue
				}
				if !yield(grid.Slot{Day: day, Start: start}) {
					return
				}
			}
		}
	}
}

// Count returns the number of candidates of q.
func Count(g *grid.Grid, q Query) int {
	n := 0
	for range Find(g, q) {
		n++
	}
	return n
}
