// Package grid models a week as a day × slot occupancy grid.
package grid

import (
	"fmt"

	"weekplan/internal/model"
)

// DefaultSlotMinutes is the default slot granularity.
const DefaultSlotMinutes = 60

// RangeError reports an out-of-bounds grid access. It indicates a caller
// bug and is never accumulated.
type RangeError struct {
	Day           int
	StartSlot     int
	DurationSlots int
	SlotsPerDay   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("grid: range day=%d start=%d duration=%d outside [0,%d) x 7 days",
		e.Day, e.StartSlot, e.DurationSlots, e.SlotsPerDay)
}

// Slot addresses a start position in the grid.
type Slot struct {
	Day   int `json:"day"`
	Start int `json:"start"`
}

// Range is a run of consecutive slots within a single day.
type Range struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// End returns the exclusive end slot.
func (r Range) End() int {
	return r.Start + r.Length
}

// Grid is the busy state of one week. It is not safe for concurrent
// mutation; placement works on clones.
type Grid struct {
	week        model.Week
	slotMinutes int
	slotsPerDay int
	busy        []bool // len = 7 * slotsPerDay, day-major
}

// New returns an empty grid. slotMinutes must divide a day evenly.
func New(week model.Week, slotMinutes int) (*Grid, error) {
	if slotMinutes <= 0 || slotMinutes > model.MinutesPerDay || model.MinutesPerDay%slotMinutes != 0 {
		return nil, fmt.Errorf("grid: slot granularity %d minutes does not divide a day", slotMinutes)
	}
	spd := model.MinutesPerDay / slotMinutes
	return &Grid{
		week:        week,
		slotMinutes: slotMinutes,
		slotsPerDay: spd,
		busy:        make([]bool, model.DaysPerWeek*spd),
	}, nil
}

// Week returns the week the grid describes.
func (g *Grid) Week() model.Week { return g.week }

// SlotMinutes returns the slot granularity.
func (g *Grid) SlotMinutes() int { return g.slotMinutes }

// SlotsPerDay returns the number of slots in one day.
func (g *Grid) SlotsPerDay() int { return g.slotsPerDay }

// Clone returns an independent copy.
func (g *Grid) Clone() *Grid {
	busy := make([]bool, len(g.busy))
	copy(busy, g.busy)
	return &Grid{
		week:        g.week,
		slotMinutes: g.slotMinutes,
		slotsPerDay: g.slotsPerDay,
		busy:        busy,
	}
}

func (g *Grid) check(day, start, dur int) error {
	if day < 0 || day >= model.DaysPerWeek || start < 0 || dur <= 0 || start+dur > g.slotsPerDay {
		return &RangeError{Day: day, StartSlot: start, DurationSlots: dur, SlotsPerDay: g.slotsPerDay}
	}
	return nil
}

func (g *Grid) index(day, slot int) int {
	return day*g.slotsPerDay + slot
}

// MarkBusy marks [start, start+dur) of day as occupied. Marking an already
// busy slot is a no-op.
func (g *Grid) MarkBusy(day, start, dur int) error {
	if err := g.check(day, start, dur); err != nil {
		return err
	}
	for s := start; s < start+dur; s++ {
		g.busy[g.index(day, s)] = true
	}
	return nil
}

// IsFree reports whether every slot of [start, start+dur) is free. Ranges
// outside the grid are never free.
func (g *Grid) IsFree(day, start, dur int) bool {
	if g.check(day, start, dur) != nil {
		return false
	}
	for s := start; s < start+dur; s++ {
		if g.busy[g.index(day, s)] {
			return false
		}
	}
	return true
}

// FreeRanges returns the maximal free runs of day in ascending order.
func (g *Grid) FreeRanges(day int) ([]Range, error) {
	return g.runs(day, false)
}

// BusyRanges returns the merged busy runs of day in ascending order.
func (g *Grid) BusyRanges(day int) ([]Range, error) {
	return g.runs(day, true)
}

func (g *Grid) runs(day int, busy bool) ([]Range, error) {
	if day < 0 || day >= model.DaysPerWeek {
		return nil, &RangeError{Day: day, SlotsPerDay: g.slotsPerDay}
	}
	out := make([]Range, 0)
	start := -1
	for s := 0; s < g.slotsPerDay; s++ {
		match := g.busy[g.index(day, s)] == busy
		switch {
		case match && start < 0:
			start = s
		case !match && start >= 0:
			out = append(out, Range{Start: start, Length: s - start})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, Range{Start: start, Length: g.slotsPerDay - start})
	}
	return out, nil
}

// BusyCount returns the number of busy slots across the week.
func (g *Grid) BusyCount() int {
	n := 0
	for _, b := range g.busy {
		if b {
			n++
		}
	}
	return n
}

// MinuteToSlot returns the slot containing the given minute of the day.
func (g *Grid) MinuteToSlot(minute int) int {
	return minute / g.slotMinutes
}

// MinuteToSlotCeil returns the first slot starting at or after minute.
func (g *Grid) MinuteToSlotCeil(minute int) int {
	return (minute + g.slotMinutes - 1) / g.slotMinutes
}
