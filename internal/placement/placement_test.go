package placement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekplan/internal/grid"
	"weekplan/internal/model"
)

// Sunday 2024-09-01 .. Saturday 2024-09-07; Monday is day 1.
var week = model.NewWeek(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), time.Sunday)

func day(d int) *model.DateRange {
	date := week.Date(d)
	return &model.DateRange{Start: date, End: date}
}

func baseGrid(t *testing.T, commitments ...model.Commitment) *grid.Grid {
	t.Helper()
	g, err := grid.New(week, 60)
	require.NoError(t, err)
	for _, c := range commitments {
		require.NoError(t, g.MarkBusy(c.Day, c.StartSlot, c.DurationSlots))
	}
	return g
}

// fillExcept marks every slot busy except the given (day, slot) pairs.
func fillExcept(t *testing.T, g *grid.Grid, free ...grid.Slot) {
	t.Helper()
	keep := map[grid.Slot]bool{}
	for _, s := range free {
		keep[s] = true
	}
	for d := 0; d < model.DaysPerWeek; d++ {
		for s := 0; s < g.SlotsPerDay(); s++ {
			if !keep[grid.Slot{Day: d, Start: s}] {
				require.NoError(t, g.MarkBusy(d, s, 1))
			}
		}
	}
}

func flexible(s model.Schedule) []model.PlacedEvent {
	return s.OfKind(model.KindNonFixedEvent)
}

func assertNoOverlap(t *testing.T, s model.Schedule) {
	t.Helper()
	for i, a := range s.Events {
		for _, b := range s.Events[i+1:] {
			if !a.Kind.Movable() && !b.Kind.Movable() {
				continue
			}
			assert.False(t, a.Overlaps(b), "schedule %d: %+v overlaps %+v", s.Index, a, b)
		}
	}
}

func TestCourseMondayScenario(t *testing.T) {
	course := model.Commitment{Day: 1, StartSlot: 9, DurationSlots: 1, Kind: model.KindCourse, SourceID: "c1"}
	g := baseGrid(t, course)

	out := New(Options{Count: 1}).Generate(g, []model.Commitment{course}, []model.FlexibleEventRequest{
		{ID: "study", Hours: 1, Occurrences: 1, Priority: model.PriorityHigh, DateRange: day(1)},
	})

	require.Len(t, out, 1)
	placed := flexible(out[0])
	require.Len(t, placed, 1)
	assert.Equal(t, 1, placed[0].Day)
	assert.NotEqual(t, 9, placed[0].StartSlot)
	assert.Len(t, out[0].OfKind(model.KindCourse), 1)
	assert.Empty(t, out[0].Unsatisfied)
}

func TestTwoHighPriorityRequestsOnEmptyWeek(t *testing.T) {
	g := baseGrid(t)
	out := New(Options{Count: 1}).Generate(g, nil, []model.FlexibleEventRequest{
		{ID: "a", Hours: 1, Occurrences: 1, Priority: model.PriorityHigh},
		{ID: "b", Hours: 1, Occurrences: 1, Priority: model.PriorityHigh},
	})

	require.Len(t, out, 1)
	placed := flexible(out[0])
	require.Len(t, placed, 2)
	assert.False(t, placed[0].Overlaps(placed[1]))
	assert.NotEqual(t, placed[0].RequestID, placed[1].RequestID)
	assert.Empty(t, out[0].Unsatisfied)
}

func TestDivisibleRequestIsSplit(t *testing.T) {
	g := baseGrid(t)
	out := New(Options{Count: 1}).Generate(g, nil, []model.FlexibleEventRequest{
		{ID: "read", Hours: 4, Occurrences: 2, Divisible: true},
	})

	require.Len(t, out, 1)
	placed := flexible(out[0])
	require.Len(t, placed, 2)
	total := 0
	for _, p := range placed {
		assert.Equal(t, 2, p.DurationSlots)
		total += p.DurationSlots
	}
	assert.Equal(t, 4, total)
}

func TestParts(t *testing.T) {
	assert.Equal(t, []int{3, 2}, Parts(model.FlexibleEventRequest{Hours: 5, Occurrences: 2, Divisible: true}, 60))
	assert.Equal(t, []int{2, 2, 2}, Parts(model.FlexibleEventRequest{Hours: 2, Occurrences: 3}, 60))
	assert.Equal(t, []int{3}, Parts(model.FlexibleEventRequest{Hours: 1, Minutes: 30, Divisible: true}, 30))
	assert.Equal(t, []int{1}, Parts(model.FlexibleEventRequest{Minutes: 10}, 60))
	assert.Equal(t, []int{1}, Parts(model.FlexibleEventRequest{Hours: 1, Occurrences: 3, Divisible: true}, 60))
}

func TestOrder(t *testing.T) {
	got := Order([]model.FlexibleEventRequest{
		{ID: "c", Priority: model.PriorityLow},
		{ID: "b", Priority: model.PriorityHigh},
		{ID: "d", Priority: model.PriorityNormal},
		{ID: "a", Priority: model.PriorityHigh},
	})
	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids)
}

func TestHigherPriorityWinsTheLastSlot(t *testing.T) {
	g := baseGrid(t)
	fillExcept(t, g, grid.Slot{Day: 3, Start: 5})

	out := New(Options{Count: 1}).Generate(g, nil, []model.FlexibleEventRequest{
		{ID: "a", Title: "Nap", Hours: 1, Priority: model.PriorityLow},
		{ID: "z", Title: "Gym", Hours: 1, Priority: model.PriorityHigh},
	})

	require.Len(t, out, 1)
	placed := flexible(out[0])
	require.Len(t, placed, 1)
	assert.Equal(t, "z", placed[0].RequestID)
	assert.Equal(t, grid.Slot{Day: 3, Start: 5}, grid.Slot{Day: placed[0].Day, Start: placed[0].StartSlot})

	require.Len(t, out[0].Unsatisfied, 1)
	u := out[0].Unsatisfied[0]
	assert.Equal(t, "a", u.RequestID)
	assert.Equal(t, model.PriorityLow, u.Priority)
	assert.Equal(t, 1, u.Occurrence)
	assert.True(t, u.Displaced)
	assert.Contains(t, u.Error(), "taken by earlier placements")
	assert.Equal(t, "1 event could not be scheduled", out[0].Summary())
}

func TestSingleValidSlotPerRequestIsFilled(t *testing.T) {
	g := baseGrid(t)
	fillExcept(t, g, grid.Slot{Day: 1, Start: 7}, grid.Slot{Day: 2, Start: 15})

	out := New(Options{Count: 1}).Generate(g, nil, []model.FlexibleEventRequest{
		{ID: "mon", Hours: 1, DateRange: day(1)},
		{ID: "tue", Hours: 1, DateRange: day(2)},
	})

	require.Len(t, out, 1)
	assert.Empty(t, out[0].Unsatisfied)
	placed := flexible(out[0])
	require.Len(t, placed, 2)
	assert.Equal(t, model.PlacedEvent{RequestID: "mon", Day: 1, StartSlot: 7, DurationSlots: 1, Kind: model.KindNonFixedEvent}, placed[0])
	assert.Equal(t, model.PlacedEvent{RequestID: "tue", Day: 2, StartSlot: 15, DurationSlots: 1, Kind: model.KindNonFixedEvent}, placed[1])
}

func TestCandidatesArePairwiseDistinct(t *testing.T) {
	g := baseGrid(t)
	out := New(Options{}).Generate(g, nil, []model.FlexibleEventRequest{
		{ID: "walk", Hours: 1},
	})

	require.Len(t, out, DefaultCount)
	for i := range out {
		assert.Equal(t, i, out[i].Index)
		for j := i + 1; j < len(out); j++ {
			assert.False(t, out[i].SameFlexiblePlacements(out[j]), "schedules %d and %d", i, j)
		}
	}
}

func TestExhaustedSearchSpace(t *testing.T) {
	g := baseGrid(t)
	fillExcept(t, g, grid.Slot{Day: 4, Start: 12})
	reqs := []model.FlexibleEventRequest{{ID: "only", Hours: 1}}

	out := New(Options{Count: 3}).Generate(g, nil, reqs)
	require.Len(t, out, 1)

	padded := New(Options{Count: 3, PadDuplicates: true}).Generate(g, nil, reqs)
	require.Len(t, padded, 3)
	for i, s := range padded {
		assert.Equal(t, i, s.Index)
		assert.True(t, s.SameFlexiblePlacements(padded[0]))
	}
}

func TestNoRequestsYieldsOneSchedule(t *testing.T) {
	course := model.Commitment{Day: 2, StartSlot: 10, DurationSlots: 2, Kind: model.KindCourse, SourceID: "c"}
	out := New(Options{Count: 3}).Generate(baseGrid(t, course), []model.Commitment{course}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, []model.PlacedEvent{model.FromCommitment(course)}, out[0].Events)
}

func TestUnsatisfiableRequestDoesNotAbort(t *testing.T) {
	g := baseGrid(t)
	out := New(Options{Count: 1}).Generate(g, nil, []model.FlexibleEventRequest{
		{ID: "marathon", Hours: 25, Priority: model.PriorityHigh},
		{ID: "tea", Hours: 1},
	})
	require.Len(t, out, 1)
	require.Len(t, out[0].Unsatisfied, 1)
	assert.Equal(t, "marathon", out[0].Unsatisfied[0].RequestID)
	assert.Equal(t, 25, out[0].Unsatisfied[0].DurationSlots)
	assert.False(t, out[0].Unsatisfied[0].Displaced)
	assert.Len(t, flexible(out[0]), 1)
}

func TestBaseGridIsNotModified(t *testing.T) {
	course := model.Commitment{Day: 0, StartSlot: 8, DurationSlots: 4, Kind: model.KindCourse}
	g := baseGrid(t, course)
	before := g.BusyCount()

	New(Options{Count: 3}).Generate(g, []model.Commitment{course}, []model.FlexibleEventRequest{
		{ID: "x", Hours: 3, Occurrences: 2},
	})
	assert.Equal(t, before, g.BusyCount())
}

func TestSpreadOccurrencesUsesDistinctDays(t *testing.T) {
	g := baseGrid(t)
	reqs := []model.FlexibleEventRequest{{ID: "run", Hours: 1, Occurrences: 3}}

	spread := flexible(New(Options{Count: 1, SpreadOccurrences: true}).Generate(g, nil, reqs)[0])
	require.Len(t, spread, 3)
	days := map[int]bool{}
	for _, p := range spread {
		days[p.Day] = true
	}
	assert.Len(t, days, 3)

	packed := flexible(New(Options{Count: 1}).Generate(g, nil, reqs)[0])
	require.Len(t, packed, 3)
	for i, p := range packed {
		assert.Equal(t, 0, p.Day)
		assert.Equal(t, i, p.StartSlot)
	}
}

func TestGeneratedSchedulesNeverOverlap(t *testing.T) {
	commitments := []model.Commitment{
		{Day: 1, StartSlot: 9, DurationSlots: 2, Kind: model.KindCourse, SourceID: "c1"},
		{Day: 1, StartSlot: 10, DurationSlots: 3, Kind: model.KindFixedEvent, SourceID: "f1"},
		{Day: 3, StartSlot: 0, DurationSlots: 24, Kind: model.KindFixedEvent, SourceID: "f2"},
		{Day: 5, StartSlot: 13, DurationSlots: 4, Kind: model.KindCourse, SourceID: "c2"},
	}
	g := baseGrid(t, commitments...)
	reqs := []model.FlexibleEventRequest{
		{ID: "a", Hours: 3, Occurrences: 4, Priority: model.PriorityHigh},
		{ID: "b", Hours: 6, Occurrences: 3, Divisible: true, Priority: model.PriorityNormal},
		{ID: "c", Hours: 2, Minutes: 30, Occurrences: 5, Priority: model.PriorityLow, DateRange: &model.DateRange{Start: week.Date(1), End: week.Date(2)}},
		{ID: "d", Hours: 20, Occurrences: 2},
	}

	out := New(Options{Count: 5}).Generate(g, commitments, reqs)
	require.NotEmpty(t, out)
	for _, s := range out {
		assertNoOverlap(t, s)
		placedOrMissing := len(flexible(s)) + len(s.Unsatisfied)
		assert.Equal(t, 4+3+5+2, placedOrMissing)
		for _, p := range flexible(s) {
			if p.RequestID == "c" {
				assert.Contains(t, []int{1, 2}, p.Day)
			}
		}
	}
}
