// Package planner connects the scheduling engine to its collaborators: it
// fetches records and requests, generates candidate schedules, lays them
// out and persists the one the user selects.
package planner

import (
	"context"
	"fmt"

	"weekplan/internal/grid"
	"weekplan/internal/layout"
	"weekplan/internal/model"
	"weekplan/internal/normalize"
	"weekplan/internal/placement"
)

// CommitmentSource provides the raw course and fixed-event records.
type CommitmentSource interface {
	FetchCommitments(ctx context.Context) (model.Records, error)
}

// RequestSource provides the flexible event requests.
type RequestSource interface {
	FetchFlexibleRequests(ctx context.Context) ([]model.FlexibleEventRequest, error)
}

// ScheduleStore persists the schedule the user selected.
type ScheduleStore interface {
	PersistSelectedSchedule(ctx context.Context, week model.Week, s model.Schedule) error
}

// Options control one candidate generation.
type Options struct {
	Week        model.Week
	SlotMinutes int
	// Count is the number of candidates; zero means placement.DefaultCount.
	Count             int
	SpreadOccurrences bool
	PadDuplicates     bool
	// Unavailable lists daily [start, end) minute ranges blocked for
	// placement on every day of the week.
	Unavailable [][2]int
}

// GenerateCandidates is a pure function of its inputs. Malformed records
// and skipped sources are reported on the set; unplaceable requests on
// each schedule. Only an
// unusable grid configuration is returned as an error.
func GenerateCandidates(records model.Records, requests []model.FlexibleEventRequest, opts Options) (model.CandidateSet, error) {
	if opts.SlotMinutes == 0 {
		opts.SlotMinutes = grid.DefaultSlotMinutes
	}
	base, err := grid.New(opts.Week, opts.SlotMinutes)
	if err != nil {
		return model.CandidateSet{}, err
	}

	norm := normalize.New(opts.Week, opts.SlotMinutes).Normalize(records)
	for _, c := range norm.Commitments {
		if err := base.MarkBusy(c.Day, c.StartSlot, c.DurationSlots); err != nil {
			return model.CandidateSet{}, fmt.Errorf("planner: commitment %q: %w", c.SourceID, err)
		}
	}
	if err := blockUnavailable(base, opts.Unavailable); err != nil {
		return model.CandidateSet{}, err
	}

	engine := placement.New(placement.Options{
		Count:             opts.Count,
		SpreadOccurrences: opts.SpreadOccurrences,
		PadDuplicates:     opts.PadDuplicates,
	})
	return model.CandidateSet{
		Week:        opts.Week,
		SlotMinutes: opts.SlotMinutes,
		Schedules:   engine.Generate(base, norm.Commitments, requests),
		Malformed:   norm.Malformed,
		Unavailable: records.Unavailable,
	}, nil
}

// blockUnavailable marks the daily windows busy. Partially covered slots
// are blocked.
func blockUnavailable(g *grid.Grid, windows [][2]int) error {
	for _, w := range windows {
		start := g.MinuteToSlot(w[0])
		end := g.MinuteToSlotCeil(w[1])
		if end <= start {
			continue
		}
		for d := 0; d < model.DaysPerWeek; d++ {
			if err := g.MarkBusy(d, start, end-start); err != nil {
				return fmt.Errorf("planner: unavailable window %d-%d: %w", w[0], w[1], err)
			}
		}
	}
	return nil
}

// LayoutSchedule computes the pixel geometry of one schedule. p.SlotMinutes
// must match the granularity the schedule was generated with.
func LayoutSchedule(s model.Schedule, p layout.Params) (layout.Layout, error) {
	return layout.Calculate(s.Events, p)
}
