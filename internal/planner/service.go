package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"weekplan/internal/layout"
	appLog "weekplan/internal/log"
	"weekplan/internal/metrics"
	"weekplan/internal/model"
)

// ErrCandidateNotFound is returned for a schedule index outside the set.
var ErrCandidateNotFound = errors.New("candidate not found")

// mergedSource combines several commitment sources.
type mergedSource []CommitmentSource

// MergeSources returns a source that fetches every source concurrently and
// concatenates their records in argument order. Any failing source fails
// the merge: planning on a partial set of commitments would double-book.
// Sources a member skipped on its own are carried in Records.Unavailable.
func MergeSources(sources ...CommitmentSource) CommitmentSource {
	return mergedSource(sources)
}

func (m mergedSource) FetchCommitments(ctx context.Context) (model.Records, error) {
	results := make([]model.Records, len(m))
	g, ctx := errgroup.WithContext(ctx)
	for i, src := range m {
		g.Go(func() error {
			recs, err := src.FetchCommitments(ctx)
			if err != nil {
				return fmt.Errorf("commitment source %d: %w", i, err)
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Records{}, err
	}

	var out model.Records
	for _, r := range results {
		out.Courses = append(out.Courses, r.Courses...)
		out.FixedEvents = append(out.FixedEvents, r.FixedEvents...)
		out.Unavailable = append(out.Unavailable, r.Unavailable...)
	}
	return out, nil
}

// Service runs generation against live collaborators. It holds no state
// between calls and may be used from concurrent handlers.
type Service struct {
	commitments CommitmentSource
	requests    RequestSource
	stores      []ScheduleStore
	opts        Options
	metrics     *metrics.Metrics
}

// NewService returns a Service. opts.Week is ignored; the week is passed
// to Generate. m may be nil.
func NewService(commitments CommitmentSource, requests RequestSource, stores []ScheduleStore, opts Options, m *metrics.Metrics) *Service {
	return &Service{
		commitments: commitments,
		requests:    requests,
		stores:      stores,
		opts:        opts,
		metrics:     m,
	}
}

// Generate fetches both inputs concurrently and generates the candidate
// set for week.
func (s *Service) Generate(ctx context.Context, week model.Week) (model.CandidateSet, error) {
	start := time.Now()
	set, err := s.generate(ctx, week)
	s.metrics.ObserveGeneration(time.Since(start), len(set.Schedules), err)
	if err != nil {
		appLog.Error("planner: generation failed", err, "week_start", week.Start.Format("2006-01-02"))
		return set, err
	}

	unsatisfied := 0
	for _, sch := range set.Schedules {
		unsatisfied += len(sch.Unsatisfied)
		for _, u := range sch.Unsatisfied {
			s.metrics.AddUnsatisfied(u.Priority.String(), 1)
		}
	}
	for _, m := range set.Malformed {
		s.metrics.AddMalformed(m.Kind.String(), 1)
	}

	appLog.Info("planner: candidates generated",
		"week_start", week.Start.Format("2006-01-02"),
		"schedules", len(set.Schedules),
		"malformed", len(set.Malformed),
		"unavailable_sources", len(set.Unavailable),
		"unsatisfied", unsatisfied,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return set, nil
}

func (s *Service) generate(ctx context.Context, week model.Week) (model.CandidateSet, error) {
	var (
		records  model.Records
		requests []model.FlexibleEventRequest
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.commitments.FetchCommitments(gctx)
		if err != nil {
			return fmt.Errorf("fetch commitments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		requests, err = s.requests.FetchFlexibleRequests(gctx)
		if err != nil {
			return fmt.Errorf("fetch requests: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.CandidateSet{}, err
	}

	opts := s.opts
	opts.Week = week
	return GenerateCandidates(records, requests, opts)
}

func pick(set model.CandidateSet, index int) (model.Schedule, error) {
	if index < 0 || index >= len(set.Schedules) {
		return model.Schedule{}, fmt.Errorf("%w: index %d of %d", ErrCandidateNotFound, index, len(set.Schedules))
	}
	return set.Schedules[index], nil
}

// Layout lays out one schedule of set. The set's slot granularity
// overrides p.SlotMinutes.
func (s *Service) Layout(set model.CandidateSet, index int, p layout.Params) (layout.Layout, error) {
	sch, err := pick(set, index)
	if err != nil {
		return layout.Layout{}, err
	}
	p.SlotMinutes = set.SlotMinutes
	return LayoutSchedule(sch, p)
}

// Select persists one schedule of set to every configured store. All
// stores are attempted; their errors are joined.
func (s *Service) Select(ctx context.Context, set model.CandidateSet, index int) (model.Schedule, error) {
	sch, err := pick(set, index)
	if err != nil {
		return model.Schedule{}, err
	}

	var errs []error
	for _, st := range s.stores {
		if err := st.PersistSelectedSchedule(ctx, set.Week, sch); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		appLog.Error("planner: persisting selection failed", err, "index", index)
		return sch, err
	}

	s.metrics.IncSelections()
	appLog.Info("planner: schedule selected", "index", index, "events", len(sch.Events), "summary", sch.Summary())
	return sch, nil
}
