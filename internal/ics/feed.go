package ics

import (
	"context"
	"errors"
	"fmt"

	appLog "weekplan/internal/log"
	"weekplan/internal/model"
)

// Feed reads fixed events from a set of ICS subscriptions.
type Feed struct {
	fetcher *Fetcher
	sources []Source
}

// NewFeed returns a Feed over sources, cached under cacheDir.
func NewFeed(cacheDir string, sources []Source) *Feed {
	return &Feed{fetcher: NewFetcher(cacheDir), sources: sources}
}

// FetchCommitments fetches and parses every source. Sources that fail are
// skipped and listed in Records.Unavailable; an error is returned only
// when every configured source failed.
func (f *Feed) FetchCommitments(ctx context.Context) (model.Records, error) {
	var recs model.Records
	if len(f.sources) == 0 {
		return recs, nil
	}

	results, errs := f.fetcher.FetchAll(ctx, f.sources)
	parsed := 0
	for _, res := range results {
		events, err := ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", res.Source.ID)
			errs = append(errs, &model.SourceError{SourceID: res.Source.ID, Err: err})
			continue
		}
		parsed++
		recs.FixedEvents = append(recs.FixedEvents, ToRecords(events)...)
	}

	if parsed == 0 && len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return recs, fmt.Errorf("ics: all %d sources failed: %w", len(f.sources), errors.Join(joined...))
	}
	recs.Unavailable = errs
	appLog.Debug("ics feeds loaded", "sources", len(f.sources), "parsed", parsed, "records", len(recs.FixedEvents))
	return recs, nil
}
