package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekplan/internal/model"
	"weekplan/internal/normalize"
)

func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var sampleFeed = calendar(
	"BEGIN:VEVENT",
	"UID:standup",
	"DTSTAMP:20240801T000000Z",
	"DTSTART:20240902T090000Z",
	"DTEND:20240902T093000Z",
	"SUMMARY:Standup",
	"RRULE:FREQ=DAILY;COUNT=5",
	"EXDATE:20240904T090000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:standup",
	"DTSTAMP:20240801T000000Z",
	"RECURRENCE-ID:20240903T090000Z",
	"DTSTART:20240903T140000Z",
	"DTEND:20240903T143000Z",
	"SUMMARY:Standup (moved)",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:dropped",
	"DTSTAMP:20240801T000000Z",
	"DTSTART:20240905T100000Z",
	"DTEND:20240905T110000Z",
	"STATUS:CANCELLED",
	"SUMMARY:Dropped",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:no-start",
	"SUMMARY:Broken",
	"END:VEVENT",
)

func TestParseICS(t *testing.T) {
	src := Source{ID: "work", URL: "https://example.com/private.ics?token=x"}
	events, err := ParseICS(src, sampleFeed)
	require.NoError(t, err)
	require.Len(t, events, 3, "event without DTSTART is skipped")

	base := events[0]
	assert.Equal(t, "standup", base.UID)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", base.RawRRule)
	require.Len(t, base.ExDates, 1)
	assert.True(t, base.ExDates[0].Equal(time.Date(2024, 9, 4, 9, 0, 0, 0, time.UTC)))
	assert.False(t, base.IsOverride)

	assert.True(t, events[1].IsOverride)
	assert.True(t, events[2].Cancelled)

	_, err = ParseICS(src, nil)
	assert.Error(t, err)
}

func TestToRecordsAppliesOverridesAndCancellations(t *testing.T) {
	events, err := ParseICS(Source{ID: "work"}, sampleFeed)
	require.NoError(t, err)

	recs := ToRecords(events)
	require.Len(t, recs, 2)

	moved, series := recs[0], recs[1]
	assert.Equal(t, "work/standup@20240903T090000Z", moved.ID)
	assert.Empty(t, moved.RRule)
	assert.Equal(t, "work/standup", series.ID)
	assert.Len(t, series.ExDates, 2)

	week := model.NewWeek(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), time.Sunday)
	res := normalize.New(week, 30).Normalize(model.Records{FixedEvents: recs})
	require.Empty(t, res.Malformed)

	var got []string
	for _, c := range res.Commitments {
		got = append(got, week.Date(c.Day).Format("01-02")+" "+c.Title)
	}
	assert.Equal(t, []string{
		"09-02 Standup",
		"09-03 Standup (moved)",
		"09-05 Standup",
		"09-06 Standup",
	}, got)
}

func TestToRecordsKeepsLatestSequence(t *testing.T) {
	start := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	recs := ToRecords([]ParsedEvent{
		{UID: "a", Seq: 2, Summary: "new", Start: start, End: start.Add(time.Hour)},
		{UID: "a", Seq: 1, Summary: "old", Start: start, End: start.Add(time.Hour)},
	})
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].Title)
	assert.True(t, recs[0].Absolute())
}

func TestFeedUsesConditionalCache(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(sampleFeed)
	}))
	defer srv.Close()

	feed := NewFeed(t.TempDir(), []Source{{ID: "work", URL: srv.URL + "/cal.ics"}})

	first, err := feed.FetchCommitments(context.Background())
	require.NoError(t, err)
	second, err := feed.FetchCommitments(context.Background())
	require.NoError(t, err)

	assert.Len(t, first.FixedEvents, 2)
	assert.Equal(t, first.FixedEvents, second.FixedEvents)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), notModified.Load())
}

func TestFetcherFallsBackToCachedBody(t *testing.T) {
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(sampleFeed)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "work", URL: srv.URL}

	fresh, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, fresh.FromCache)

	down.Store(true)
	cached, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	assert.Equal(t, fresh.Body, cached.Body)

	_, err = NewFetcher(t.TempDir()).FetchOne(context.Background(), src)
	assert.ErrorContains(t, err, "503")
}

func TestFetchAllKeepsSourceOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(sampleFeed)
	}))
	defer srv.Close()

	sources := []Source{
		{ID: "a", URL: srv.URL + "/a"},
		{ID: "missing", URL: srv.URL + "/missing"},
		{ID: "b", URL: srv.URL + "/b"},
		{ID: "c", URL: srv.URL + "/c"},
		{ID: "d", URL: srv.URL + "/d"},
		{ID: "e", URL: srv.URL + "/e"},
	}
	results, errs := NewFetcher(t.TempDir()).FetchAll(context.Background(), sources)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "missing")

	var ids []string
	for _, r := range results {
		ids = append(ids, r.Source.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
}

func TestFeedReportsSkippedSourcesAndFailsWhenAllFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(sampleFeed)
	}))
	defer good.Close()

	_, err := NewFeed(t.TempDir(), []Source{{ID: "bad", URL: bad.URL}}).FetchCommitments(context.Background())
	assert.Error(t, err)

	recs, err := NewFeed(t.TempDir(), []Source{{ID: "bad", URL: bad.URL}, {ID: "good", URL: good.URL}}).FetchCommitments(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs.FixedEvents, 2)
	require.Len(t, recs.Unavailable, 1)
	assert.Equal(t, "bad", recs.Unavailable[0].SourceID)
	assert.ErrorContains(t, recs.Unavailable[0], "410")

	recs, err = NewFeed(t.TempDir(), nil).FetchCommitments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs.FixedEvents)
	assert.Empty(t, recs.Unavailable)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.com/...(redacted)", redactURL("https://calendar.example.com/u/123/basic.ics?token=secret"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}

func TestExporterRender(t *testing.T) {
	week := model.NewWeek(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), time.Sunday)
	s := model.Schedule{Events: []model.PlacedEvent{
		{RequestID: "c1", Title: "Math", Day: 1, StartSlot: 9, DurationSlots: 1, Kind: model.KindCourse},
		{RequestID: "gym", Title: "Gym", Day: 1, StartSlot: 18, DurationSlots: 2, Kind: model.KindNonFixedEvent},
		{RequestID: "gym", Title: "Gym", Day: 3, StartSlot: 7, DurationSlots: 2, Kind: model.KindNonFixedEvent},
	}}

	e := NewExporter("", 30)
	e.now = func() time.Time { return time.Date(2024, 8, 30, 12, 0, 0, 0, time.UTC) }

	body := e.Render(week, s)
	assert.Equal(t, body, e.Render(week, s), "render is deterministic")
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
	assert.NotContains(t, body, "Math")

	events, err := ParseICS(Source{ID: "export"}, []byte(body))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].UID, events[1].UID)
	assert.True(t, events[0].Start.Equal(time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)))
	assert.True(t, events[0].End.Equal(time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Gym", events[0].Summary)

	e.IncludeCommitments = true
	assert.Equal(t, 3, strings.Count(e.Render(week, s), "BEGIN:VEVENT"))
}

func TestExporterPersistRequiresPath(t *testing.T) {
	week := model.NewWeek(time.Now(), time.Monday)
	err := NewExporter("", 60).PersistSelectedSchedule(context.Background(), week, model.Schedule{})
	assert.Error(t, err)
}
