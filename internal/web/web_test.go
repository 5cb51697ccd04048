package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekplan/internal/config"
	"weekplan/internal/metrics"
	"weekplan/internal/model"
	"weekplan/internal/planner"
)

var testWeek = model.NewWeek(time.Date(2024, 9, 4, 12, 0, 0, 0, time.UTC), time.Monday)

type fakeSource struct {
	calls       atomic.Int32
	err         error
	unavailable []*model.SourceError
}

func (f *fakeSource) FetchCommitments(context.Context) (model.Records, error) {
	f.calls.Add(1)
	return model.Records{
		Courses: []model.CourseRecord{
			{ID: "math", Code: "MATH 101", Day: "Monday", StartTime: "9:00 AM", EndTime: "10:00 AM"},
		},
		Unavailable: f.unavailable,
	}, f.err
}

func (f *fakeSource) FetchFlexibleRequests(context.Context) ([]model.FlexibleEventRequest, error) {
	return []model.FlexibleEventRequest{{ID: "gym", Title: "Gym", Hours: 1, Occurrences: 2}}, nil
}

type fakeStore struct {
	mu    sync.Mutex
	saved []model.Schedule
}

func (f *fakeStore) PersistSelectedSchedule(_ context.Context, _ model.Week, s model.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, s)
	return nil
}

type fixture struct {
	srv   *Server
	src   *fakeSource
	store *fakeStore
	h     http.Handler
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	if mutate != nil {
		mutate(cfg)
	}
	src := &fakeSource{}
	st := &fakeStore{}
	svc := planner.NewService(src, src, []planner.ScheduleStore{st},
		planner.Options{SlotMinutes: 60, Count: 3, SpreadOccurrences: true}, metrics.New())
	srv := NewServer(cfg, svc, metrics.New(), func() model.Week { return testWeek })
	return &fixture{srv: srv, src: src, store: st, h: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "ana", Password: "s3cret"}
	})

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health").Code)

	rec := f.do(t, http.MethodGet, "/api/candidates")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/candidates", nil)
	req.SetBasicAuth("ana", "wrong")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.SetBasicAuth("ana", "s3cret")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuthDisabledWithEmptyPassword(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "ana"}
	})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/candidates").Code)
}

func TestCandidatesAreCachedUntilRefresh(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/candidates")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[candidatesResponse](t, rec)
	assert.Equal(t, "2024-09-02", resp.WeekStart)
	assert.Equal(t, 60, resp.SlotMinutes)
	require.Len(t, resp.Schedules, 3)
	for i, s := range resp.Schedules {
		assert.Equal(t, i, s.Index)
		assert.Len(t, s.Events, 3)
		assert.Empty(t, s.Summary)
	}

	f.do(t, http.MethodGet, "/api/candidates")
	assert.Equal(t, int32(1), f.src.calls.Load())

	f.do(t, http.MethodGet, "/api/candidates?refresh=1")
	assert.Equal(t, int32(2), f.src.calls.Load())
}

func TestCandidatesGenerationFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.src.err = errors.New("feed down")

	rec := f.do(t, http.MethodGet, "/api/candidates")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to generate candidates", decode[map[string]string](t, rec)["error"])
}

func TestCandidatesReportUnavailableSources(t *testing.T) {
	f := newFixture(t, nil)
	f.src.unavailable = []*model.SourceError{{SourceID: "club", Err: errors.New("410 Gone")}}

	resp := decode[candidatesResponse](t, f.do(t, http.MethodGet, "/api/candidates"))
	assert.Equal(t, []string{`commitment source "club" unavailable: 410 Gone`}, resp.Unavailable)

	rec := f.do(t, http.MethodGet, "/preview/0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="warning"`)
	assert.Contains(t, rec.Body.String(), "club")
}

func TestLayout(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/candidates/0/layout?width=764&row=50&lines=4")
	require.Equal(t, http.StatusOK, rec.Code)
	var l struct {
		EarliestHour int               `json:"earliest_hour"`
		LatestHour   int               `json:"latest_hour"`
		ColumnWidth  float64           `json:"column_width"`
		Height       float64           `json:"height"`
		Events       []json.RawMessage `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &l))
	assert.Zero(t, (l.LatestHour-l.EarliestHour)%4)
	assert.InDelta(t, 100, l.ColumnWidth, 1e-9)
	assert.InDelta(t, 200, l.Height, 1e-9)
	assert.Len(t, l.Events, 3)

	cases := map[string]int{
		"/api/candidates/0/layout?lines=0":     http.StatusBadRequest,
		"/api/candidates/0/layout?width=wide":  http.StatusBadRequest,
		"/api/candidates/0/layout?row=1.5.2":   http.StatusBadRequest,
		"/api/candidates/zero/layout":          http.StatusBadRequest,
		"/api/candidates/9/layout":             http.StatusNotFound,
		"/api/candidates/-1/layout?width=1000": http.StatusNotFound,
	}
	for target, want := range cases {
		rec := f.do(t, http.MethodGet, target)
		assert.Equal(t, want, rec.Code, target)
		assert.NotEmpty(t, decode[map[string]string](t, rec)["error"], target)
	}
}

func TestSelect(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/candidates/1/select")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[selectResponse](t, rec)
	assert.Equal(t, "2024-09-02", resp.WeekStart)
	assert.Equal(t, 1, resp.Schedule.Index)

	require.Len(t, f.store.saved, 1)
	assert.Equal(t, 1, f.store.saved[0].Index)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/candidates/7/select").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/candidates/1/select").Code)
}

func TestDeleteRenumbers(t *testing.T) {
	f := newFixture(t, nil)
	before := decode[candidatesResponse](t, f.do(t, http.MethodGet, "/api/candidates"))

	rec := f.do(t, http.MethodDelete, "/api/candidates/0")
	require.Equal(t, http.StatusOK, rec.Code)
	after := decode[candidatesResponse](t, rec)
	require.Len(t, after.Schedules, 2)
	for i, s := range after.Schedules {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, before.Schedules[i+1].Events, s.Events)
	}

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/candidates/2").Code)

	cached := decode[candidatesResponse](t, f.do(t, http.MethodGet, "/api/candidates"))
	assert.Len(t, cached.Schedules, 2)
	assert.Equal(t, int32(1), f.src.calls.Load())
}

func TestPreview(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/preview/0?width=900")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "Week of Sep 2, 2024, option 1")
	assert.Contains(t, body, "MATH 101")
	assert.Contains(t, body, "Gym")
	assert.Contains(t, body, "9:00 AM - 10:00 AM")
	assert.Contains(t, body, "Mon 9/2")
	assert.Contains(t, body, "2e7d32")
	assert.Contains(t, body, "6a1b9a")
	assert.Equal(t, 2, strings.Count(body, `class="event nonfixed"`))
	assert.NotContains(t, body, `class="warning"`)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/preview/3").Code)
}

func TestRootRedirectsToFirstPreview(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/preview/0", rec.Header().Get("Location"))
}

func TestMetricsRecordRoutePatterns(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/candidates/0/layout")

	rec := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `route="/api/candidates/{index}/layout"`)
	assert.NotContains(t, string(body), `route="/api/candidates/0/layout"`)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Listen = "127.0.0.1:0"
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Run(ctx) }()

	require.Eventually(t, func() bool { return f.src.calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond,
		"startup refresh generates candidates")
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunRejectsBadCron(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.RefreshCron = "every now and then"
	})
	assert.Error(t, f.srv.Run(context.Background()))
}

func TestClockRange(t *testing.T) {
	assert.Equal(t, "9:30 AM - 1:00 PM", clockRange(570, 780))
	assert.Equal(t, "11:00 PM - 12:00 AM", clockRange(1380, 1440))
}
