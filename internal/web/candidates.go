package web

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"weekplan/internal/layout"
	appLog "weekplan/internal/log"
	"weekplan/internal/model"
	"weekplan/internal/planner"
)

// candidateCache holds the current candidate set and when it was generated.
type candidateCache struct {
	set         model.CandidateSet
	generatedAt time.Time
}

// candidatesResponse is the JSON response shape for /api/candidates.
type candidatesResponse struct {
	WeekStart   string        `json:"week_start"`
	SlotMinutes int           `json:"slot_minutes"`
	GeneratedAt time.Time     `json:"generated_at"`
	Schedules   []scheduleDTO `json:"schedules"`
	Malformed   []string      `json:"malformed,omitempty"`
	Unavailable []string      `json:"unavailable_sources,omitempty"`
}

type scheduleDTO struct {
	Index       int                 `json:"index"`
	Events      []model.PlacedEvent `json:"events"`
	Unsatisfied []unsatisfiedDTO    `json:"unsatisfied,omitempty"`
	Summary     string              `json:"summary,omitempty"`
}

type unsatisfiedDTO struct {
	RequestID     string  `json:"request_id"`
	Title         string  `json:"title,omitempty"`
	Priority      float64 `json:"priority"`
	Occurrence    int     `json:"occurrence"`
	DurationSlots int     `json:"duration_slots"`
	Displaced     bool    `json:"displaced,omitempty"`
}

// selectResponse is the JSON response shape for a selection.
type selectResponse struct {
	WeekStart string      `json:"week_start"`
	Schedule  scheduleDTO `json:"schedule"`
}

func newCandidatesResponse(c candidateCache) candidatesResponse {
	resp := candidatesResponse{
		WeekStart:   c.set.Week.Start.Format("2006-01-02"),
		SlotMinutes: c.set.SlotMinutes,
		GeneratedAt: c.generatedAt,
		Schedules:   make([]scheduleDTO, 0, len(c.set.Schedules)),
	}
	for _, s := range c.set.Schedules {
		resp.Schedules = append(resp.Schedules, newScheduleDTO(s))
	}
	for _, m := range c.set.Malformed {
		resp.Malformed = append(resp.Malformed, m.Error())
	}
	for _, u := range c.set.Unavailable {
		resp.Unavailable = append(resp.Unavailable, u.Error())
	}
	return resp
}

func newScheduleDTO(s model.Schedule) scheduleDTO {
	dto := scheduleDTO{
		Index:   s.Index,
		Events:  s.Events,
		Summary: s.Summary(),
	}
	if dto.Events == nil {
		dto.Events = []model.PlacedEvent{}
	}
	for _, u := range s.Unsatisfied {
		dto.Unsatisfied = append(dto.Unsatisfied, unsatisfiedDTO{
			RequestID:     u.RequestID,
			Title:         u.Title,
			Priority:      float64(u.Priority),
			Occurrence:    u.Occurrence,
			DurationSlots: u.DurationSlots,
			Displaced:     u.Displaced,
		})
	}
	return dto
}

// current returns the cached candidate set, generating it on first use.
func (s *Server) current(ctx context.Context) (candidateCache, error) {
	s.candidatesMu.RLock()
	c := s.candidates
	s.candidatesMu.RUnlock()
	if c != nil {
		return *c, nil
	}
	return s.regenerate(ctx)
}

// regenerate replaces the cached candidate set. On failure the previous
// set is kept.
func (s *Server) regenerate(ctx context.Context) (candidateCache, error) {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	set, err := s.planner.Generate(ctx, s.week())
	if err != nil {
		return candidateCache{}, err
	}
	for i := range set.Schedules {
		set.Schedules[i].Index = i
	}
	c := &candidateCache{set: set, generatedAt: time.Now().UTC().Truncate(time.Second)}

	s.candidatesMu.Lock()
	s.candidates = c
	s.candidatesMu.Unlock()
	return *c, nil
}

// handleCandidates returns the current candidate set.
//
// GET /api/candidates?refresh=1
//   - refresh: regenerate before responding
func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	var (
		c   candidateCache
		err error
	)
	if r.URL.Query().Get("refresh") == "1" {
		c, err = s.regenerate(r.Context())
	} else {
		c, err = s.current(r.Context())
	}
	if err != nil {
		appLog.Error("api candidates: generation failed", err)
		writeError(w, http.StatusInternalServerError, "failed to generate candidates")
		return
	}
	writeJSON(w, http.StatusOK, newCandidatesResponse(c))
}

// handleLayout returns the pixel geometry of one candidate.
//
// GET /api/candidates/{index}/layout?width=&row=&lines=
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	p, err := s.layoutParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.current(r.Context())
	if err != nil {
		appLog.Error("api layout: generation failed", err)
		writeError(w, http.StatusInternalServerError, "failed to generate candidates")
		return
	}
	l, err := s.planner.Layout(c.set, index, p)
	if err != nil {
		writePlannerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// handleSelect persists one candidate as the chosen schedule.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	c, err := s.current(r.Context())
	if err != nil {
		appLog.Error("api select: generation failed", err)
		writeError(w, http.StatusInternalServerError, "failed to generate candidates")
		return
	}
	sch, err := s.planner.Select(r.Context(), c.set, index)
	if err != nil {
		writePlannerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectResponse{
		WeekStart: c.set.Week.Start.Format("2006-01-02"),
		Schedule:  newScheduleDTO(sch),
	})
}

// handleDelete drops one candidate from the cached set. The remaining
// candidates are renumbered.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	if _, err := s.current(r.Context()); err != nil {
		appLog.Error("api delete: generation failed", err)
		writeError(w, http.StatusInternalServerError, "failed to generate candidates")
		return
	}

	s.candidatesMu.Lock()
	c := s.candidates
	if index < 0 || index >= len(c.set.Schedules) {
		s.candidatesMu.Unlock()
		writeError(w, http.StatusNotFound, planner.ErrCandidateNotFound.Error())
		return
	}
	next := *c
	next.set.Schedules = slices.Delete(slices.Clone(c.set.Schedules), index, index+1)
	for i := range next.set.Schedules {
		next.set.Schedules[i].Index = i
	}
	s.candidates = &next
	s.candidatesMu.Unlock()

	appLog.Info("api delete: candidate removed", "index", index, "remaining", len(next.set.Schedules))
	writeJSON(w, http.StatusOK, newCandidatesResponse(next))
}

// writePlannerError maps planner errors to HTTP statuses.
func writePlannerError(w http.ResponseWriter, err error) {
	var le *layout.LayoutError
	switch {
	case errors.Is(err, planner.ErrCandidateNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &le):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("api: planner error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
