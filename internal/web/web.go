// Package web serves the candidate schedules over HTTP: a JSON API, an
// HTML preview per candidate for capture, and Prometheus metrics.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"weekplan/internal/config"
	"weekplan/internal/layout"
	appLog "weekplan/internal/log"
	"weekplan/internal/metrics"
	"weekplan/internal/model"
)

// Planner generates, lays out and persists candidate schedules.
// *planner.Service implements it.
type Planner interface {
	Generate(ctx context.Context, week model.Week) (model.CandidateSet, error)
	Layout(set model.CandidateSet, index int, p layout.Params) (layout.Layout, error)
	Select(ctx context.Context, set model.CandidateSet, index int) (model.Schedule, error)
}

// Server provides the HTTP API and preview pages.
type Server struct {
	cfg     *config.Config
	planner Planner
	metrics *metrics.Metrics
	week    func() model.Week
	mux     *http.ServeMux

	// genMu serializes generations so a cron refresh and a ?refresh=1
	// request do not fetch inputs twice.
	genMu sync.Mutex

	// In-memory candidate set. Readers take a snapshot under RLock;
	// regeneration and deletion swap it under Lock.
	candidatesMu sync.RWMutex
	candidates   *candidateCache
}

// NewServer constructs a new Server. week returns the week to plan and is
// consulted on every generation, so a long-running server rolls over to
// the next week on its own. m may be nil.
func NewServer(cfg *config.Config, p Planner, m *metrics.Metrics, week func() model.Week) *Server {
	s := &Server{
		cfg:     cfg,
		planner: p,
		metrics: m,
		week:    week,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than lock everyone out.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="weekplan", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen and refreshes the candidate set on the
// configured cron schedule until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	sched, err := s.startRefresh(ctx)
	if err != nil {
		return err
	}
	defer func() {
		<-sched.Stop().Done()
	}()

	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

// startRefresh schedules periodic regeneration. The first generation runs
// immediately in the background so the cache is warm before the first
// request in the common case.
func (s *Server) startRefresh(ctx context.Context) (*cron.Cron, error) {
	loc, err := s.cfg.Location()
	if err != nil {
		return nil, err
	}
	c := cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{}))
	refresh := func() {
		if _, err := s.regenerate(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}
	if _, err := c.AddFunc(s.cfg.RefreshCron, refresh); err != nil {
		return nil, err
	}
	c.Start()
	go refresh()
	appLog.Info("candidate refresh scheduled", "cron", s.cfg.RefreshCron, "timezone", loc.String())
	return c, nil
}

// cronLogger adapts the package logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

func (s *Server) registerRoutes() {
	s.handle("GET /health", s.handleHealth)
	s.handle("GET /api/candidates", s.handleCandidates)
	s.handle("GET /api/candidates/{index}/layout", s.handleLayout)
	s.handle("POST /api/candidates/{index}/select", s.handleSelect)
	s.handle("DELETE /api/candidates/{index}", s.handleDelete)
	s.handle("GET /preview/{index}", s.handlePreview)
	s.handle("GET /metrics", s.metrics.Handler().ServeHTTP)
	s.handle("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/preview/0", http.StatusFound)
	})
}

// handle registers h and records its duration under the route pattern.
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	_, route, _ := strings.Cut(pattern, " ")
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.ObserveHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// pathIndex parses the {index} path value. ok is false after an error
// response has been written.
func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "candidate index must be an integer")
		return 0, false
	}
	return index, true
}

// layoutParams overlays the width, row and lines query parameters on the
// configured defaults.
func (s *Server) layoutParams(r *http.Request) (layout.Params, error) {
	p := s.cfg.Layout
	q := r.URL.Query()
	if v := q.Get("width"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, errors.New("width must be a number")
		}
		p.ViewportWidth = f
	}
	if v := q.Get("row"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, errors.New("row must be a number")
		}
		p.RowHeight = f
	}
	if v := q.Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.New("lines must be an integer")
		}
		p.AxisLineCount = n
	}
	return p, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
