// Package metrics holds the Prometheus collectors of the planner and the
// web server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "weekplan"

// Metrics is a private registry with the planner collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	generations        *prometheus.CounterVec
	generationDuration prometheus.Histogram
	schedules          prometheus.Counter
	unsatisfied        *prometheus.CounterVec
	malformed          *prometheus.CounterVec
	selections         prometheus.Counter
	requestDuration    *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	generations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generations_total",
		Help:      "Candidate generations by outcome",
	}, []string{"outcome"})

	generationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Time spent fetching inputs and generating candidates",
		Buckets:   prometheus.DefBuckets,
	})

	schedules := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedules_generated_total",
		Help:      "Candidate schedules produced",
	})

	unsatisfied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unsatisfied_requests_total",
		Help:      "Request occurrences that could not be placed, by priority",
	}, []string{"priority"})

	malformed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_records_total",
		Help:      "Input records skipped during normalization, by kind",
	}, []string{"kind"})

	selections := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "selections_total",
		Help:      "Schedules selected and persisted",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	registry.MustRegister(
		generations, generationDuration, schedules, unsatisfied, malformed, selections, requestDuration,
		collectors.NewGoCollector(),
	)

	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		generations:        generations,
		generationDuration: generationDuration,
		schedules:          schedules,
		unsatisfied:        unsatisfied,
		malformed:          malformed,
		selections:         selections,
		requestDuration:    requestDuration,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveGeneration records one generation attempt.
func (m *Metrics) ObserveGeneration(elapsed time.Duration, schedules int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.generations.WithLabelValues(outcome).Inc()
	m.generationDuration.Observe(elapsed.Seconds())
	m.schedules.Add(float64(schedules))
}

// AddUnsatisfied counts unplaced occurrences of the given priority label.
func (m *Metrics) AddUnsatisfied(priority string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unsatisfied.WithLabelValues(priority).Add(float64(n))
}

// AddMalformed counts skipped records of the given kind label.
func (m *Metrics) AddMalformed(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.malformed.WithLabelValues(kind).Add(float64(n))
}

// IncSelections counts a persisted selection.
func (m *Metrics) IncSelections() {
	if m == nil {
		return
	}
	m.selections.Inc()
}

// ObserveHTTPRequest records one handled request. route is the mux
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
