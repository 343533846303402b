package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"techroute/internal/opt"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// RateLimited counts requests rejected by the limiter
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected with 429."},
	)

	// SolverRuns counts solver runs by algorithm and outcome (ok, error)
	SolverRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_runs_total", Help: "Solver runs by algorithm and outcome."},
		[]string{"algorithm", "outcome"},
	)
	// SolverDuration records solver run durations in milliseconds
	SolverDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solver_run_duration_ms", Help: "Solver run duration in ms.", Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000}},
		[]string{"algorithm"},
	)
	// SolverWork accumulates the counters of opt.RunMetrics by kind
	SolverWork = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_work_total", Help: "Search work by algorithm and kind."},
		[]string{"algorithm", "kind"},
	)
	// Unserved tracks requests left unserved per run
	Unserved = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solver_unserved_requests", Help: "Unserved requests per solver run.", Buckets: []float64{0, 1, 2, 5, 10, 50, 100}},
		[]string{"algorithm"},
	)
	// EventsPublished counts solution events by type
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solution_events_published_total", Help: "Solution events published by type."},
		[]string{"type"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration, RateLimited)
		Registry.MustRegister(SolverRuns, SolverDuration, SolverWork, Unserved, EventsPublished)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveRun records one finished solver run. A non-nil err counts the run
// as failed and skips the work counters.
func ObserveRun(algorithm string, m opt.RunMetrics, err error) {
	if err != nil {
		SolverRuns.WithLabelValues(algorithm, "error").Inc()
		return
	}
	SolverRuns.WithLabelValues(algorithm, "ok").Inc()
	SolverDuration.WithLabelValues(algorithm).Observe(float64(m.DurationMs))
	Unserved.WithLabelValues(algorithm).Observe(float64(m.Unserved))
	for kind, n := range map[string]int{
		"insertions_evaluated": m.InsertionsEvaluated,
		"feasibility_checks":   m.FeasibilityChecks,
		"pruned":               m.Pruned,
		"depot_scans":          m.DepotScans,
		"depot_trips":          m.DepotTrips,
		"split_arcs":           m.SplitArcs,
		"two_opt_moves":        m.TwoOptMoves,
	} {
		SolverWork.WithLabelValues(algorithm, kind).Add(float64(n))
	}
}
