package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"techroute/internal/metrics"
)

// Routes builds the API mux wrapped in the middleware chain.
func (s *Server) Routes() http.Handler {
	metrics.RegisterDefault()
	mux := http.NewServeMux()

	// Instances
	mux.HandleFunc("/v1/instances", s.InstancesHandler)
	mux.HandleFunc("/v1/instances/", s.InstanceByIDHandler)

	// Solutions
	mux.HandleFunc("/v1/solutions", s.SolutionsHandler)
	mux.HandleFunc("/v1/solutions/", s.SolutionByIDHandler) // includes /insert, /events, /metrics

	// Ops
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/debug/info", s.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return Middleware(mux, NewLimiter(s.Config.Server.RateRPS, s.Config.Server.RateBurst), s.Logger)
}
