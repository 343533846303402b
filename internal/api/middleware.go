package api

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"techroute/internal/metrics"
)

// statusRecorder captures the response code and keeps the writer hijackable
// for WebSocket upgrades.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// routeLabel collapses ids so metric labels stay bounded.
func routeLabel(path string) string {
	for _, prefix := range []string{"/v1/instances/", "/v1/solutions/"} {
		if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" {
			parts := strings.SplitN(rest, "/", 2)
			if len(parts) == 2 {
				return prefix + "{id}/" + parts[1]
			}
			return prefix + "{id}"
		}
	}
	return path
}

// exemptFromLimit lists probe and scrape paths that bypass the limiter.
func exemptFromLimit(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

// Middleware wraps next with rate limiting, Prometheus metrics and access
// logs. A nil limiter disables limiting.
func Middleware(next http.Handler, limiter *rate.Limiter, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		if limiter != nil && !exemptFromLimit(r.URL.Path) && !limiter.Allow() {
			metrics.RateLimited.Inc()
			rec.Header().Set("Retry-After", "1")
			writeProblem(rec, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
		} else {
			next.ServeHTTP(rec, r)
		}
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		dur := time.Since(start)
		label := routeLabel(r.URL.Path)
		code := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, label, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, label, code).Observe(dur.Seconds())
		if logger != nil {
			logger.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
		}
	})
}

// NewLimiter builds the global token bucket; rps 0 disables it.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
