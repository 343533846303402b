package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"techroute/internal/model"
	"techroute/internal/store"
)

// InstancesHandler handles POST/GET /v1/instances
func (s *Server) InstancesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in model.InstanceIn
		if err := decodeJSON(w, r, &in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if _, err := model.Compile(in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid instance", err.Error(), r.URL.Path)
			return
		}
		out, err := s.Store.CreateInstance(r.Context(), in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create instance failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		cursor, limit := pageParams(r)
		items, next, err := s.Store.ListInstances(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List instances failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// InstanceByIDHandler handles GET /v1/instances/{id}
func (s *Server) InstanceByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	in, out, err := s.Store.GetInstance(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "Instance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": out, "instance": in})
}

// SolutionsHandler handles POST/GET /v1/solutions
func (s *Server) SolutionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.solve(w, r)
	case http.MethodGet:
		cursor, limit := pageParams(r)
		items, next, err := s.Store.ListSolutions(r.Context(), r.URL.Query().Get("instanceId"), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List solutions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SolutionByIDHandler handles /v1/solutions/{id} and its /insert, /events
// and /metrics subresources.
func (s *Server) SolutionByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/solutions/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = strings.Join(parts[1:], "/")
	}
	switch sub {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		sol, err := s.Store.GetSolution(r.Context(), id)
		if err != nil {
			writeStoreError(w, r, "Solution", err)
			return
		}
		writeJSON(w, http.StatusOK, sol)
	case "insert":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.insert(w, r, id)
	case "events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.EventsWSHandler(w, r, id)
	case "metrics":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		runs, err := s.Store.ListRunMetrics(r.Context(), id)
		if err != nil {
			writeStoreError(w, r, "Solution", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"solutionId": id, "runs": runs})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func pageParams(r *http.Request) (string, int) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	return r.URL.Query().Get("cursor"), limit
}

func writeStoreError(w http.ResponseWriter, r *http.Request, entity string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, entity+" not found", err.Error(), r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, "Get "+strings.ToLower(entity)+" failed", err.Error(), r.URL.Path)
}
