package api

import (
	"errors"
	"net/http"
	"time"

	"techroute/internal/config"
	"techroute/internal/metrics"
	"techroute/internal/model"
	"techroute/internal/opt"
)

// Event types published on the solution stream.
const (
	EventSolutionCreated = "solution.created"
	EventRequestInserted = "request.inserted"
)

// solve handles POST /v1/solutions.
func (s *Server) solve(w http.ResponseWriter, r *http.Request) {
	var req model.SolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	in, _, err := s.Store.GetInstance(r.Context(), req.InstanceID)
	if err != nil {
		writeStoreError(w, r, "Instance", err)
		return
	}
	c, err := model.Compile(in)
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Stored instance is invalid", err.Error(), r.URL.Path)
		return
	}
	opts, err := config.DecodeSolverOptions(req.Options, s.Config.Solver)
	if err == nil {
		err = validateOptions(opts)
	}
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solver options", err.Error(), r.URL.Path)
		return
	}
	solver, err := opt.NewSolver(c.Instance, opts, s.Logger)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solver options", err.Error(), r.URL.Path)
		return
	}
	giant, err := c.Giant(req.GiantTour)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid giant tour", err.Error(), r.URL.Path)
		return
	}

	if req.Technician != "" {
		s.splitPreview(w, r, c, solver, giant, req.Technician)
		return
	}

	algo := req.Algorithm
	if algo == "" {
		algo = opt.AlgorithmInsertion
	}
	sol, m, err := solver.Solve(algo, giant)
	metrics.ObserveRun(algo, m, err)
	if err != nil {
		writeSolveError(w, r, err)
		return
	}
	out := model.SolutionOut{InstanceID: req.InstanceID, Algorithm: algo, Metrics: m, Options: opts}
	c.Encode(sol, &out)
	out, err = s.Store.SaveSolution(r.Context(), out)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save solution failed", err.Error(), r.URL.Path)
		return
	}
	if err := s.Store.SaveRunMetrics(r.Context(), out.ID, algo, m); err != nil {
		s.Logger.Printf("level=warn op=store.run_metrics solution=%s err=%v", out.ID, err)
	}
	s.publish(out.ID, EventSolutionCreated, map[string]any{
		"algorithm": algo, "cost": out.Cost, "tours": len(out.Tours), "unserved": len(out.Unserved),
	})
	writeJSON(w, http.StatusCreated, out)
}

// splitPreview splits the giant tour for one technician. A technician may
// need several trips, so the tours are returned but not stored.
func (s *Server) splitPreview(w http.ResponseWriter, r *http.Request, c *model.Compiled, solver *opt.Solver, giant []opt.NodeID, techID string) {
	k, ok := c.Technician(techID)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Unknown technician", techID, r.URL.Path)
		return
	}
	if len(giant) == 0 {
		giant = opt.ByDeadline(c.Instance, c.Instance.Requests())
	}
	tours, m, err := solver.SplitTour(giant, k)
	metrics.ObserveRun(opt.AlgorithmSplit, m, err)
	if err != nil {
		writeSolveError(w, r, err)
		return
	}
	if len(tours) == 0 {
		writeProblem(w, http.StatusUnprocessableEntity, "No feasible split", "the giant tour cannot be split for "+techID, r.URL.Path)
		return
	}
	out := make([]model.TourOut, 0, len(tours))
	cost := 0.0
	for _, t := range tours {
		out = append(out, c.EncodeTour(t))
		cost += t.TotalCost()
	}
	writeJSON(w, http.StatusOK, map[string]any{"technician": techID, "tours": out, "cost": cost, "metrics": m})
}

// insert handles POST /v1/solutions/{id}/insert.
func (s *Server) insert(w http.ResponseWriter, r *http.Request, id string) {
	var req model.InsertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.Request == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid insert request", "request is required", r.URL.Path)
		return
	}
	unlock := s.lock(id)
	defer unlock()

	out, err := s.Store.GetSolution(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "Solution", err)
		return
	}
	in, _, err := s.Store.GetInstance(r.Context(), out.InstanceID)
	if err != nil {
		writeStoreError(w, r, "Instance", err)
		return
	}
	c, err := model.Compile(in)
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Stored instance is invalid", err.Error(), r.URL.Path)
		return
	}
	node, ok := c.Request(req.Request)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Unknown request", req.Request, r.URL.Path)
		return
	}
	solver, err := opt.NewSolver(c.Instance, out.Options, s.Logger)
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Stored options are invalid", err.Error(), r.URL.Path)
		return
	}
	sol, err := c.Restore(out, solver.Cost())
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Stored solution is invalid", err.Error(), r.URL.Path)
		return
	}
	if sol.IsServed(node) {
		writeProblem(w, http.StatusConflict, "Request already served", req.Request, r.URL.Path)
		return
	}
	start := time.Now()
	move, m, err := solver.Insert(sol, node)
	m.DurationMs = time.Since(start).Milliseconds()
	if err == nil && move.Feasible() {
		m.Served = len(sol.Served())
		m.Unserved = len(sol.Unserved())
		m.Cost = sol.Cost()
	}
	metrics.ObserveRun("insert", m, err)
	if err != nil {
		writeSolveError(w, r, err)
		return
	}
	if !move.Feasible() {
		writeProblem(w, http.StatusUnprocessableEntity, "No feasible insertion", req.Request, r.URL.Path)
		return
	}
	c.Encode(sol, &out)
	out, err = s.Store.SaveSolution(r.Context(), out)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save solution failed", err.Error(), r.URL.Path)
		return
	}
	if err := s.Store.SaveRunMetrics(r.Context(), out.ID, "insert", m); err != nil {
		s.Logger.Printf("level=warn op=store.run_metrics solution=%s err=%v", out.ID, err)
	}
	tech := c.TechnicianID(sol.Tour(move.Tour).Technician())
	s.publish(out.ID, EventRequestInserted, map[string]any{
		"request": req.Request, "technician": tech, "delta": move.Delta,
		"depotTrip": move.WithDepot(), "cost": out.Cost,
	})
	writeJSON(w, http.StatusOK, map[string]any{"solution": out, "technician": tech, "delta": move.Delta})
}

func (s *Server) publish(solutionID, typ string, data map[string]any) {
	s.Broker.Publish(solutionID, model.Event{
		Type:       typ,
		SolutionID: solutionID,
		TS:         time.Now().UTC().Format(time.RFC3339),
		Data:       data,
	})
	metrics.EventsPublished.WithLabelValues(typ).Inc()
}

// writeSolveError maps precondition failures to 400 and the rest to 500.
func writeSolveError(w http.ResponseWriter, r *http.Request, err error) {
	for _, pre := range []error{opt.ErrUnknownNode, opt.ErrAlreadyVisited, opt.ErrUnknownTechnician, opt.ErrInvalidInstance} {
		if errors.Is(err, pre) {
			writeProblem(w, http.StatusBadRequest, "Invalid solve input", err.Error(), r.URL.Path)
			return
		}
	}
	writeProblem(w, http.StatusInternalServerError, "Solve failed", err.Error(), r.URL.Path)
}
