package opt

import (
	"errors"
	"fmt"
	"slices"
)

// InsertionSearch finds and applies cheapest feasible insertions.
type InsertionSearch struct {
	Instance    *Instance
	Cost        CostDelegate
	Constraints *ConstraintHandler
	// Prune stops a scan at the first Infeasible candidate.
	Prune bool
	// Best scans for the global minimum; otherwise the first feasible
	// candidate is returned.
	Best bool
	// Debug runs the solution checker after every executed move.
	Debug bool
	// Strict panics on precondition violations and failed checks.
	Strict bool
	// Secondary scores ties between equal-cost candidates, lower is better.
	Secondary func(t *Tour, node NodeID) float64
	Logger    Logger
	Metrics   *RunMetrics
}

// NewInsertionSearch configures a best-insertion search with pruning.
func NewInsertionSearch(inst *Instance, cost CostDelegate, h *ConstraintHandler) *InsertionSearch {
	if cost == nil {
		cost = TravelCost{}
	}
	if h == nil {
		h = DefaultConstraints()
	}
	return &InsertionSearch{Instance: inst, Cost: cost, Constraints: h, Prune: true, Best: true}
}

func (s *InsertionSearch) evaluate(t *Tour, m InsertionMove) InsertionMove {
	m.Delta = s.Cost.EvaluateMove(t, m)
	s.Metrics.add(func(r *RunMetrics) { r.InsertionsEvaluated++ })
	return m
}

func (s *InsertionSearch) check(t *Tour, m Move) Feasibility {
	s.Metrics.add(func(r *RunMetrics) { r.FeasibilityChecks++ })
	return s.Constraints.Check(t, m)
}

// FindInsertion returns the cheapest feasible insertion of node into t, or an
// infeasible move. When no plain insertion works and the tour has no main
// depot visit yet, insertions combined with a depot trip are tried.
func (s *InsertionSearch) FindInsertion(t *Tour, node NodeID) InsertionMove {
	best := InfeasibleInsertion(node, t.tech)
	if t.IsVisited(node) {
		_ = violation(s.Strict, fmt.Errorf("find insertion %d: %w", node, ErrAlreadyVisited))
		return best
	}
	if !s.Instance.Compatible(t.tech, node) {
		return best
	}
	secondary := 0.0
	if s.Secondary != nil {
		secondary = s.Secondary(t, node)
	}
	t.ensure()
	n := len(t.nodes)
	for p := max(0, t.frozen); p < n-1; p++ {
		m := s.evaluate(t, InsertionMove{
			Node: node, Tour: t.tech,
			Pred: t.nodes[p], Succ: t.nodes[p+1],
			DepotPred: Undefined, DepotSucc: Undefined,
			Secondary: secondary,
		})
		if best.Feasible() && Compare(m, best) >= 0 {
			continue
		}
		level := s.check(t, m)
		if level == Feasible {
			best = m
			if !s.Best {
				return best
			}
			continue
		}
		if level == Infeasible && s.Prune {
			s.Metrics.add(func(r *RunMetrics) { r.Pruned++ })
			break
		}
	}
	if best.Feasible() || !s.Instance.allowDepotTrips || t.MainDepotVisited() {
		return best
	}
	return s.findDepotInsertion(t, node, secondary)
}

// findDepotInsertion tries every depot edge d (depot between positions d-1
// and d) with every node position k >= d after it, walking the shifted
// schedule once per depot edge. Candidates are then verified in cost order.
func (s *InsertionSearch) findDepotInsertion(t *Tour, node NodeID, secondary float64) InsertionMove {
	s.Metrics.add(func(r *RunMetrics) { r.DepotScans++ })
	in := t.inst
	depot := in.mainDepot
	dn := &in.nodes[depot]
	nd := &in.nodes[node]
	capacity := in.techs[t.tech].Capacity
	cc := in.compartments
	n := len(t.nodes)
	last := (n - 1) * cc

	var found []InsertionMove
	for d := max(1, t.frozen+1); d < n; d++ {
		dp, ds := t.nodes[d-1], t.nodes[d]
		depStart := dn.Window.EarliestStart(t.departure[d-1] + in.Travel(dp, depot))
		if !dn.Window.Feasible(depStart) {
			if s.Prune {
				break
			}
			continue
		}
		// consumption after the refill: requests d..n-2 plus the new node
		fits := true
		for c := 0; c < cc; c++ {
			if t.parts[last+c]-t.parts[(d-1)*cc+c]+nd.Parts[c] > capacity[c]+Eps {
				fits = false
				break
			}
		}
		if !fits {
			continue
		}
		pred, dep := depot, depStart+dn.Service
		for k := d; k < n; k++ {
			succ := t.nodes[k]
			start := nd.Window.EarliestStart(dep + in.Travel(pred, node))
			if !nd.Window.Feasible(start) {
				break
			}
			arr := start + nd.Service + in.Travel(node, succ)
			if in.nodes[succ].Window.EarliestStart(arr) <= t.latest[k]+Eps {
				det := Detour{
					Added:   in.Travel(dp, depot) + in.Travel(pred, node) + in.Travel(node, succ),
					Removed: in.Travel(dp, ds),
					Shift:   arr - t.arrival[k],
					Waiting: t.waitingFrom(k),
				}
				m := InsertionMove{
					Node: node, Tour: t.tech,
					Pred: t.nodes[k-1], Succ: succ,
					DepotPred: dp, DepotSucc: node,
					Secondary: secondary,
				}
				if k > d {
					det.Added += in.Travel(depot, ds)
					det.Removed += in.Travel(pred, succ)
					m.DepotSucc = ds
				}
				m.Delta = s.Cost.EvaluateDetour(det)
				s.Metrics.add(func(r *RunMetrics) { r.InsertionsEvaluated++ })
				found = append(found, m)
			}
			if k == n-1 {
				break
			}
			// advance past succ without the node
			sn := &in.nodes[succ]
			st := sn.Window.EarliestStart(dep + in.Travel(pred, succ))
			if !sn.Window.Feasible(st) {
				break
			}
			pred, dep = succ, st+sn.Service
		}
	}
	slices.SortStableFunc(found, func(a, b InsertionMove) int { return Compare(a, b) })
	for _, m := range found {
		if s.check(t, m) == Feasible {
			return m
		}
	}
	return InfeasibleInsertion(node, t.tech)
}

// FindBestInsertion scans every tour of sol for the cheapest feasible
// insertion of node.
func (s *InsertionSearch) FindBestInsertion(sol *Solution, node NodeID) InsertionMove {
	best := InfeasibleInsertion(node, -1)
	if !s.Instance.IsRequest(node) {
		_ = violation(s.Strict, fmt.Errorf("find best insertion %d: %w", node, ErrUnknownNode))
		return best
	}
	if sol.IsServed(node) {
		_ = violation(s.Strict, fmt.Errorf("find best insertion %d: %w", node, ErrAlreadyVisited))
		return best
	}
	for _, t := range sol.tours {
		m := s.FindInsertion(t, node)
		if m.Feasible() && (!best.Feasible() || Compare(m, best) < 0) {
			best = m
		}
	}
	return best
}

// Execute applies m to its tour in sol, depot trip included, and marks the
// request served. With Debug set the solution is rechecked afterwards;
// inconsistencies are logged, and raised only in Strict mode.
func (s *InsertionSearch) Execute(sol *Solution, m InsertionMove) error {
	if !m.Feasible() {
		return fmt.Errorf("execute %s: %w", m, ErrInfeasibleMove)
	}
	t := sol.Tour(m.Tour)
	if t == nil {
		return violation(s.Strict, fmt.Errorf("execute %s: %w", m, ErrUnknownTechnician))
	}
	if sol.IsServed(m.Node) {
		return violation(s.Strict, fmt.Errorf("execute %s: %w", m, ErrAlreadyVisited))
	}
	if err := t.InsertBefore(m.Succ, m.Node); err != nil {
		return violation(s.Strict, fmt.Errorf("execute %s: %w", m, err))
	}
	if m.WithDepot() {
		if err := t.InsertBefore(m.DepotSucc, s.Instance.mainDepot); err != nil {
			if rerr := t.Remove(m.Node); rerr != nil {
				err = errors.Join(err, fmt.Errorf("roll back %d: %w", m.Node, rerr))
			}
			return violation(s.Strict, fmt.Errorf("execute %s: %w", m, err))
		}
		s.Metrics.add(func(r *RunMetrics) { r.DepotTrips++ })
	}
	t.Settle()
	sol.markServed(m.Node, m.Tour)
	if s.Debug {
		if err := sol.Check(s.Constraints); err != nil {
			logf(s.Logger, "level=warn op=execute move=%q err=%v", m.String(), err)
			if s.Strict {
				panic(err)
			}
		}
	}
	return nil
}
