package opt

import (
	"fmt"
	"math"
	"strings"
)

// Detour summarises a local change of a route for marginal pricing: the
// travel of the arcs added and removed, and the arrival delay at the first
// unchanged downstream node together with the waiting that can absorb it.
type Detour struct {
	Added   float64
	Removed float64
	Shift   float64
	Waiting float64
}

// CostDelegate is the pluggable objective. Implementations must be
// deterministic and agree between incremental and full evaluation.
type CostDelegate interface {
	Name() string
	// EvaluateRoute prices a route from scratch.
	EvaluateRoute(inst *Instance, r Route) float64
	// EvaluateTour returns the tour's tracked cost, or recomputes it when full is set.
	EvaluateTour(t *Tour, full bool) float64
	// EvaluateDetour prices a local change.
	EvaluateDetour(d Detour) float64
	// EvaluateMove returns the marginal cost of applying m to t.
	EvaluateMove(t *Tour, m Move) float64
}

// IncrementalCost is implemented by delegates whose tour cost can be updated
// from the arcs around an inserted or removed node alone.
type IncrementalCost interface {
	InsertionDelta(inst *Instance, pred, node, succ NodeID) float64
}

// RouteTotals aggregates the forward schedule of a route.
type RouteTotals struct {
	Travel   float64
	Duration float64
	Lateness float64
}

// TotalsCost is implemented by delegates that price a route from its totals
// alone. The split arc builder relies on it to price arcs in constant time.
type TotalsCost interface {
	EvaluateTotals(t RouteTotals) float64
}

const (
	ObjectiveDistance    = "distance"
	ObjectiveWorkingTime = "workingTime"
)

// NewCostDelegate resolves an objective name.
func NewCostDelegate(objective string) (CostDelegate, error) {
	switch strings.ToLower(objective) {
	case "", strings.ToLower(ObjectiveDistance):
		return TravelCost{}, nil
	case strings.ToLower(ObjectiveWorkingTime):
		return WorkingTime{}, nil
	}
	return nil, fmt.Errorf("unknown objective %q (allowed: %s, %s)", objective, ObjectiveDistance, ObjectiveWorkingTime)
}

// TravelCost is the total travel of a route.
type TravelCost struct{}

func (TravelCost) Name() string { return ObjectiveDistance }

func (TravelCost) EvaluateRoute(inst *Instance, r Route) float64 {
	total := 0.0
	for i := 1; i < r.Len(); i++ {
		total += inst.Travel(r.NodeAt(i-1), r.NodeAt(i))
	}
	return total
}

func (c TravelCost) EvaluateTour(t *Tour, full bool) float64 { return evaluateTour(c, t, full) }

func (TravelCost) EvaluateDetour(d Detour) float64 { return d.Added - d.Removed }

func (TravelCost) EvaluateTotals(t RouteTotals) float64 { return t.Travel }

func (c TravelCost) EvaluateMove(t *Tour, m Move) float64 { return moveCost(c, t, m) }

func (TravelCost) InsertionDelta(inst *Instance, pred, node, succ NodeID) float64 {
	return inst.Travel(pred, node) + inst.Travel(node, succ) - inst.Travel(pred, succ)
}

// WorkingTime is the time between leaving home and returning, waiting
// included. Lateness at soft windows is charged at LatePenalty per time unit.
type WorkingTime struct {
	LatePenalty float64
}

func (WorkingTime) Name() string { return ObjectiveWorkingTime }

func (w WorkingTime) EvaluateRoute(inst *Instance, r Route) float64 {
	if t, ok := r.(*Tour); ok {
		// the tour's own schedule honours frozen history
		n := len(t.nodes)
		cost := t.arrival[n-1] - t.departure[0]
		if w.LatePenalty > 0 {
			for i, id := range t.nodes {
				cost += w.LatePenalty * inst.nodes[id].Window.Lateness(t.start[i])
			}
		}
		return cost
	}
	return w.EvaluateTotals(forwardTotals(inst, r))
}

func (w WorkingTime) EvaluateTotals(t RouteTotals) float64 {
	return t.Duration + w.LatePenalty*t.Lateness
}

func (w WorkingTime) EvaluateTour(t *Tour, full bool) float64 { return evaluateTour(w, t, full) }

// EvaluateDetour is the delay of the return home: the arrival shift minus the
// waiting that absorbs it downstream.
func (WorkingTime) EvaluateDetour(d Detour) float64 { return math.Max(0, d.Shift-d.Waiting) }

func (w WorkingTime) EvaluateMove(t *Tour, m Move) float64 { return moveCost(w, t, m) }

func evaluateTour(d CostDelegate, t *Tour, full bool) float64 {
	if !full && t.cost.Name() == d.Name() {
		return t.TotalCost()
	}
	t.ensure()
	return d.EvaluateRoute(t.inst, t)
}

// moveCost prices single insertions from the cached schedule and every other
// move by evaluating the candidate sequence.
func moveCost(d CostDelegate, t *Tour, m Move) float64 {
	if ins, ok := m.(InsertionMove); ok && !ins.WithDepot() {
		det, ok := t.insertionDetour(ins.Pred, ins.Node, ins.Succ)
		if !ok {
			return math.Inf(1)
		}
		return d.EvaluateDetour(det)
	}
	cand, ok := candidate(t, m)
	if !ok {
		return math.Inf(1)
	}
	return d.EvaluateRoute(t.inst, cand) - d.EvaluateTour(t, false)
}

// insertionDetour describes inserting node between the adjacent pred and succ.
func (t *Tour) insertionDetour(pred, node, succ NodeID) (Detour, bool) {
	p := t.position(pred, false)
	s := t.position(succ, true)
	if p < 0 || s != p+1 {
		return Detour{}, false
	}
	t.ensure()
	in := t.inst
	nd := &in.nodes[node]
	arr := t.departure[p] + in.Travel(pred, node)
	dep := nd.Window.EarliestStart(arr) + nd.Service
	return Detour{
		Added:   in.Travel(pred, node) + in.Travel(node, succ),
		Removed: in.Travel(pred, succ),
		Shift:   dep + in.Travel(node, succ) - t.arrival[s],
		Waiting: t.waitingFrom(s),
	}, true
}
