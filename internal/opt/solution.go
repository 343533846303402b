package opt

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// Solution holds one tour per technician and the request -> tour mapping.
// Tours are owned by the solution and addressed by technician id.
type Solution struct {
	inst     *Instance
	cost     CostDelegate
	tours    []*Tour
	visiting []int // node id -> tour index, -1 when unserved
}

// NewSolution creates empty tours for the whole fleet.
func NewSolution(inst *Instance, cost CostDelegate) (*Solution, error) {
	if cost == nil {
		cost = TravelCost{}
	}
	s := &Solution{
		inst:     inst,
		cost:     cost,
		tours:    make([]*Tour, inst.TechnicianCount()),
		visiting: make([]int, inst.NodeCount()),
	}
	for i := range s.visiting {
		s.visiting[i] = -1
	}
	for k := range s.tours {
		t, err := NewTour(inst, k, cost)
		if err != nil {
			return nil, fmt.Errorf("new solution: %w", err)
		}
		s.tours[k] = t
	}
	return s, nil
}

// Instance is the problem the solution belongs to.
func (s *Solution) Instance() *Instance { return s.inst }

// CostDelegate is the objective the tours track.
func (s *Solution) CostDelegate() CostDelegate { return s.cost }

// Tour returns the tour of technician k, or nil.
func (s *Solution) Tour(k int) *Tour {
	if k < 0 || k >= len(s.tours) {
		return nil
	}
	return s.tours[k]
}

// Tours lists every tour in technician order.
func (s *Solution) Tours() []*Tour { return s.tours }

// VisitingTourIndex is the technician serving node, or -1.
func (s *Solution) VisitingTourIndex(node NodeID) int {
	if !s.inst.validNode(node) {
		return -1
	}
	return s.visiting[node]
}

// VisitingTour is the tour serving node, or nil.
func (s *Solution) VisitingTour(node NodeID) *Tour {
	return s.Tour(s.VisitingTourIndex(node))
}

// IsServed reports whether node is assigned to a tour.
func (s *Solution) IsServed(node NodeID) bool { return s.VisitingTourIndex(node) >= 0 }

func (s *Solution) markServed(node NodeID, k int) { s.visiting[node] = k }

// MarkUnserved drops the mapping of node without touching any tour.
func (s *Solution) MarkUnserved(node NodeID) {
	if s.inst.validNode(node) {
		s.visiting[node] = -1
	}
}

// Served lists the assigned requests.
func (s *Solution) Served() []NodeID {
	return lo.Filter(s.inst.requests, func(id NodeID, _ int) bool { return s.visiting[id] >= 0 })
}

// Unserved lists the requests no tour visits.
func (s *Solution) Unserved() []NodeID {
	return lo.Filter(s.inst.requests, func(id NodeID, _ int) bool { return s.visiting[id] < 0 })
}

// Cost sums the tracked cost of every tour.
func (s *Solution) Cost() float64 {
	return lo.SumBy(s.tours, func(t *Tour) float64 { return t.TotalCost() })
}

// Insert places node before succ in tour k and marks it served.
func (s *Solution) Insert(k int, succ, node NodeID) error {
	t := s.Tour(k)
	if t == nil {
		return fmt.Errorf("insert %d: tour %d: %w", node, k, ErrUnknownTechnician)
	}
	if s.IsServed(node) {
		return fmt.Errorf("insert %d: served by tour %d: %w", node, s.visiting[node], ErrAlreadyVisited)
	}
	if err := t.InsertBefore(succ, node); err != nil {
		return err
	}
	if s.inst.IsRequest(node) {
		s.markServed(node, k)
	}
	return nil
}

// Remove takes node out of its tour and marks it unserved.
func (s *Solution) Remove(node NodeID) error {
	t := s.VisitingTour(node)
	if t == nil {
		return fmt.Errorf("remove %d: %w", node, ErrNotInTour)
	}
	if err := t.Remove(node); err != nil {
		return err
	}
	s.visiting[node] = -1
	return nil
}

// SetTour replaces the tour of its technician and remaps every request.
func (s *Solution) SetTour(t *Tour) error {
	k := t.Technician()
	old := s.Tour(k)
	if old == nil {
		return fmt.Errorf("set tour: %w", ErrUnknownTechnician)
	}
	for _, id := range t.Requests() {
		if j := s.visiting[id]; j >= 0 && j != k {
			return fmt.Errorf("set tour %d: request %d served by tour %d: %w", k, id, j, ErrAlreadyVisited)
		}
	}
	for _, id := range old.Requests() {
		s.visiting[id] = -1
	}
	for _, id := range t.Requests() {
		s.visiting[id] = k
	}
	s.tours[k] = t
	return nil
}

// Apply performs m on its tour. Insertions should go through
// InsertionSearch.Execute; Apply handles them without depot bookkeeping checks
// or debug validation. A merge empties the source tour.
func (s *Solution) Apply(m Move) error {
	t := s.Tour(m.TourID())
	if t == nil {
		return fmt.Errorf("apply %s: %w", m, ErrUnknownTechnician)
	}
	switch m := m.(type) {
	case InsertionMove:
		if err := s.Insert(m.Tour, m.Succ, m.Node); err != nil {
			return fmt.Errorf("apply %s: %w", m, err)
		}
		if m.WithDepot() {
			if err := t.InsertBefore(m.DepotSucc, s.inst.mainDepot); err != nil {
				if rerr := s.Remove(m.Node); rerr != nil {
					err = errors.Join(err, fmt.Errorf("roll back %d: %w", m.Node, rerr))
				}
				return fmt.Errorf("apply %s: %w", m, err)
			}
		}
	case RemovalMove:
		if s.inst.IsRequest(m.Node) {
			return s.Remove(m.Node)
		}
		return t.Remove(m.Node)
	case ReversalMove:
		return t.Reverse(m.From, m.To)
	case SwapMove:
		return t.Swap(m.A, m.B)
	case MergeMove:
		src := m.Source
		if src == nil || src == t || s.Tour(src.Technician()) != src {
			return fmt.Errorf("apply %s: source is not a tour of this solution: %w", m, ErrNotInTour)
		}
		for _, id := range mergedNodes(t, src) {
			if err := t.InsertBefore(Undefined, id); err != nil {
				return fmt.Errorf("apply %s: %w", m, err)
			}
			if s.inst.IsRequest(id) {
				s.visiting[id] = t.Technician()
			}
		}
		empty, err := NewTour(s.inst, src.Technician(), s.cost)
		if err != nil {
			return err
		}
		s.tours[src.Technician()] = empty
	}
	return nil
}

// Clone returns a deep copy; tours are cloned as well.
func (s *Solution) Clone() *Solution {
	c := &Solution{
		inst:     s.inst,
		cost:     s.cost,
		tours:    lo.Map(s.tours, func(t *Tour, _ int) *Tour { return t.Clone() }),
		visiting: append([]int(nil), s.visiting...),
	}
	return c
}

// Check is the detailed solution checker. It verifies the request mapping in
// both directions, runs every tour through h (when non-nil) and compares the
// cached schedule and cost of unfrozen tours with a from-scratch evaluation.
// Every mismatch found is joined into the returned error.
func (s *Solution) Check(h *ConstraintHandler) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInconsistent))
	}
	for k, t := range s.tours {
		if t.Technician() != k {
			fail("tour %d belongs to technician %d", k, t.Technician())
			continue
		}
		for _, id := range t.Requests() {
			if s.visiting[id] != k {
				fail("request %d in tour %d mapped to %d", id, k, s.visiting[id])
			}
		}
		if h != nil {
			if level := h.CheckRoute(s.inst, t); level != Feasible {
				fail("tour %d %s", k, level)
			}
		}
		if t.FrozenUpTo() >= 0 {
			continue
		}
		ref := EvaluateSchedule(s.inst, t)
		for i, want := range ref.Visits {
			got := t.VisitAt(i)
			if !ApproxEqual(got.Start, want.Start) || !ApproxEqual(got.Slack, want.Slack) {
				fail("tour %d position %d: start %g slack %g, expected %g %g", k, i, got.Start, got.Slack, want.Start, want.Slack)
			}
		}
		// a plain sequence keeps the delegate off the tour's cached schedule
		full := t.cost.EvaluateRoute(s.inst, sequence{tech: t.tech, nodes: t.Nodes()})
		if tracked := t.TotalCost(); !ApproxEqual(tracked, full) {
			fail("tour %d cost %g, expected %g", k, tracked, full)
		}
	}
	for id, k := range s.visiting {
		if k < 0 {
			continue
		}
		if t := s.Tour(k); t == nil || !t.IsVisited(NodeID(id)) {
			fail("request %d mapped to tour %d but not visited", id, k)
		}
	}
	return errors.Join(errs...)
}
