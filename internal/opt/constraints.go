package opt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Feasibility grades a candidate move. The order matters: the combined level
// of several constraints is the minimum of the individual levels.
type Feasibility int

const (
	// Infeasible: the move fails and so does the same move at any later
	// position of the tour. Insertion scans may stop.
	Infeasible Feasibility = iota
	// ForwardFeasible: the move fails at or after the mutation point while the
	// prefix stays consistent. Later positions may still work.
	ForwardFeasible
	// Feasible: the move can be applied as is.
	Feasible
)

func (f Feasibility) String() string {
	switch f {
	case Infeasible:
		return "infeasible"
	case ForwardFeasible:
		return "forward-feasible"
	case Feasible:
		return "feasible"
	}
	return fmt.Sprintf("feasibility(%d)", int(f))
}

// Constraint is one independent feasibility rule.
type Constraint interface {
	Name() string
	// Check grades m against the cached state of t without mutating it.
	Check(t *Tour, m Move) Feasibility
	// CheckRoute validates a complete route from scratch.
	CheckRoute(inst *Instance, r Route) Feasibility
	// Explain describes why m is not feasible, or returns "".
	Explain(t *Tour, m Move) string
}

// Constraint names.
const (
	ConstraintTimeWindow = "timeWindow"
	ConstraintTools      = "tools"
	ConstraintParts      = "spareParts"
	ConstraintSkills     = "skills"
	ConstraintCapacity   = "capacity"
	ConstraintDepot      = "depot"
	ConstraintFrozen     = "frozen"
)

// ConstraintHandler is the conjunction of its constraints.
type ConstraintHandler struct {
	constraints []Constraint
}

// NewConstraintHandler combines the given constraints.
func NewConstraintHandler(cs ...Constraint) *ConstraintHandler {
	return &ConstraintHandler{constraints: slices.Clone(cs)}
}

// DefaultConstraints registers every built-in rule.
func DefaultConstraints() *ConstraintHandler {
	return NewConstraintHandler(
		SkillConstraint{},
		CapacityConstraint{},
		FrozenConstraint{},
		DepotConstraint{},
		TimeWindowConstraint{},
		ToolConstraint{},
		SparePartConstraint{},
	)
}

// Add registers c.
func (h *ConstraintHandler) Add(c Constraint) { h.constraints = append(h.constraints, c) }

// Constraints lists the registered rules.
func (h *ConstraintHandler) Constraints() []Constraint { return slices.Clone(h.constraints) }

// Except returns a handler without the named constraints.
func (h *ConstraintHandler) Except(names ...string) *ConstraintHandler {
	return &ConstraintHandler{constraints: lo.Filter(h.constraints, func(c Constraint, _ int) bool {
		return !slices.Contains(names, c.Name())
	})}
}

// Check is the minimum level over all constraints. It stops at the first
// Infeasible.
func (h *ConstraintHandler) Check(t *Tour, m Move) Feasibility {
	level := Feasible
	for _, c := range h.constraints {
		level = min(level, c.Check(t, m))
		if level == Infeasible {
			break
		}
	}
	return level
}

// CheckRoute validates r against every constraint.
func (h *ConstraintHandler) CheckRoute(inst *Instance, r Route) Feasibility {
	level := Feasible
	for _, c := range h.constraints {
		level = min(level, c.CheckRoute(inst, r))
		if level == Infeasible {
			break
		}
	}
	return level
}

// Explain joins the diagnostics of every failing constraint.
func (h *ConstraintHandler) Explain(t *Tour, m Move) string {
	var parts []string
	for _, c := range h.constraints {
		if msg := c.Explain(t, m); msg != "" {
			parts = append(parts, c.Name()+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}

// plainInsertion extracts an insertion without depot trip and its positions
// in t.
func plainInsertion(t *Tour, m Move) (ins InsertionMove, p, s int, ok bool) {
	ins, ok = m.(InsertionMove)
	if !ok || ins.WithDepot() {
		return ins, 0, 0, false
	}
	p, s = t.position(ins.Pred, false), t.position(ins.Succ, true)
	if p < 0 || s != p+1 || !t.inst.validNode(ins.Node) || t.IsVisited(ins.Node) {
		return ins, 0, 0, false
	}
	t.ensure()
	return ins, p, s, true
}

// checkCandidate validates the sequence t would have after m.
func checkCandidate(c Constraint, t *Tour, m Move) Feasibility {
	r, ok := candidate(t, m)
	if !ok {
		return Infeasible
	}
	return c.CheckRoute(t.inst, r)
}

func explain(level Feasibility, format string, args ...any) string {
	if level == Feasible {
		return ""
	}
	return fmt.Sprintf("%s: ", level) + fmt.Sprintf(format, args...)
}

// TimeWindowConstraint enforces hard windows.
type TimeWindowConstraint struct{}

func (TimeWindowConstraint) Name() string { return ConstraintTimeWindow }

// Check prices a plain insertion in constant time: the node itself must start
// in its window, and the push at succ must stay within its latest start.
func (c TimeWindowConstraint) Check(t *Tour, m Move) Feasibility {
	ins, p, s, ok := plainInsertion(t, m)
	if !ok {
		return checkCandidate(c, t, m)
	}
	in := t.inst
	nd := &in.nodes[ins.Node]
	start := nd.Window.EarliestStart(t.departure[p] + in.Travel(ins.Pred, ins.Node))
	if !nd.Window.Feasible(start) {
		return Infeasible
	}
	arr := start + nd.Service + in.Travel(ins.Node, ins.Succ)
	if in.nodes[ins.Succ].Window.EarliestStart(arr) > t.latest[s]+Eps {
		return ForwardFeasible
	}
	return Feasible
}

func (TimeWindowConstraint) CheckRoute(inst *Instance, r Route) Feasibility {
	if checkTimes(inst, r) >= 0 {
		return Infeasible
	}
	return Feasible
}

func (c TimeWindowConstraint) Explain(t *Tour, m Move) string {
	level := c.Check(t, m)
	if r, ok := candidate(t, m); ok && level != Feasible {
		if i := checkTimes(t.inst, r); i >= 0 {
			id := r.NodeAt(i)
			w := t.inst.nodes[id].Window
			return explain(level, "window [%g,%g] of node %d missed", w.Start, w.End, id)
		}
	}
	return explain(level, "window violated")
}

// ToolConstraint requires every tool of a request to be carried from home or
// picked up at an earlier main depot visit.
type ToolConstraint struct{}

func (ToolConstraint) Name() string { return ConstraintTools }

func (c ToolConstraint) Check(t *Tour, m Move) Feasibility {
	ins, p, _, ok := plainInsertion(t, m)
	if !ok {
		return checkCandidate(c, t, m)
	}
	if t.toolsReady[p] || t.inst.HasTools(t.tech, ins.Node) {
		return Feasible
	}
	if d := t.index[t.inst.mainDepot]; d > p {
		return ForwardFeasible
	}
	return Infeasible
}

func (ToolConstraint) CheckRoute(inst *Instance, r Route) Feasibility {
	if toolFailure(inst, r) >= 0 {
		return Infeasible
	}
	return Feasible
}

func (c ToolConstraint) Explain(t *Tour, m Move) string {
	level := c.Check(t, m)
	if ins, ok := m.(InsertionMove); ok {
		missing, _ := lo.Difference(t.inst.nodes[ins.Node].Tools, t.inst.techs[t.tech].Tools)
		return explain(level, "tools %v missing before main depot", missing)
	}
	return explain(level, "tool missing")
}

// toolFailure is the first position requiring an unavailable tool, or -1.
func toolFailure(inst *Instance, r Route) int {
	ready := false
	for i := 1; i < r.Len()-1; i++ {
		id := r.NodeAt(i)
		if id == inst.mainDepot {
			ready = true
			continue
		}
		if !ready && !inst.HasTools(r.Technician(), id) {
			return i
		}
	}
	return -1
}

// SparePartConstraint keeps the consumption between refills within the
// technician's capacity, per compartment.
type SparePartConstraint struct{}

func (SparePartConstraint) Name() string { return ConstraintParts }

func (c SparePartConstraint) Check(t *Tour, m Move) Feasibility {
	ins, p, _, ok := plainInsertion(t, m)
	if !ok {
		return checkCandidate(c, t, m)
	}
	capacity := t.inst.techs[t.tech].Capacity
	for k, q := range t.inst.nodes[ins.Node].Parts {
		if q == 0 {
			continue
		}
		if t.segmentParts(p, k)+q > capacity[k]+Eps {
			if d := t.index[t.inst.mainDepot]; d > p {
				return ForwardFeasible
			}
			return Infeasible
		}
	}
	return Feasible
}

func (SparePartConstraint) CheckRoute(inst *Instance, r Route) Feasibility {
	if partsFailure(inst, r) >= 0 {
		return Infeasible
	}
	return Feasible
}

func (c SparePartConstraint) Explain(t *Tour, m Move) string {
	return explain(c.Check(t, m), "spare parts exceed capacity %v", t.inst.techs[t.tech].Capacity)
}

// partsFailure is the first position where the consumption since the last
// refill exceeds capacity, or -1.
func partsFailure(inst *Instance, r Route) int {
	capacity := inst.techs[r.Technician()].Capacity
	used := make([]float64, inst.compartments)
	for i := 1; i < r.Len()-1; i++ {
		id := r.NodeAt(i)
		if id == inst.mainDepot {
			clear(used)
			continue
		}
		for k, q := range inst.nodes[id].Parts {
			used[k] += q
			if used[k] > capacity[k]+Eps {
				return i
			}
		}
	}
	return -1
}

// SkillConstraint requires the technician to hold every skill of a request.
type SkillConstraint struct{}

func (SkillConstraint) Name() string { return ConstraintSkills }

func (c SkillConstraint) Check(t *Tour, m Move) Feasibility {
	switch m := m.(type) {
	case InsertionMove:
		if !t.inst.validNode(m.Node) || !t.inst.HasSkills(t.tech, m.Node) {
			return Infeasible
		}
	case MergeMove:
		return checkCandidate(c, t, m)
	}
	return Feasible
}

func (SkillConstraint) CheckRoute(inst *Instance, r Route) Feasibility {
	for i := 1; i < r.Len()-1; i++ {
		if !inst.HasSkills(r.Technician(), r.NodeAt(i)) {
			return Infeasible
		}
	}
	return Feasible
}

func (c SkillConstraint) Explain(t *Tour, m Move) string {
	return explain(c.Check(t, m), "technician %d lacks skills", t.tech)
}

// CapacityConstraint bounds the number of requests per technician.
type CapacityConstraint struct{}

func (CapacityConstraint) Name() string { return ConstraintCapacity }

func (CapacityConstraint) Check(t *Tour, m Move) Feasibility {
	limit := t.inst.techs[t.tech].MaxRequests
	if limit <= 0 {
		return Feasible
	}
	switch m := m.(type) {
	case InsertionMove:
		if t.requests+1 > limit {
			return Infeasible
		}
	case MergeMove:
		if m.Source != nil && t.requests+m.Source.requests > limit {
			return Infeasible
		}
	}
	return Feasible
}

func (CapacityConstraint) CheckRoute(inst *Instance, r Route) Feasibility {
	limit := inst.techs[r.Technician()].MaxRequests
	if limit <= 0 {
		return Feasible
	}
	n := 0
	for i := 1; i < r.Len()-1; i++ {
		if inst.nodes[r.NodeAt(i)].Kind == KindRequest {
			n++
		}
	}
	if n > limit {
		return Infeasible
	}
	return Feasible
}

func (c CapacityConstraint) Explain(t *Tour, m Move) string {
	return explain(c.Check(t, m), "technician %d serves at most %d requests", t.tech, t.inst.techs[t.tech].MaxRequests)
}

// DepotConstraint allows at most one main depot visit per tour, and none
// unless the instance allows depot trips.
type DepotConstraint struct{}

func (DepotConstraint) Name() string { return ConstraintDepot }

func (c DepotConstraint) Check(t *Tour, m Move) Feasibility {
	switch m := m.(type) {
	case InsertionMove:
		if m.Node == t.inst.mainDepot {
			return Infeasible
		}
		if m.WithDepot() && (!t.inst.allowDepotTrips || t.MainDepotVisited()) {
			return Infeasible
		}
	case MergeMove:
		return checkCandidate(c, t, m)
	}
	return Feasible
}

func (DepotConstraint) CheckRoute(inst *Instance, r Route) Feasibility {
	limit := 0
	if inst.allowDepotTrips {
		limit = 1
	}
	n := 0
	for i := 1; i < r.Len()-1; i++ {
		if r.NodeAt(i) == inst.mainDepot {
			n++
		}
	}
	if n > limit {
		return Infeasible
	}
	return Feasible
}

func (c DepotConstraint) Explain(t *Tour, m Move) string {
	return explain(c.Check(t, m), "main depot visited twice or depot trips disabled")
}

// FrozenConstraint protects executed history.
type FrozenConstraint struct{}

func (FrozenConstraint) Name() string { return ConstraintFrozen }

func (FrozenConstraint) Check(t *Tour, m Move) Feasibility {
	if t.frozen < 0 {
		return Feasible
	}
	switch m := m.(type) {
	case InsertionMove:
		if t.position(m.Succ, true) <= t.frozen {
			return ForwardFeasible
		}
		if m.WithDepot() && m.DepotSucc != m.Node && t.position(m.DepotSucc, true) <= t.frozen {
			return ForwardFeasible
		}
	case RemovalMove:
		if t.Index(m.Node) <= t.frozen {
			return Infeasible
		}
	case ReversalMove:
		if min(t.Index(m.From), t.Index(m.To)) <= t.frozen {
			return Infeasible
		}
	case SwapMove:
		if min(t.Index(m.A), t.Index(m.B)) <= t.frozen {
			return Infeasible
		}
	}
	return Feasible
}

// CheckRoute always passes: a bare route carries no history.
func (FrozenConstraint) CheckRoute(*Instance, Route) Feasibility { return Feasible }

func (c FrozenConstraint) Explain(t *Tour, m Move) string {
	return explain(c.Check(t, m), "touches positions frozen up to %d", t.frozen)
}
