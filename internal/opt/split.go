package opt

import (
	"fmt"
	"math"
	"slices"
)

// Split partitions a giant tour into contiguous feasible sub-tours of minimum
// total cost. The partition is a shortest path over the DAG of positions
// 0..n whose arcs (i, j) are the feasible single tours serving the requests
// at giant positions i..j-1.
type Split struct {
	Instance    *Instance
	Cost        CostDelegate
	Constraints *ConstraintHandler
	Strict      bool
	Logger      Logger
	Metrics     *RunMetrics
}

// NewSplit configures a split with the given objective and constraints.
func NewSplit(inst *Instance, cost CostDelegate, h *ConstraintHandler) *Split {
	if cost == nil {
		cost = TravelCost{}
	}
	if h == nil {
		h = DefaultConstraints()
	}
	return &Split{Instance: inst, Cost: cost, Constraints: h}
}

// covered lists the constraints the arc builder checks itself.
var covered = []string{
	ConstraintTimeWindow, ConstraintTools, ConstraintParts, ConstraintSkills,
	ConstraintDepot, ConstraintCapacity, ConstraintFrozen,
}

func (s *Split) validate(giant []NodeID) error {
	seen := make(map[NodeID]bool, len(giant))
	for _, id := range giant {
		if !s.Instance.IsRequest(id) {
			return fmt.Errorf("split: node %d is not a request: %w", id, ErrUnknownNode)
		}
		if seen[id] {
			return fmt.Errorf("split: request %d listed twice: %w", id, ErrAlreadyVisited)
		}
		seen[id] = true
	}
	return nil
}

// SplitTour splits giant into sub-tours of technician tech, returned in giant
// order. An empty result means no feasible split exists, typically because a
// request is incompatible with the technician.
func (s *Split) SplitTour(giant []NodeID, tech int) ([]*Tour, error) {
	if _, err := s.Instance.Technician(tech); err != nil {
		return nil, violation(s.Strict, fmt.Errorf("split: %w", err))
	}
	if err := s.validate(giant); err != nil {
		return nil, violation(s.Strict, err)
	}
	n := len(giant)
	label := make([]float64, n+1)
	pred := make([]arcRoute, n+1)
	for i := range label {
		label[i] = math.Inf(1)
	}
	label[0] = 0
	b := s.newArcBuilder(giant, tech)
	for i := 0; i < n; i++ {
		if math.IsInf(label[i], 1) {
			logf(s.Logger, "level=info op=split tech=%d unreachable=%d request=%d", tech, i, giant[i])
			return []*Tour{}, nil
		}
		b.reset(i)
		for j := i + 1; j <= n; j++ {
			b.extend()
			r, w, ok := b.arc()
			if !ok {
				break
			}
			if label[i]+w < label[j] {
				label[j] = label[i] + w
				pred[j] = r
			}
		}
	}
	if math.IsInf(label[n], 1) {
		return []*Tour{}, nil
	}
	var arcs []arcRoute
	for j := n; j > 0; j -= len(pred[j].seq) {
		arcs = append(arcs, pred[j])
	}
	slices.Reverse(arcs)
	tours := make([]*Tour, 0, len(arcs))
	for _, r := range arcs {
		t, err := s.tourOf(r)
		if err != nil {
			return nil, err
		}
		tours = append(tours, t)
	}
	return tours, nil
}

// SplitFleet splits giant over a fixed fleet: the k-th technician of techs
// serves the k-th contiguous slice, possibly empty. A nil techs uses the whole
// fleet in id order. The result is nil when no feasible assignment exists.
func (s *Split) SplitFleet(giant []NodeID, techs []int) (*Solution, error) {
	if techs == nil {
		techs = make([]int, s.Instance.TechnicianCount())
		for k := range techs {
			techs[k] = k
		}
	}
	for i, k := range techs {
		if _, err := s.Instance.Technician(k); err != nil {
			return nil, violation(s.Strict, fmt.Errorf("split fleet: %w", err))
		}
		if slices.Contains(techs[:i], k) {
			return nil, violation(s.Strict, fmt.Errorf("split fleet: technician %d listed twice: %w", k, ErrUnknownTechnician))
		}
	}
	if err := s.validate(giant); err != nil {
		return nil, violation(s.Strict, err)
	}
	n, m := len(giant), len(techs)
	// label[k][j]: cheapest cover of giant[:j] by the first k technicians
	label := make([][]float64, m+1)
	pred := make([][]arcRoute, m+1)
	from := make([][]int, m+1)
	for k := range label {
		label[k] = make([]float64, n+1)
		pred[k] = make([]arcRoute, n+1)
		from[k] = make([]int, n+1)
		for j := range label[k] {
			label[k][j] = math.Inf(1)
		}
	}
	label[0][0] = 0
	for k := 1; k <= m; k++ {
		b := s.newArcBuilder(giant, techs[k-1])
		for i := 0; i <= n; i++ {
			if math.IsInf(label[k-1][i], 1) {
				continue
			}
			// the technician stays home
			if label[k-1][i] < label[k][i] {
				label[k][i] = label[k-1][i]
				from[k][i] = i
				pred[k][i] = arcRoute{}
			}
			b.reset(i)
			for j := i + 1; j <= n; j++ {
				b.extend()
				r, w, ok := b.arc()
				if !ok {
					break
				}
				if label[k-1][i]+w < label[k][j] {
					label[k][j] = label[k-1][i] + w
					from[k][j] = i
					pred[k][j] = r
				}
			}
		}
	}
	if math.IsInf(label[m][n], 1) {
		logf(s.Logger, "level=info op=split_fleet techs=%d requests=%d result=infeasible", m, n)
		return nil, nil
	}
	sol, err := NewSolution(s.Instance, s.Cost)
	if err != nil {
		return nil, err
	}
	for k, j := m, n; k > 0; k-- {
		r := pred[k][j]
		j = from[k][j]
		if len(r.seq) == 0 {
			continue
		}
		t, err := s.tourOf(r)
		if err != nil {
			return nil, err
		}
		if err := sol.SetTour(t); err != nil {
			return nil, violation(s.Strict, err)
		}
	}
	return sol, nil
}

func (s *Split) tourOf(r arcRoute) (*Tour, error) {
	t, err := NewTour(s.Instance, r.tech, s.Cost)
	if err != nil {
		return nil, err
	}
	for i := 1; i < r.Len()-1; i++ {
		if err := t.InsertBefore(Undefined, r.NodeAt(i)); err != nil {
			return nil, violation(s.Strict, fmt.Errorf("split: build tour: %w", err))
		}
	}
	t.Settle()
	return t, nil
}

// arcRoute is the tour serving seq, with the main depot before seq[depotAt]
// when depotAt >= 0. seq aliases the giant tour.
type arcRoute struct {
	tech    int
	home    NodeID
	depot   NodeID
	seq     []NodeID
	depotAt int
}

func (a arcRoute) Technician() int { return a.tech }

func (a arcRoute) Len() int {
	if a.depotAt >= 0 {
		return len(a.seq) + 3
	}
	return len(a.seq) + 2
}

func (a arcRoute) NodeAt(i int) NodeID {
	if i == 0 || i == a.Len()-1 {
		return a.home
	}
	i--
	if a.depotAt >= 0 {
		if i == a.depotAt {
			return a.depot
		}
		if i > a.depotAt {
			i--
		}
	}
	return a.seq[i]
}

// arcBuilder grows the arcs leaving one position of the giant tour one
// request at a time, keeping the depot-free forward schedule incrementally.
// Depot-free arcs are validated and priced in constant time.
type arcBuilder struct {
	s     *Split
	inst  *Instance
	final *ConstraintHandler
	tech  int
	home  NodeID
	giant []NodeID

	from       int
	seq        []NodeID
	arrival    []float64
	start      []float64
	departure  []float64
	waitPrefix []float64
	travel     []float64 // from home up to seq[q]
	lateness   []float64 // cumulative up to seq[q]
	parts      []float64 // cumulative, q*compartments + c
	fail       int       // first request needing a refill, -1
	blocked    bool      // infeasible whatever the depot trip
	latest     []float64
}

func (s *Split) newArcBuilder(giant []NodeID, tech int) *arcBuilder {
	return &arcBuilder{
		s:     s,
		inst:  s.Instance,
		final: s.Constraints.Except(covered...),
		tech:  tech,
		home:  s.Instance.techs[tech].Home,
		giant: giant,
	}
}

func (b *arcBuilder) reset(from int) {
	b.from = from
	b.seq = b.giant[from:from]
	b.arrival = b.arrival[:0]
	b.start = b.start[:0]
	b.departure = b.departure[:0]
	b.waitPrefix = b.waitPrefix[:0]
	b.travel = b.travel[:0]
	b.lateness = b.lateness[:0]
	b.parts = b.parts[:0]
	b.fail = -1
	b.blocked = false
}

func (b *arcBuilder) homeDeparture() float64 {
	h := &b.inst.nodes[b.home]
	return h.Window.Start + h.Service
}

// homeLateness is the lateness of leaving home, zero for any sane window.
func (b *arcBuilder) homeLateness() float64 {
	w := b.inst.nodes[b.home].Window
	return w.Lateness(w.Start)
}

// extend appends the next request of the giant tour.
func (b *arcBuilder) extend() {
	in := b.inst
	q := len(b.seq)
	id := b.giant[b.from+q]
	b.seq = b.giant[b.from : b.from+q+1]
	nd := &in.nodes[id]

	prev, dep, wait, travel, late := b.home, b.homeDeparture(), 0.0, 0.0, b.homeLateness()
	if q > 0 {
		prev, dep, wait, travel, late = b.seq[q-1], b.departure[q-1], b.waitPrefix[q-1], b.travel[q-1], b.lateness[q-1]
	}
	leg := in.Travel(prev, id)
	arr := dep + leg
	st := nd.Window.EarliestStart(arr)
	b.arrival = append(b.arrival, arr)
	b.start = append(b.start, st)
	b.departure = append(b.departure, st+nd.Service)
	b.waitPrefix = append(b.waitPrefix, wait+st-arr)
	b.travel = append(b.travel, travel+leg)
	b.lateness = append(b.lateness, late+nd.Window.Lateness(st))
	if !nd.Window.Feasible(st) || !in.Compatible(b.tech, id) {
		b.blocked = true
	}
	if limit := in.techs[b.tech].MaxRequests; limit > 0 && q+1 > limit {
		b.blocked = true
	}

	cc := in.compartments
	capacity := in.techs[b.tech].Capacity
	over := false
	for c := 0; c < cc; c++ {
		used := nd.Parts[c]
		if q > 0 {
			used += b.parts[(q-1)*cc+c]
		}
		b.parts = append(b.parts, used)
		over = over || used > capacity[c]+Eps
	}
	if b.fail < 0 && (over || !in.HasTools(b.tech, id)) {
		b.fail = q
	}
}

// arc validates the current arc and prices it. It reports false when the arc
// is infeasible, which also rules out every longer arc from the same start.
func (b *arcBuilder) arc() (arcRoute, float64, bool) {
	b.s.Metrics.add(func(r *RunMetrics) { r.SplitArcs++ })
	r := arcRoute{tech: b.tech, home: b.home, depot: b.inst.mainDepot, seq: b.seq, depotAt: -1}
	if b.blocked {
		return r, 0, false
	}
	in := b.inst
	L := len(b.seq)
	hn := &in.nodes[b.home]
	back := b.departure[L-1] + in.Travel(b.seq[L-1], b.home)
	if !hn.Window.Feasible(hn.Window.EarliestStart(back)) {
		return r, 0, false
	}
	if b.fail >= 0 {
		p, ok := b.depotPosition(back)
		if !ok {
			return r, 0, false
		}
		r.depotAt = p
	}
	if len(b.final.constraints) > 0 && b.final.CheckRoute(in, r) != Feasible {
		return r, 0, false
	}
	return r, b.price(r, back), true
}

// price evaluates a validated arc. Only a depot trip re-runs the schedule,
// from the depot onwards; delegates without TotalsCost price the full route.
func (b *arcBuilder) price(r arcRoute, back float64) float64 {
	tc, ok := b.s.Cost.(TotalsCost)
	if !ok {
		return b.s.Cost.EvaluateRoute(b.inst, r)
	}
	if r.depotAt >= 0 {
		return tc.EvaluateTotals(b.depotTotals(r.depotAt))
	}
	in := b.inst
	L := len(b.seq)
	hn := &in.nodes[b.home]
	return tc.EvaluateTotals(RouteTotals{
		Travel:   b.travel[L-1] + in.Travel(b.seq[L-1], b.home),
		Duration: back - b.homeDeparture(),
		Lateness: b.lateness[L-1] + hn.Window.Lateness(hn.Window.EarliestStart(back)),
	})
}

// depotTotals are the totals of the current arc with the depot before seq[p].
func (b *arcBuilder) depotTotals(p int) RouteTotals {
	in := b.inst
	tot := RouteTotals{Lateness: b.homeLateness()}
	prev, dep := b.home, b.homeDeparture()
	if p > 0 {
		prev, dep = b.seq[p-1], b.departure[p-1]
		tot.Travel, tot.Lateness = b.travel[p-1], b.lateness[p-1]
	}
	visit := func(id NodeID) {
		nd := &in.nodes[id]
		leg := in.Travel(prev, id)
		st := nd.Window.EarliestStart(dep + leg)
		tot.Travel += leg
		tot.Lateness += nd.Window.Lateness(st)
		prev, dep = id, st+nd.Service
	}
	visit(in.mainDepot)
	for _, id := range b.seq[p:] {
		visit(id)
	}
	hn := &in.nodes[b.home]
	leg := in.Travel(prev, b.home)
	tot.Travel += leg
	tot.Lateness += hn.Window.Lateness(hn.Window.EarliestStart(dep + leg))
	tot.Duration = dep + leg - b.homeDeparture()
	return tot
}

// depotPosition picks the cheapest depot trip before the first failing
// request. back is the depot-free arrival at home.
func (b *arcBuilder) depotPosition(back float64) (int, bool) {
	in := b.inst
	if !in.allowDepotTrips {
		return 0, false
	}
	L := len(b.seq)
	hn := &in.nodes[b.home]
	dn := &in.nodes[in.mainDepot]
	cc := in.compartments
	capacity := in.techs[b.tech].Capacity

	// latest start of service per request, home closing at L
	b.latest = resized(b.latest, L+1)
	b.latest[L] = hn.Window.hardEnd()
	next := b.home
	for q := L - 1; q >= 0; q-- {
		nd := &in.nodes[b.seq[q]]
		b.latest[q] = math.Min(nd.Window.hardEnd(), b.latest[q+1]-nd.Service-in.Travel(b.seq[q], next))
		next = b.seq[q]
	}
	homeWait := hn.Window.EarliestStart(back) - back
	waitFrom := func(q int) float64 {
		w := b.waitPrefix[L-1] + homeWait
		if q > 0 {
			w -= b.waitPrefix[q-1]
		}
		return w
	}

	best, bestCost := -1, math.Inf(1)
	for p := 0; p <= b.fail; p++ {
		fits := true
		for c := 0; c < cc && fits; c++ {
			after := b.parts[(L-1)*cc+c]
			if p > 0 {
				after -= b.parts[(p-1)*cc+c]
			}
			fits = after <= capacity[c]+Eps
		}
		if !fits {
			continue
		}
		prev, dep := b.home, b.homeDeparture()
		if p > 0 {
			prev, dep = b.seq[p-1], b.departure[p-1]
		}
		ds := dn.Window.EarliestStart(dep + in.Travel(prev, in.mainDepot))
		if !dn.Window.Feasible(ds) {
			break
		}
		succ := b.seq[p]
		arr := ds + dn.Service + in.Travel(in.mainDepot, succ)
		if in.nodes[succ].Window.EarliestStart(arr) > b.latest[p]+Eps {
			continue
		}
		cost := b.s.Cost.EvaluateDetour(Detour{
			Added:   in.Travel(prev, in.mainDepot) + in.Travel(in.mainDepot, succ),
			Removed: in.Travel(prev, succ),
			Shift:   arr - b.arrival[p],
			Waiting: waitFrom(p),
		})
		if cost < bestCost {
			best, bestCost = p, cost
		}
	}
	return best, best >= 0
}
