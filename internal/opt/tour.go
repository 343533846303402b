package opt

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Tour is the visit sequence of one technician, starting and ending at the
// technician's home. It caches the propagated schedule (arrival, earliest
// start, departure, latest start, cumulative waiting), the spare parts used
// since the last refill and tool availability for every position.
//
// Mutations only mark the cache as pending. The pending suffix is recomputed
// by Settle, or lazily by the next query, never the whole tour: the forward
// sweep starts at the first mutated position and the backward sweep of latest
// start times stops as soon as it reproduces a cached value below it.
//
// A tour may be frozen up to a position. Frozen positions represent executed
// history; they are never mutated nor recomputed.
//
// A Tour is not safe for concurrent use. Read-only queries are safe only while
// nothing is pending.
type Tour struct {
	inst *Instance
	tech int
	home NodeID
	cost CostDelegate

	nodes    []NodeID
	index    []int // node id -> position, -1 when absent; home maps to 0
	requests int

	arrival    []float64
	start      []float64
	departure  []float64
	waitPrefix []float64 // waiting accumulated over positions 0..i
	latest     []float64
	parts      []float64 // position*compartments + c
	toolsReady []bool

	total float64

	dirtyFrom  int // first position with a stale forward state; len(nodes) when clean
	backStale  bool
	backFull   bool // next backward sweep may not stop early
	costStale  bool
	frozen     int // last frozen position, -1 when unfrozen
	autoSettle bool
}

// NewTour returns the empty tour home -> home of technician tech. Cost
// bookkeeping uses the given delegate.
func NewTour(inst *Instance, tech int, cost CostDelegate) (*Tour, error) {
	tc, err := inst.Technician(tech)
	if err != nil {
		return nil, fmt.Errorf("new tour: %w", err)
	}
	if cost == nil {
		cost = TravelCost{}
	}
	t := &Tour{
		inst:      inst,
		tech:      tech,
		home:      tc.Home,
		cost:      cost,
		nodes:     []NodeID{tc.Home, tc.Home},
		index:     make([]int, inst.NodeCount()),
		backStale: true,
		backFull:  true,
		costStale: true,
		frozen:    -1,
	}
	for i := range t.index {
		t.index[i] = -1
	}
	t.index[tc.Home] = 0
	return t, nil
}

// Technician is the id of the owning technician.
func (t *Tour) Technician() int { return t.tech }

// Home is the technician's home node.
func (t *Tour) Home() NodeID { return t.home }

// Len counts positions including both home visits.
func (t *Tour) Len() int { return len(t.nodes) }

// NodeAt returns the node at position i.
func (t *Tour) NodeAt(i int) NodeID { return t.nodes[i] }

// RequestCount is the number of requests served by the tour.
func (t *Tour) RequestCount() int { return t.requests }

// IsVisited reports whether node is part of the tour.
func (t *Tour) IsVisited(node NodeID) bool {
	return t.inst.validNode(node) && t.index[node] >= 0
}

// Index is the position of node, or -1. The home resolves to position 0.
func (t *Tour) Index(node NodeID) int {
	if !t.inst.validNode(node) {
		return -1
	}
	return t.index[node]
}

// Pred is the node preceding node, or Undefined.
func (t *Tour) Pred(node NodeID) NodeID {
	p := t.Index(node)
	if p <= 0 {
		return Undefined
	}
	return t.nodes[p-1]
}

// Succ is the node following node, or Undefined.
func (t *Tour) Succ(node NodeID) NodeID {
	p := t.Index(node)
	if p < 0 || p >= len(t.nodes)-1 {
		return Undefined
	}
	return t.nodes[p+1]
}

// Nodes copies the full sequence.
func (t *Tour) Nodes() []NodeID { return slices.Clone(t.nodes) }

// Requests lists the served requests in visiting order.
func (t *Tour) Requests() []NodeID {
	out := make([]NodeID, 0, t.requests)
	for _, id := range t.nodes[1 : len(t.nodes)-1] {
		if t.inst.nodes[id].Kind == KindRequest {
			out = append(out, id)
		}
	}
	return out
}

// MainDepotVisited reports whether the tour already has its replenishment stop.
func (t *Tour) MainDepotVisited() bool { return t.index[t.inst.mainDepot] >= 0 }

// Pending reports whether cached state awaits recomputation.
func (t *Tour) Pending() bool {
	return t.dirtyFrom < len(t.nodes) || t.backStale || t.costStale
}

// SetAutoSettle makes every mutation settle immediately.
func (t *Tour) SetAutoSettle(on bool) {
	t.autoSettle = on
	if on {
		t.Settle()
	}
}

// FrozenUpTo is the last frozen position, -1 when unfrozen.
func (t *Tour) FrozenUpTo() int { return t.frozen }

// InsertBefore inserts node immediately before succ. Undefined or the home as
// succ append the node before the closing home visit.
func (t *Tour) InsertBefore(succ, node NodeID) error {
	if !t.inst.validNode(node) {
		return fmt.Errorf("insert %d: %w", node, ErrUnknownNode)
	}
	kind := t.inst.nodes[node].Kind
	if kind == KindHome {
		return fmt.Errorf("insert %d: %w", node, ErrTourEndpoint)
	}
	if t.index[node] >= 0 {
		return fmt.Errorf("insert %d: %w", node, ErrAlreadyVisited)
	}
	pos := len(t.nodes) - 1
	if succ != Undefined && succ != t.home {
		if !t.IsVisited(succ) {
			return fmt.Errorf("insert %d before %d: %w", node, succ, ErrNotInTour)
		}
		pos = t.index[succ]
	}
	if pos <= t.frozen {
		return fmt.Errorf("insert %d at position %d: %w", node, pos, ErrFrozen)
	}
	t.trackInsertion(t.nodes[pos-1], node, t.nodes[pos], 1)
	t.nodes = slices.Insert(t.nodes, pos, node)
	t.reindex(pos)
	if kind == KindRequest {
		t.requests++
	}
	t.touch(pos)
	return nil
}

// Remove deletes node from the tour.
func (t *Tour) Remove(node NodeID) error {
	if node == t.home {
		return fmt.Errorf("remove %d: %w", node, ErrTourEndpoint)
	}
	if !t.IsVisited(node) {
		return fmt.Errorf("remove %d: %w", node, ErrNotInTour)
	}
	pos := t.index[node]
	if pos <= t.frozen {
		return fmt.Errorf("remove %d at position %d: %w", node, pos, ErrFrozen)
	}
	t.trackInsertion(t.nodes[pos-1], node, t.nodes[pos+1], -1)
	t.nodes = slices.Delete(t.nodes, pos, pos+1)
	t.index[node] = -1
	t.reindex(pos)
	if t.inst.nodes[node].Kind == KindRequest {
		t.requests--
	}
	t.touch(pos)
	return nil
}

// Reverse reverses the segment between from and to, both inclusive.
func (t *Tour) Reverse(from, to NodeID) error {
	i, j, err := t.interior("reverse", from, to)
	if err != nil {
		return err
	}
	if i > j {
		i, j = j, i
	}
	slices.Reverse(t.nodes[i : j+1])
	t.reindex(i)
	t.costStale = true
	t.touch(i)
	return nil
}

// Swap exchanges the positions of a and b.
func (t *Tour) Swap(a, b NodeID) error {
	i, j, err := t.interior("swap", a, b)
	if err != nil {
		return err
	}
	t.nodes[i], t.nodes[j] = t.nodes[j], t.nodes[i]
	t.index[a], t.index[b] = j, i
	t.costStale = true
	t.touch(min(i, j))
	return nil
}

func (t *Tour) interior(op string, a, b NodeID) (int, int, error) {
	if a == t.home || b == t.home {
		return 0, 0, fmt.Errorf("%s %d,%d: %w", op, a, b, ErrTourEndpoint)
	}
	if !t.IsVisited(a) || !t.IsVisited(b) {
		return 0, 0, fmt.Errorf("%s %d,%d: %w", op, a, b, ErrNotInTour)
	}
	i, j := t.index[a], t.index[b]
	if min(i, j) <= t.frozen {
		return 0, 0, fmt.Errorf("%s %d,%d: %w", op, a, b, ErrFrozen)
	}
	return i, j, nil
}

// Freeze fixes every position up to and including upTo. Freezing the home
// fixes the departure from home only.
func (t *Tour) Freeze(upTo NodeID) error {
	if !t.IsVisited(upTo) {
		return fmt.Errorf("freeze up to %d: %w", upTo, ErrNotInTour)
	}
	t.Settle()
	p := t.index[upTo]
	for i := t.frozen + 1; i <= p; i++ {
		t.latest[i] = t.start[i]
	}
	t.frozen = max(t.frozen, p)
	return nil
}

// RecordDeparture overwrites the departure time of a frozen node with the
// executed one and propagates the change to the unfrozen suffix.
func (t *Tour) RecordDeparture(node NodeID, departure float64) error {
	p := t.Index(node)
	if p < 0 {
		return fmt.Errorf("record departure %d: %w", node, ErrNotInTour)
	}
	if p > t.frozen {
		return fmt.Errorf("record departure %d: position %d is not frozen", node, p)
	}
	t.Settle()
	t.departure[p] = departure
	t.costStale = true
	t.touch(t.frozen + 1)
	return nil
}

// Unfreeze releases the frozen prefix; the whole schedule is recomputed.
func (t *Tour) Unfreeze() {
	if t.frozen < 0 {
		return
	}
	t.frozen = -1
	t.backFull = true
	t.costStale = true
	t.touch(0)
}

// PropagateUpdate re-derives the schedule of positions from..to after a batch
// of edits made with auto-settle off. Positions past to are recomputed as well
// whenever their arrival depends on the range.
func (t *Tour) PropagateUpdate(from, to int) {
	from = max(from, 0)
	if to < from {
		return
	}
	t.dirtyFrom = min(t.dirtyFrom, from)
	t.backStale = true
	t.Settle()
}

// Settle recomputes every pending cache entry.
func (t *Tour) Settle() {
	if !t.Pending() {
		return
	}
	n := len(t.nodes)
	t.resize(n)
	from := max(t.dirtyFrom, t.frozen+1)
	if from < n {
		t.forward(from)
	}
	if t.backStale {
		t.backward(from)
	}
	t.dirtyFrom = n
	t.backStale = false
	t.backFull = false
	if t.costStale {
		// cleared first: delegates may read the settled schedule back
		t.costStale = false
		t.total = t.cost.EvaluateRoute(t.inst, t)
	}
}

func (t *Tour) ensure() {
	if t.Pending() {
		t.Settle()
	}
}

func (t *Tour) touch(pos int) {
	t.dirtyFrom = min(t.dirtyFrom, pos)
	t.backStale = true
	if t.autoSettle {
		t.Settle()
	}
}

func (t *Tour) reindex(from int) {
	for i := from; i < len(t.nodes)-1; i++ {
		t.index[t.nodes[i]] = i
	}
}

// trackInsertion keeps the total cost current when the delegate supports
// incremental arc deltas; otherwise the cost is recomputed on Settle.
func (t *Tour) trackInsertion(pred, node, succ NodeID, sign float64) {
	if t.costStale {
		return
	}
	inc, ok := t.cost.(IncrementalCost)
	if !ok {
		t.costStale = true
		return
	}
	t.total += sign * inc.InsertionDelta(t.inst, pred, node, succ)
}

func (t *Tour) resize(n int) {
	c := t.inst.compartments
	t.arrival = resized(t.arrival, n)
	t.start = resized(t.start, n)
	t.departure = resized(t.departure, n)
	t.waitPrefix = resized(t.waitPrefix, n)
	t.latest = resized(t.latest, n)
	t.parts = resized(t.parts, n*c)
	t.toolsReady = resized(t.toolsReady, n)
}

func resized[T any](s []T, n int) []T {
	if cap(s) < n {
		out := make([]T, n, 2*n)
		copy(out, s)
		return out
	}
	return s[:n]
}

func (t *Tour) forward(from int) {
	c := t.inst.compartments
	depot := t.inst.mainDepot
	for i := from; i < len(t.nodes); i++ {
		id := t.nodes[i]
		nd := &t.inst.nodes[id]
		arr := nd.Window.Start
		if i > 0 {
			arr = t.departure[i-1] + t.inst.Travel(t.nodes[i-1], id)
		}
		st := nd.Window.EarliestStart(arr)
		t.arrival[i] = arr
		t.start[i] = st
		t.departure[i] = st + nd.Service
		t.waitPrefix[i] = st - arr
		if i > 0 {
			t.waitPrefix[i] += t.waitPrefix[i-1]
		}
		row := t.parts[i*c : (i+1)*c]
		if i == 0 || id == depot {
			clear(row)
		} else {
			prev := t.parts[(i-1)*c : i*c]
			for k := range row {
				row[k] = prev[k] + nd.Parts[k]
			}
		}
		t.toolsReady[i] = id == depot || (i > 0 && t.toolsReady[i-1])
	}
}

// backward recomputes latest start times from the end. Below from-1 the arcs
// are unchanged, so reproducing a cached value ends the sweep.
func (t *Tour) backward(from int) {
	n := len(t.nodes)
	for i := n - 1; i > t.frozen; i-- {
		nd := &t.inst.nodes[t.nodes[i]]
		l := nd.Window.hardEnd()
		if i < n-1 {
			l = math.Min(l, t.latest[i+1]-nd.Service-t.inst.Travel(t.nodes[i], t.nodes[i+1]))
		}
		if !t.backFull && i < from-1 && l == t.latest[i] {
			break
		}
		t.latest[i] = l
	}
}

// TotalCost is the delegate's evaluation of the whole tour.
func (t *Tour) TotalCost() float64 {
	t.ensure()
	return t.total
}

// CostDelegate is the delegate used for the tour's own bookkeeping.
func (t *Tour) CostDelegate() CostDelegate { return t.cost }

func (t *Tour) position(node NodeID, closing bool) int {
	if closing && node == t.home {
		return len(t.nodes) - 1
	}
	return t.Index(node)
}

func (t *Tour) query(node NodeID, f func(p int) float64) float64 {
	p := t.Index(node)
	if p < 0 {
		return math.NaN()
	}
	t.ensure()
	return f(p)
}

// EarliestArrivalTime is the propagated arrival at node; NaN when absent.
func (t *Tour) EarliestArrivalTime(node NodeID) float64 {
	return t.query(node, func(p int) float64 { return t.arrival[p] })
}

// EarliestStartTime is the earliest start of service at node.
func (t *Tour) EarliestStartTime(node NodeID) float64 {
	return t.query(node, func(p int) float64 { return t.start[p] })
}

// EarliestDepartureTime is the earliest departure from node.
func (t *Tour) EarliestDepartureTime(node NodeID) float64 {
	return t.query(node, func(p int) float64 { return t.departure[p] })
}

// LatestStartTime is the latest start of service at node that keeps every
// downstream window.
func (t *Tour) LatestStartTime(node NodeID) float64 {
	return t.query(node, func(p int) float64 { return t.latest[p] })
}

// ForwardSlackTime is the delay the departure from node can absorb without
// violating any downstream window.
func (t *Tour) ForwardSlackTime(node NodeID) float64 {
	return t.query(node, func(p int) float64 { return t.latest[p] - t.start[p] })
}

// WaitingTime is the waiting accumulated after a up to and including b. The
// home as b denotes the closing visit.
func (t *Tour) WaitingTime(a, b NodeID) float64 {
	i, j := t.position(a, false), t.position(b, true)
	if i < 0 || j < 0 || j < i {
		return math.NaN()
	}
	t.ensure()
	return t.waitPrefix[j] - t.waitPrefix[i]
}

// ReturnTime is the arrival back home.
func (t *Tour) ReturnTime() float64 {
	t.ensure()
	return t.arrival[len(t.nodes)-1]
}

// VisitAt returns the cached schedule at position i.
func (t *Tour) VisitAt(i int) Visit {
	t.ensure()
	w := t.start[i] - t.arrival[i]
	return Visit{
		Node:      t.nodes[i],
		Arrival:   t.arrival[i],
		Start:     t.start[i],
		Departure: t.departure[i],
		Waiting:   w,
		Latest:    t.latest[i],
		Slack:     t.latest[i] - t.start[i],
	}
}

// PartsUsed is the consumption of compartment c since the last refill, up to
// and including node.
func (t *Tour) PartsUsed(node NodeID, c int) float64 {
	return t.query(node, func(p int) float64 { return t.parts[p*t.inst.compartments+c] })
}

// Feasible reports whether every hard window holds on the cached schedule.
func (t *Tour) Feasible() bool {
	t.ensure()
	for i, id := range t.nodes {
		if !t.inst.nodes[id].Window.Feasible(t.start[i]) {
			return false
		}
	}
	return true
}

// segmentParts is the consumption of compartment c over the refill segment
// containing the arc (p, p+1). Requires a settled tour.
func (t *Tour) segmentParts(p, c int) float64 {
	cc := t.inst.compartments
	d := t.index[t.inst.mainDepot]
	if d >= 0 && p < d {
		return t.parts[(d-1)*cc+c]
	}
	return t.parts[(len(t.nodes)-1)*cc+c]
}

// waitingFrom is the waiting accumulated from position i to the end.
func (t *Tour) waitingFrom(i int) float64 {
	w := t.waitPrefix[len(t.nodes)-1]
	if i > 0 {
		w -= t.waitPrefix[i-1]
	}
	return w
}

// Clone returns an independent copy.
func (t *Tour) Clone() *Tour {
	c := *t
	c.nodes = slices.Clone(t.nodes)
	c.index = slices.Clone(t.index)
	c.arrival = slices.Clone(t.arrival)
	c.start = slices.Clone(t.start)
	c.departure = slices.Clone(t.departure)
	c.waitPrefix = slices.Clone(t.waitPrefix)
	c.latest = slices.Clone(t.latest)
	c.parts = slices.Clone(t.parts)
	c.toolsReady = slices.Clone(t.toolsReady)
	return &c
}

func (t *Tour) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tech%d[", t.tech)
	for i, id := range t.nodes {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", id)
	}
	b.WriteByte(']')
	return b.String()
}
