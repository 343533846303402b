package opt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// builder assembles small instances. Node 0 is always the main depot.
type builder struct {
	nodes      []Node
	techs      []Technician
	matrix     Matrix
	depotTrips bool
}

func newBuilder(depotX, depotY float64) *builder {
	return &builder{nodes: []Node{{ID: 0, Kind: KindMainDepot, X: depotX, Y: depotY}}}
}

func (b *builder) node(kind NodeKind, x, y float64) *Node {
	b.nodes = append(b.nodes, Node{ID: NodeID(len(b.nodes)), Kind: kind, X: x, Y: y})
	return &b.nodes[len(b.nodes)-1]
}

// tech adds a technician living at (x, y) and returns its id.
func (b *builder) tech(x, y float64, capacity ...float64) int {
	home := b.node(KindHome, x, y).ID
	b.techs = append(b.techs, Technician{ID: len(b.techs), Home: home, Capacity: capacity})
	return len(b.techs) - 1
}

func (b *builder) request(x, y float64, w TimeWindow, service float64, parts ...float64) NodeID {
	n := b.node(KindRequest, x, y)
	n.Window = w
	n.Service = service
	n.Parts = parts
	return n.ID
}

func (b *builder) build(t *testing.T) *Instance {
	t.Helper()
	var travel TravelFunc
	if b.matrix != nil {
		travel = b.matrix
	}
	inst, err := NewInstance(b.nodes, b.techs, travel, b.depotTrips)
	require.NoError(t, err)
	return inst
}

func window(start, end float64) TimeWindow { return TimeWindow{Start: start, End: end} }

func home(inst *Instance, tech int) NodeID { return inst.tech(tech).Home }

// append inserts nodes before the closing home, in order.
func appendNodes(t *testing.T, tour *Tour, nodes ...NodeID) {
	t.Helper()
	for _, id := range nodes {
		require.NoError(t, tour.InsertBefore(Undefined, id))
	}
}

// requireConsistent compares the cached schedule with a from-scratch
// evaluation at every position.
func requireConsistent(t *testing.T, tour *Tour) {
	t.Helper()
	ref := EvaluateSchedule(tour.inst, tour)
	require.Equal(t, ref.Visits[0].Node, tour.NodeAt(0))
	for i, want := range ref.Visits {
		got := tour.VisitAt(i)
		require.Equal(t, want.Node, got.Node, "position %d", i)
		require.True(t, ApproxEqual(want.Arrival, got.Arrival), "arrival at %d: want %g got %g", i, want.Arrival, got.Arrival)
		require.True(t, ApproxEqual(want.Start, got.Start), "start at %d: want %g got %g", i, want.Start, got.Start)
		require.True(t, ApproxEqual(want.Slack, got.Slack), "slack at %d: want %g got %g", i, want.Slack, got.Slack)
	}
	full := tour.cost.EvaluateRoute(tour.inst, sequence{tech: tour.tech, nodes: tour.Nodes()})
	require.InDelta(t, full, tour.TotalCost(), Eps)
}

// scenario is the two-request instance H, D, R1 [0,100], R2 [50,60] with
// H-R1 5, R1-R2 10, R2-H 5 and a longer direct H-R2 of 12.
func scenario(t *testing.T) (inst *Instance, h, r1, r2 NodeID) {
	b := newBuilder(0, 0)
	b.tech(0, 0)
	r1 = b.request(0, 0, window(0, 100), 0)
	r2 = b.request(0, 0, window(50, 60), 0)
	b.matrix = Matrix{
		{0, 20, 20, 20},
		{20, 0, 5, 12},
		{20, 5, 0, 10},
		{20, 5, 10, 0},
	}
	inst = b.build(t)
	return inst, home(inst, 0), r1, r2
}
