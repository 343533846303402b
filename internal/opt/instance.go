package opt

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

// NodeID identifies a depot or a request location.
type NodeID int

// Undefined is the sentinel for "no node".
const Undefined NodeID = -1

// NodeKind separates requests from depots.
type NodeKind int

const (
	KindRequest NodeKind = iota
	KindMainDepot
	KindHome
)

func (k NodeKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindMainDepot:
		return "depot"
	case KindHome:
		return "home"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Node is a location with its service requirements.
type Node struct {
	ID      NodeID
	Kind    NodeKind
	Window  TimeWindow
	Service float64
	Tools   []int
	Skills  []int
	Parts   []float64 // consumption per compartment
	X, Y    float64
}

// Technician is a member of the fleet. IDs are dense and equal the technician's
// index in the instance.
type Technician struct {
	ID          int
	Home        NodeID
	Skills      []int
	Tools       []int
	Capacity    []float64 // spare parts per compartment
	MaxRequests int       // 0 means unbounded
}

// TravelFunc returns the travel time between two nodes.
type TravelFunc interface {
	Travel(a, b NodeID) float64
}

// Matrix is an explicit travel-time matrix indexed by node id.
type Matrix [][]float64

func (m Matrix) Travel(a, b NodeID) float64 { return m[a][b] }

// Euclidean derives travel times from node coordinates.
type Euclidean struct {
	xs, ys []float64
	Speed  float64
}

// NewEuclidean builds a coordinate based travel function at unit speed.
func NewEuclidean(nodes []Node) *Euclidean {
	e := &Euclidean{xs: make([]float64, len(nodes)), ys: make([]float64, len(nodes)), Speed: 1}
	for i, n := range nodes {
		e.xs[i], e.ys[i] = n.X, n.Y
	}
	return e
}

func (e *Euclidean) Travel(a, b NodeID) float64 {
	return math.Hypot(e.xs[a]-e.xs[b], e.ys[a]-e.ys[b]) / e.Speed
}

// Instance is the immutable problem data shared by every tour and solution.
// It is safe for concurrent reads.
type Instance struct {
	nodes           []Node
	techs           []Technician
	travel          TravelFunc
	mainDepot       NodeID
	requests        []NodeID
	compartments    int
	allowDepotTrips bool
}

// NewInstance validates and freezes the problem data. Node ids must be dense
// and equal their index, there must be exactly one main depot, and every
// technician needs its own home node. A nil travel function falls back to
// Euclidean distances.
func NewInstance(nodes []Node, techs []Technician, travel TravelFunc, allowDepotTrips bool) (*Instance, error) {
	inst := &Instance{
		nodes:           append([]Node(nil), nodes...),
		techs:           append([]Technician(nil), techs...),
		travel:          travel,
		mainDepot:       Undefined,
		allowDepotTrips: allowDepotTrips,
	}
	if inst.travel == nil {
		inst.travel = NewEuclidean(nodes)
	}
	for i, n := range inst.nodes {
		if n.ID != NodeID(i) {
			return nil, fmt.Errorf("new instance: node at index %d has id %d: %w", i, n.ID, ErrInvalidInstance)
		}
		if n.Window == (TimeWindow{}) {
			inst.nodes[i].Window = OpenWindow()
		}
		if n.Window.End < n.Window.Start {
			return nil, fmt.Errorf("new instance: node %d window [%g,%g]: %w", i, n.Window.Start, n.Window.End, ErrInvalidInstance)
		}
		if len(n.Parts) > inst.compartments {
			inst.compartments = len(n.Parts)
		}
		switch n.Kind {
		case KindMainDepot:
			if inst.mainDepot != Undefined {
				return nil, fmt.Errorf("new instance: second main depot %d: %w", i, ErrInvalidInstance)
			}
			inst.mainDepot = n.ID
		case KindRequest:
			inst.requests = append(inst.requests, n.ID)
		}
	}
	if inst.mainDepot == Undefined {
		return nil, fmt.Errorf("new instance: no main depot: %w", ErrInvalidInstance)
	}
	homes := map[NodeID]int{}
	for i, t := range inst.techs {
		if t.ID != i {
			return nil, fmt.Errorf("new instance: technician at index %d has id %d: %w", i, t.ID, ErrInvalidInstance)
		}
		if !inst.validNode(t.Home) || inst.nodes[t.Home].Kind != KindHome {
			return nil, fmt.Errorf("new instance: technician %d home %d is not a home node: %w", i, t.Home, ErrInvalidInstance)
		}
		if other, dup := homes[t.Home]; dup {
			return nil, fmt.Errorf("new instance: technicians %d and %d share home %d: %w", other, i, t.Home, ErrInvalidInstance)
		}
		homes[t.Home] = i
		if len(t.Capacity) > inst.compartments {
			inst.compartments = len(t.Capacity)
		}
	}
	// pad part vectors so every lookup is in range
	for i := range inst.nodes {
		inst.nodes[i].Parts = padded(inst.nodes[i].Parts, inst.compartments, 0)
	}
	for i := range inst.techs {
		inst.techs[i].Capacity = padded(inst.techs[i].Capacity, inst.compartments, math.Inf(1))
	}
	return inst, nil
}

func padded(v []float64, n int, fill float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i < len(v) {
			out[i] = v[i]
		} else {
			out[i] = fill
		}
	}
	return out
}

func (in *Instance) validNode(id NodeID) bool { return id >= 0 && int(id) < len(in.nodes) }

// Node returns the node with the given id. The result must not be modified.
func (in *Instance) Node(id NodeID) *Node { return &in.nodes[id] }

// NodeCount is the number of nodes, depots included.
func (in *Instance) NodeCount() int { return len(in.nodes) }

// Requests lists every request id in ascending order.
func (in *Instance) Requests() []NodeID { return in.requests }

// MainDepot is the replenishment depot.
func (in *Instance) MainDepot() NodeID { return in.mainDepot }

// Compartments is the length of every spare-part vector.
func (in *Instance) Compartments() int { return in.compartments }

// AllowDepotTrips reports whether tours may visit the main depot mid-route.
func (in *Instance) AllowDepotTrips() bool { return in.allowDepotTrips }

// TechnicianCount is the fleet size.
func (in *Instance) TechnicianCount() int { return len(in.techs) }

// Technician returns the technician with the given id.
func (in *Instance) Technician(id int) (*Technician, error) {
	if id < 0 || id >= len(in.techs) {
		return nil, fmt.Errorf("technician %d: %w", id, ErrUnknownTechnician)
	}
	return &in.techs[id], nil
}

func (in *Instance) tech(id int) *Technician { return &in.techs[id] }

// Travel is the travel time from a to b.
func (in *Instance) Travel(a, b NodeID) float64 { return in.travel.Travel(a, b) }

// IsRequest reports whether id denotes a request.
func (in *Instance) IsRequest(id NodeID) bool {
	return in.validNode(id) && in.nodes[id].Kind == KindRequest
}

// HasSkills reports whether the technician holds every skill the node requires.
func (in *Instance) HasSkills(tech int, node NodeID) bool {
	return lo.Every(in.techs[tech].Skills, in.nodes[node].Skills)
}

// HasTools reports whether the technician carries every tool the node requires
// from the start of the day.
func (in *Instance) HasTools(tech int, node NodeID) bool {
	return lo.Every(in.techs[tech].Tools, in.nodes[node].Tools)
}

// PartsFit reports whether the node's consumption fits into a full inventory.
func (in *Instance) PartsFit(tech int, node NodeID) bool {
	capacity := in.techs[tech].Capacity
	for c, q := range in.nodes[node].Parts {
		if q > capacity[c]+Eps {
			return false
		}
	}
	return true
}

// Compatible is the base compatibility between a technician and a request:
// skills must match, a full inventory must cover the parts, and missing tools
// must be obtainable through a depot trip.
func (in *Instance) Compatible(tech int, node NodeID) bool {
	if tech < 0 || tech >= len(in.techs) || !in.IsRequest(node) {
		return false
	}
	if !in.HasSkills(tech, node) || !in.PartsFit(tech, node) {
		return false
	}
	return in.allowDepotTrips || in.HasTools(tech, node)
}
