package opt

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// Move is a candidate mutation of a tour. The set of implementations is
// closed: InsertionMove, RemovalMove, ReversalMove, SwapMove and MergeMove.
type Move interface {
	// Cost is the marginal cost of the move, +Inf when infeasible.
	Cost() float64
	// Improvement is the negated cost: higher is better.
	Improvement() float64
	// TourID is the technician whose tour the move mutates.
	TourID() int
	fmt.Stringer
	sealed()
}

// InsertionMove inserts Node between Pred and Succ of tour Tour. When
// DepotSucc is defined the main depot is inserted before DepotSucc as well; a
// DepotSucc equal to Node places the depot immediately before the node.
type InsertionMove struct {
	Node      NodeID
	Tour      int
	Pred      NodeID
	Succ      NodeID
	DepotPred NodeID
	DepotSucc NodeID
	Delta     float64
	// Secondary breaks cost ties, lower is better.
	Secondary float64
}

// InfeasibleInsertion is the sentinel returned when node cannot be placed.
func InfeasibleInsertion(node NodeID, tour int) InsertionMove {
	return InsertionMove{
		Node: node, Tour: tour,
		Pred: Undefined, Succ: Undefined,
		DepotPred: Undefined, DepotSucc: Undefined,
		Delta: math.Inf(1),
	}
}

func (m InsertionMove) Cost() float64        { return m.Delta }
func (m InsertionMove) Improvement() float64 { return -m.Delta }
func (m InsertionMove) TourID() int          { return m.Tour }
func (InsertionMove) sealed()                {}

// Feasible reports whether the move carries a finite cost.
func (m InsertionMove) Feasible() bool { return !math.IsInf(m.Delta, 1) }

// WithDepot reports whether the move includes a depot trip.
func (m InsertionMove) WithDepot() bool { return m.DepotSucc != Undefined }

func (m InsertionMove) String() string {
	if !m.Feasible() {
		return fmt.Sprintf("insert(%d) infeasible", m.Node)
	}
	s := fmt.Sprintf("insert(%d) tech%d %d<%d>%d cost=%.3f", m.Node, m.Tour, m.Pred, m.Node, m.Succ, m.Delta)
	if m.WithDepot() {
		s += fmt.Sprintf(" depot %d<D>%d", m.DepotPred, m.DepotSucc)
	}
	return s
}

// RemovalMove removes Node from its tour.
type RemovalMove struct {
	Node  NodeID
	Tour  int
	Delta float64
}

func (m RemovalMove) Cost() float64        { return m.Delta }
func (m RemovalMove) Improvement() float64 { return -m.Delta }
func (m RemovalMove) TourID() int          { return m.Tour }
func (RemovalMove) sealed()                {}
func (m RemovalMove) String() string {
	return fmt.Sprintf("remove(%d) tech%d cost=%.3f", m.Node, m.Tour, m.Delta)
}

// ReversalMove reverses the segment From..To (2-opt).
type ReversalMove struct {
	Tour     int
	From, To NodeID
	Delta    float64
}

func (m ReversalMove) Cost() float64        { return m.Delta }
func (m ReversalMove) Improvement() float64 { return -m.Delta }
func (m ReversalMove) TourID() int          { return m.Tour }
func (ReversalMove) sealed()                {}
func (m ReversalMove) String() string {
	return fmt.Sprintf("reverse(%d..%d) tech%d cost=%.3f", m.From, m.To, m.Tour, m.Delta)
}

// SwapMove exchanges two nodes of the same tour.
type SwapMove struct {
	Tour  int
	A, B  NodeID
	Delta float64
}

func (m SwapMove) Cost() float64        { return m.Delta }
func (m SwapMove) Improvement() float64 { return -m.Delta }
func (m SwapMove) TourID() int          { return m.Tour }
func (SwapMove) sealed()                {}
func (m SwapMove) String() string {
	return fmt.Sprintf("swap(%d,%d) tech%d cost=%.3f", m.A, m.B, m.Tour, m.Delta)
}

// MergeMove appends every request of Source to the end of tour Tour.
type MergeMove struct {
	Tour   int
	Source *Tour
	Delta  float64
}

func (m MergeMove) Cost() float64        { return m.Delta }
func (m MergeMove) Improvement() float64 { return -m.Delta }
func (m MergeMove) TourID() int          { return m.Tour }
func (MergeMove) sealed()                {}
func (m MergeMove) String() string {
	return fmt.Sprintf("merge(tech%d<-tech%d) cost=%.3f", m.Tour, m.Source.Technician(), m.Delta)
}

func secondary(m Move) float64 {
	if ins, ok := m.(InsertionMove); ok {
		return ins.Secondary
	}
	return 0
}

// Compare ranks moves: negative when a is better than b. Lower cost wins,
// equal costs (within Eps) fall back to the lower secondary score.
func Compare(a, b Move) int {
	ca, cb := a.Cost(), b.Cost()
	if !(math.IsInf(ca, 1) && math.IsInf(cb, 1)) && math.Abs(ca-cb) > Eps {
		return cmp.Compare(ca, cb)
	}
	return cmp.Compare(secondary(a), secondary(b))
}

// candidate builds the sequence t would have after m. It reports false when
// the move does not match the tour.
func candidate(t *Tour, m Move) (Route, bool) {
	seq := t.Nodes()
	at := func(id NodeID, closing bool) int {
		return t.position(id, closing)
	}
	switch m := m.(type) {
	case InsertionMove:
		s := at(m.Succ, true)
		if s <= 0 || seq[s-1] != m.Pred || t.IsVisited(m.Node) {
			return nil, false
		}
		seq = slices.Insert(seq, s, m.Node)
		if m.WithDepot() {
			d := slices.Index(seq[1:], m.DepotSucc) + 1
			if m.DepotSucc == t.home {
				d = len(seq) - 1
			}
			if d <= 0 || seq[d-1] != m.DepotPred {
				return nil, false
			}
			seq = slices.Insert(seq, d, t.inst.mainDepot)
		}
	case RemovalMove:
		p := at(m.Node, false)
		if p <= 0 {
			return nil, false
		}
		seq = slices.Delete(seq, p, p+1)
	case ReversalMove:
		i, j := at(m.From, false), at(m.To, false)
		if i <= 0 || j <= 0 {
			return nil, false
		}
		if i > j {
			i, j = j, i
		}
		slices.Reverse(seq[i : j+1])
	case SwapMove:
		i, j := at(m.A, false), at(m.B, false)
		if i <= 0 || j <= 0 {
			return nil, false
		}
		seq[i], seq[j] = seq[j], seq[i]
	case MergeMove:
		if m.Source == nil {
			return nil, false
		}
		seq = slices.Insert(seq, len(seq)-1, mergedNodes(t, m.Source)...)
	default:
		return nil, false
	}
	return sequence{tech: t.tech, nodes: seq}, true
}

// mergedNodes lists the visits a merge appends to dst: everything src visits,
// its depot stop only when dst has none of its own.
func mergedNodes(dst, src *Tour) []NodeID {
	inner := slices.Clone(src.nodes[1 : len(src.nodes)-1])
	if !dst.MainDepotVisited() {
		return inner
	}
	depot := dst.inst.mainDepot
	return slices.DeleteFunc(inner, func(id NodeID) bool { return id == depot })
}
