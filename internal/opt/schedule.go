package opt

import "math"

// Route is a read-only visit sequence for one technician. Position 0 and
// position Len()-1 are the technician's home.
type Route interface {
	Technician() int
	Len() int
	NodeAt(i int) NodeID
}

// Visit is the propagated schedule at one position of a route.
type Visit struct {
	Node      NodeID
	Arrival   float64
	Start     float64 // earliest start of service
	Departure float64
	Waiting   float64
	Latest    float64 // latest start of service
	Slack     float64 // forward slack time
}

// Schedule is a from-scratch evaluation of a route.
type Schedule struct {
	Visits   []Visit
	Feasible bool
	Travel   float64
	Waiting  float64
	Lateness float64
	Duration float64
}

// EvaluateSchedule recomputes the whole schedule of r without using any cached
// state. Forward slack follows the textbook definition: the minimum, over every
// downstream position j, of the waiting accumulated after i up to j plus the
// window slack at j. It is quadratic and serves as the reference for the
// incremental bookkeeping of Tour.
func EvaluateSchedule(inst *Instance, r Route) Schedule {
	n := r.Len()
	s := Schedule{Visits: make([]Visit, n), Feasible: true}
	if n == 0 {
		return s
	}
	for i := 0; i < n; i++ {
		id := r.NodeAt(i)
		nd := inst.Node(id)
		v := Visit{Node: id}
		if i == 0 {
			v.Arrival = nd.Window.Start
		} else {
			prev := &s.Visits[i-1]
			leg := inst.Travel(prev.Node, id)
			s.Travel += leg
			v.Arrival = prev.Departure + leg
		}
		v.Start = nd.Window.EarliestStart(v.Arrival)
		v.Waiting = v.Start - v.Arrival
		v.Departure = v.Start + nd.Service
		if !nd.Window.Feasible(v.Start) {
			s.Feasible = false
		}
		s.Waiting += v.Waiting
		s.Lateness += nd.Window.Lateness(v.Start)
		s.Visits[i] = v
	}
	for i := 0; i < n; i++ {
		slack := math.Inf(1)
		waited := 0.0
		for j := i; j < n; j++ {
			if j > i {
				waited += s.Visits[j].Waiting
			}
			end := inst.Node(s.Visits[j].Node).Window.hardEnd()
			slack = math.Min(slack, waited+end-s.Visits[j].Start)
		}
		s.Visits[i].Slack = slack
		s.Visits[i].Latest = s.Visits[i].Start + slack
	}
	s.Duration = s.Visits[n-1].Arrival - s.Visits[0].Departure
	return s
}

// forwardTotals runs the forward pass of EvaluateSchedule only.
func forwardTotals(inst *Instance, r Route) RouteTotals {
	var tot RouteTotals
	n := r.Len()
	if n == 0 {
		return tot
	}
	var prev NodeID
	var first, dep float64
	for i := 0; i < n; i++ {
		id := r.NodeAt(i)
		nd := inst.Node(id)
		arr := nd.Window.Start
		if i > 0 {
			leg := inst.Travel(prev, id)
			tot.Travel += leg
			arr = dep + leg
		}
		start := nd.Window.EarliestStart(arr)
		tot.Lateness += nd.Window.Lateness(start)
		prev, dep = id, start+nd.Service
		if i == 0 {
			first = dep
		}
		if i == n-1 {
			tot.Duration = arr - first
		}
	}
	return tot
}

// sequence is a Route over a plain slice, used for candidate evaluation.
type sequence struct {
	tech  int
	nodes []NodeID
}

func (s sequence) Technician() int     { return s.tech }
func (s sequence) Len() int            { return len(s.nodes) }
func (s sequence) NodeAt(i int) NodeID { return s.nodes[i] }

// nodesOf copies a route into a slice.
func nodesOf(r Route) []NodeID {
	out := make([]NodeID, r.Len())
	for i := range out {
		out[i] = r.NodeAt(i)
	}
	return out
}

// checkTimes scans r and returns the first position whose hard window is
// violated, or -1.
func checkTimes(inst *Instance, r Route) int {
	n := r.Len()
	t := 0.0
	for i := 0; i < n; i++ {
		id := r.NodeAt(i)
		nd := inst.Node(id)
		if i == 0 {
			t = nd.Window.Start
		} else {
			t += inst.Travel(r.NodeAt(i-1), id)
		}
		start := nd.Window.EarliestStart(t)
		if !nd.Window.Feasible(start) {
			return i
		}
		t = start + nd.Service
	}
	return -1
}
