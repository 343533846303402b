package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"

	"techroute/internal/opt"
)

// ErrInvalid marks input that cannot be turned into an instance or solution.
var ErrInvalid = errors.New("invalid input")

// Compiled is an InstanceIn turned into an opt.Instance, with the id maps
// between wire ids and node / technician indices.
type Compiled struct {
	Instance *opt.Instance
	techs    []string
	nodes    []string // node id -> request id, "" for depot and homes
	byTech   map[string]int
	byReq    map[string]opt.NodeID
}

func window(w *TimeWindow) opt.TimeWindow {
	if w == nil {
		return opt.OpenWindow()
	}
	return opt.TimeWindow{Start: w.Start, End: w.End, Soft: w.Soft}
}

// Compile validates in and builds the instance. Node 0 is the depot, nodes
// 1..k the technician homes in input order, then the requests.
func Compile(in InstanceIn) (*Compiled, error) {
	if len(in.Technicians) == 0 {
		return nil, fmt.Errorf("compile: no technicians: %w", ErrInvalid)
	}
	techIDs := lo.Map(in.Technicians, func(t TechnicianIn, _ int) string { return t.ID })
	reqIDs := lo.Map(in.Requests, func(r RequestIn, _ int) string { return r.ID })
	if lo.Contains(techIDs, "") || lo.Contains(reqIDs, "") {
		return nil, fmt.Errorf("compile: every technician and request needs an id: %w", ErrInvalid)
	}
	if d := lo.FindDuplicates(techIDs); len(d) > 0 {
		return nil, fmt.Errorf("compile: duplicate technician ids %v: %w", d, ErrInvalid)
	}
	if d := lo.FindDuplicates(reqIDs); len(d) > 0 {
		return nil, fmt.Errorf("compile: duplicate request ids %v: %w", d, ErrInvalid)
	}

	n := 1 + len(in.Technicians) + len(in.Requests)
	c := &Compiled{
		techs:  techIDs,
		nodes:  make([]string, n),
		byTech: make(map[string]int, len(techIDs)),
		byReq:  make(map[string]opt.NodeID, len(reqIDs)),
	}
	nodes := make([]opt.Node, 0, n)
	nodes = append(nodes, opt.Node{
		ID: 0, Kind: opt.KindMainDepot,
		X: in.Depot.Location.X, Y: in.Depot.Location.Y,
		Window: window(in.Depot.TimeWindow), Service: in.Depot.ServiceMin,
	})
	techs := make([]opt.Technician, 0, len(in.Technicians))
	for k, t := range in.Technicians {
		home := opt.NodeID(len(nodes))
		nodes = append(nodes, opt.Node{ID: home, Kind: opt.KindHome, X: t.Home.X, Y: t.Home.Y, Window: window(t.Shift)})
		techs = append(techs, opt.Technician{
			ID: k, Home: home,
			Skills: t.Skills, Tools: t.Tools, Capacity: t.Capacity, MaxRequests: t.MaxRequests,
		})
		c.byTech[t.ID] = k
	}
	for _, r := range in.Requests {
		id := opt.NodeID(len(nodes))
		nodes = append(nodes, opt.Node{
			ID: id, Kind: opt.KindRequest,
			X: r.Location.X, Y: r.Location.Y,
			Window: window(r.TimeWindow), Service: r.ServiceMin,
			Skills: r.Skills, Tools: r.Tools, Parts: r.Parts,
		})
		c.nodes[id] = r.ID
		c.byReq[r.ID] = id
	}

	var travel opt.TravelFunc
	if len(in.Travel) > 0 {
		if err := checkMatrix(in.Travel, n); err != nil {
			return nil, fmt.Errorf("compile: %w", err)
		}
		travel = opt.Matrix(in.Travel)
	}
	inst, err := opt.NewInstance(nodes, techs, travel, in.AllowDepotTrips)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", errors.Join(ErrInvalid, err))
	}
	c.Instance = inst
	return c, nil
}

func checkMatrix(m [][]float64, n int) error {
	if len(m) != n {
		return fmt.Errorf("travel matrix has %d rows, want %d: %w", len(m), n, ErrInvalid)
	}
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("travel row %d has %d entries, want %d: %w", i, len(row), n, ErrInvalid)
		}
		for j, v := range row {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("travel[%d][%d] = %g: %w", i, j, v, ErrInvalid)
			}
		}
	}
	return nil
}

// Request resolves a request id.
func (c *Compiled) Request(id string) (opt.NodeID, bool) {
	n, ok := c.byReq[id]
	return n, ok
}

// RequestID is the wire id of node, "" for depots and homes.
func (c *Compiled) RequestID(n opt.NodeID) string {
	if n < 0 || int(n) >= len(c.nodes) {
		return ""
	}
	return c.nodes[n]
}

// Technician resolves a technician id.
func (c *Compiled) Technician(id string) (int, bool) {
	k, ok := c.byTech[id]
	return k, ok
}

func (c *Compiled) TechnicianID(k int) string { return c.techs[k] }

// Giant resolves a giant tour of request ids.
func (c *Compiled) Giant(ids []string) ([]opt.NodeID, error) {
	out := make([]opt.NodeID, 0, len(ids))
	for _, id := range ids {
		n, ok := c.byReq[id]
		if !ok {
			return nil, fmt.Errorf("giant tour: unknown request %q: %w", id, ErrInvalid)
		}
		out = append(out, n)
	}
	return out, nil
}

// EncodeTour renders one tour with its cached schedule.
func (c *Compiled) EncodeTour(t *opt.Tour) TourOut {
	inst := c.Instance
	out := TourOut{
		Technician: c.techs[t.Technician()],
		Requests:   lo.Map(t.Requests(), func(n opt.NodeID, _ int) string { return c.nodes[n] }),
		Visits:     make([]VisitOut, 0, t.Len()),
		Cost:       t.TotalCost(),
		DepotTrip:  t.MainDepotVisited(),
	}
	for i := 0; i < t.Len(); i++ {
		v := t.VisitAt(i)
		vo := VisitOut{
			Node:      int(v.Node),
			Kind:      inst.Node(v.Node).Kind.String(),
			Request:   c.nodes[v.Node],
			Arrival:   v.Arrival,
			Start:     v.Start,
			Departure: v.Departure,
		}
		if !math.IsInf(v.Slack, 0) && !math.IsNaN(v.Slack) {
			s := v.Slack
			vo.Slack = &s
		}
		out.Visits = append(out.Visits, vo)
	}
	return out
}

// Encode fills the tours, cost and unserved requests of out from sol.
// Technicians without requests are left out.
func (c *Compiled) Encode(sol *opt.Solution, out *SolutionOut) {
	out.Objective = sol.CostDelegate().Name()
	out.Cost = sol.Cost()
	out.Tours = []TourOut{}
	for _, t := range sol.Tours() {
		if t.RequestCount() == 0 {
			continue
		}
		out.Tours = append(out.Tours, c.EncodeTour(t))
	}
	out.Unserved = lo.Map(sol.Unserved(), func(n opt.NodeID, _ int) string { return c.nodes[n] })
}

// Restore rebuilds a solution from its encoded tours.
func (c *Compiled) Restore(out SolutionOut, cost opt.CostDelegate) (*opt.Solution, error) {
	sol, err := opt.NewSolution(c.Instance, cost)
	if err != nil {
		return nil, err
	}
	for _, to := range out.Tours {
		k, ok := c.byTech[to.Technician]
		if !ok {
			return nil, fmt.Errorf("restore: unknown technician %q: %w", to.Technician, ErrInvalid)
		}
		t, err := opt.NewTour(c.Instance, k, cost)
		if err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
		if len(to.Visits) < 2 {
			return nil, fmt.Errorf("restore: tour of %q has %d visits: %w", to.Technician, len(to.Visits), ErrInvalid)
		}
		for _, v := range to.Visits[1 : len(to.Visits)-1] {
			if err := t.InsertBefore(opt.Undefined, opt.NodeID(v.Node)); err != nil {
				return nil, fmt.Errorf("restore tour of %q: %w", to.Technician, err)
			}
		}
		if err := sol.SetTour(t); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
	}
	return sol, nil
}
