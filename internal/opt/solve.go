package opt

import (
	"fmt"
	"time"
)

// Algorithms accepted by Solver.Solve.
const (
	AlgorithmInsertion = "insertion"
	AlgorithmSplit     = "split"
)

// Options tune a solver run.
type Options struct {
	Objective     string  `yaml:"objective" json:"objective" mapstructure:"objective"`
	LatePenalty   float64 `yaml:"latePenalty" json:"latePenalty" mapstructure:"latePenalty"`
	PruneSearch   bool    `yaml:"pruneSearch" json:"pruneSearch" mapstructure:"pruneSearch"`
	BestInsertion bool    `yaml:"bestInsertion" json:"bestInsertion" mapstructure:"bestInsertion"`
	TwoOpt        int     `yaml:"twoOpt" json:"twoOpt" mapstructure:"twoOpt"`
	Debug         bool    `yaml:"debug" json:"debug" mapstructure:"debug"`
	Strict        bool    `yaml:"strict" json:"strict" mapstructure:"strict"`
}

// DefaultOptions is best insertion with pruning on the distance objective.
func DefaultOptions() Options {
	return Options{Objective: ObjectiveDistance, PruneSearch: true, BestInsertion: true}
}

// Solver wires an instance to one objective and the default constraints.
type Solver struct {
	inst   *Instance
	opts   Options
	cost   CostDelegate
	h      *ConstraintHandler
	logger Logger
}

// NewSolver validates opts and resolves the objective.
func NewSolver(inst *Instance, opts Options, logger Logger) (*Solver, error) {
	cost, err := NewCostDelegate(opts.Objective)
	if err != nil {
		return nil, fmt.Errorf("new solver: %w", err)
	}
	if w, ok := cost.(WorkingTime); ok {
		w.LatePenalty = opts.LatePenalty
		cost = w
	}
	if opts.TwoOpt < 0 {
		return nil, fmt.Errorf("new solver: twoOpt must be >= 0, got %d", opts.TwoOpt)
	}
	return &Solver{inst: inst, opts: opts, cost: cost, h: DefaultConstraints(), logger: logger}, nil
}

// Cost is the resolved objective.
func (s *Solver) Cost() CostDelegate { return s.cost }

// Constraints is the handler shared by every search of the solver.
func (s *Solver) Constraints() *ConstraintHandler { return s.h }

// Insertion returns an insertion search counting into m.
func (s *Solver) Insertion(m *RunMetrics) *InsertionSearch {
	search := NewInsertionSearch(s.inst, s.cost, s.h)
	search.Prune = s.opts.PruneSearch
	search.Best = s.opts.BestInsertion
	search.Debug = s.opts.Debug
	search.Strict = s.opts.Strict
	search.Logger = s.logger
	search.Metrics = m
	return search
}

// Splitter returns a split procedure counting into m.
func (s *Solver) Splitter(m *RunMetrics) *Split {
	sp := NewSplit(s.inst, s.cost, s.h)
	sp.Strict = s.opts.Strict
	sp.Logger = s.logger
	sp.Metrics = m
	return sp
}

// Solve builds a solution with the named algorithm. Split uses giant as the
// giant tour, or the deadline order of all requests when giant is empty.
func (s *Solver) Solve(algorithm string, giant []NodeID) (sol *Solution, m RunMetrics, err error) {
	done := Timed(s.logger, "solve."+algorithm)
	defer func() { done(&err) }()
	start := time.Now()
	switch algorithm {
	case AlgorithmInsertion, "":
		sol, err = NewSolution(s.inst, s.cost)
		if err != nil {
			return nil, m, err
		}
		if _, err = Construct(sol, s.Insertion(&m)); err != nil {
			return nil, m, err
		}
	case AlgorithmSplit:
		if len(giant) == 0 {
			giant = ByDeadline(s.inst, s.inst.requests)
		}
		sol, err = s.Splitter(&m).SplitFleet(giant, nil)
		if err != nil {
			return nil, m, err
		}
		if sol == nil {
			// no fixed-fleet split: leave every request unserved
			if sol, err = NewSolution(s.inst, s.cost); err != nil {
				return nil, m, err
			}
		}
	default:
		return nil, m, fmt.Errorf("solve: unknown algorithm %q (allowed: %s, %s)", algorithm, AlgorithmInsertion, AlgorithmSplit)
	}
	s.improve(sol, &m)
	if s.opts.Debug {
		if cerr := sol.Check(s.h); cerr != nil {
			logf(s.logger, "level=warn op=solve algorithm=%s err=%v", algorithm, cerr)
			if s.opts.Strict {
				panic(cerr)
			}
		}
	}
	m.Served = len(sol.Served())
	m.Unserved = len(sol.Unserved())
	m.Cost = sol.Cost()
	m.DurationMs = time.Since(start).Milliseconds()
	return sol, m, nil
}

func (s *Solver) improve(sol *Solution, m *RunMetrics) {
	if s.opts.TwoOpt == 0 {
		return
	}
	for _, t := range sol.tours {
		n := TwoOpt(t, s.cost, s.h, s.opts.TwoOpt)
		m.add(func(r *RunMetrics) { r.TwoOptMoves += n })
	}
}

// SplitTour splits giant for a single technician.
func (s *Solver) SplitTour(giant []NodeID, tech int) ([]*Tour, RunMetrics, error) {
	var m RunMetrics
	tours, err := s.Splitter(&m).SplitTour(giant, tech)
	return tours, m, err
}

// Insert adds one request to sol at its cheapest feasible position. The
// returned move is infeasible when no tour can take the request.
func (s *Solver) Insert(sol *Solution, node NodeID) (InsertionMove, RunMetrics, error) {
	var m RunMetrics
	search := s.Insertion(&m)
	move := search.FindBestInsertion(sol, node)
	if !move.Feasible() {
		return move, m, nil
	}
	if err := search.Execute(sol, move); err != nil {
		return move, m, err
	}
	return move, m, nil
}
