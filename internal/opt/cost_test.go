package opt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCostDelegate(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"", ObjectiveDistance},
		{"distance", ObjectiveDistance},
		{"WorkingTime", ObjectiveWorkingTime},
		{"workingtime", ObjectiveWorkingTime},
	} {
		t.Run(tc.in, func(t *testing.T) {
			d, err := NewCostDelegate(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Name())
		})
	}
	_, err := NewCostDelegate("makespan")
	assert.Error(t, err)
}

func TestWorkingTimeDetour(t *testing.T) {
	w := WorkingTime{}
	assert.InDelta(t, 0, w.EvaluateDetour(Detour{Shift: 4, Waiting: 6}), Eps)
	assert.InDelta(t, 3, w.EvaluateDetour(Detour{Shift: 9, Waiting: 6}), Eps)
	assert.InDelta(t, 2, TravelCost{}.EvaluateDetour(Detour{Added: 7, Removed: 5}), Eps)
}

func TestWorkingTimeLatePenalty(t *testing.T) {
	bl := newBuilder(0, 0)
	bl.tech(0, 0)
	r := bl.request(10, 0, TimeWindow{Start: 0, End: 4, Soft: true}, 0)
	inst := bl.build(t)
	route := sequence{tech: 0, nodes: []NodeID{1, r, 1}}

	assert.InDelta(t, 20, WorkingTime{}.EvaluateRoute(inst, route), Eps)
	assert.InDelta(t, 20+2*6, WorkingTime{LatePenalty: 2}.EvaluateRoute(inst, route), Eps)
	assert.Equal(t, Feasible, TimeWindowConstraint{}.CheckRoute(inst, route))
}

// The marginal cost of every single insertion must equal the change of the
// full evaluation, for both objectives.
func TestInsertionCostMatchesFullEvaluation(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	bl := newBuilder(50, 50)
	bl.tech(0, 0)
	var reqs []NodeID
	for i := 0; i < 12; i++ {
		start := rng.Float64() * 200
		reqs = append(reqs, bl.request(rng.Float64()*100, rng.Float64()*100, window(start, start+50), rng.Float64()*5))
	}
	inst := bl.build(t)

	for _, cost := range []CostDelegate{TravelCost{}, WorkingTime{}} {
		t.Run(cost.Name(), func(t *testing.T) {
			tour, err := NewTour(inst, 0, cost)
			require.NoError(t, err)
			appendNodes(t, tour, reqs[:6]...)
			before := tour.TotalCost()
			for _, id := range reqs[6:] {
				for p := 0; p < tour.Len()-1; p++ {
					m := InsertionMove{
						Node: id, Tour: 0,
						Pred: tour.NodeAt(p), Succ: tour.NodeAt(p + 1),
						DepotPred: Undefined, DepotSucc: Undefined,
					}
					got := cost.EvaluateMove(tour, m)
					cand, ok := candidate(tour, m)
					require.True(t, ok)
					want := cost.EvaluateRoute(inst, cand) - before
					assert.InDelta(t, want, got, Eps, "insert %d at %d", id, p)
				}
			}
		})
	}
}

func TestIncrementalCostTracking(t *testing.T) {
	tour, a, b := lineTour(t)
	require.NoError(t, tour.Remove(a))
	assert.InDelta(t, 6, tour.TotalCost(), Eps)
	require.NoError(t, tour.InsertBefore(tour.Home(), a))
	assert.InDelta(t, 3+2+1, tour.TotalCost(), Eps)
	assert.InDelta(t, tour.TotalCost(), tour.CostDelegate().EvaluateTour(tour, true), Eps)
	require.NoError(t, tour.Reverse(b, a))
	assert.InDelta(t, 6, tour.TotalCost(), Eps)
	assert.InDelta(t, 6, TravelCost{}.EvaluateTour(tour, false), Eps)
}
