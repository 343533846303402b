package opt

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveSignConvention(t *testing.T) {
	moves := []Move{
		InsertionMove{Delta: 4},
		RemovalMove{Delta: -3},
		ReversalMove{Delta: 2},
		SwapMove{Delta: 0},
		MergeMove{Delta: 1, Source: &Tour{}},
	}
	for _, m := range moves {
		assert.Equal(t, -m.Cost(), m.Improvement(), m.String())
	}

	cheap := InsertionMove{Delta: 1}
	dear := InsertionMove{Delta: 5}
	assert.Less(t, Compare(cheap, dear), 0, "lower cost ranks first")
	assert.Greater(t, cheap.Improvement(), dear.Improvement(), "higher improvement means lower cost")
	assert.Less(t, Compare(RemovalMove{Delta: -3}, cheap), 0)

	infeasible := InfeasibleInsertion(3, 0)
	assert.False(t, infeasible.Feasible())
	assert.True(t, math.IsInf(infeasible.Cost(), 1))
	assert.Less(t, Compare(dear, infeasible), 0)
	assert.Equal(t, 0, Compare(infeasible, InfeasibleInsertion(4, 1)))
}

func TestCompareSecondaryBreaksTies(t *testing.T) {
	a := InsertionMove{Delta: 2, Secondary: 1}
	b := InsertionMove{Delta: 2 + Eps/2, Secondary: 0.5}
	assert.Greater(t, Compare(a, b), 0, "equal cost: lower secondary wins")
	assert.Less(t, Compare(b, a), 0)

	moves := []Move{
		InsertionMove{Delta: 3},
		a,
		InfeasibleInsertion(1, 0),
		b,
	}
	slices.SortFunc(moves, Compare)
	assert.Equal(t, Move(b), moves[0])
	assert.Equal(t, Move(a), moves[1])
	assert.Equal(t, 3.0, moves[2].Cost())
}

func TestCandidate(t *testing.T) {
	tour, a, b := lineTour(t)
	h, d := tour.Home(), tour.inst.MainDepot()

	r, ok := candidate(tour, RemovalMove{Node: a})
	require.True(t, ok)
	assert.Equal(t, []NodeID{h, b, h}, nodesOf(r))

	r, ok = candidate(tour, ReversalMove{From: b, To: a})
	require.True(t, ok)
	assert.Equal(t, []NodeID{h, b, a, h}, nodesOf(r))

	r, ok = candidate(tour, SwapMove{A: a, B: b})
	require.True(t, ok)
	assert.Equal(t, []NodeID{h, b, a, h}, nodesOf(r))

	// depot right before the new node
	require.NoError(t, tour.Remove(b))
	ins := InsertionMove{Node: b, Pred: a, Succ: h, DepotPred: a, DepotSucc: b}
	r, ok = candidate(tour, ins)
	require.True(t, ok)
	assert.Equal(t, []NodeID{h, a, d, b, h}, nodesOf(r))

	// depot before an existing node
	ins = InsertionMove{Node: b, Pred: a, Succ: h, DepotPred: h, DepotSucc: a}
	r, ok = candidate(tour, ins)
	require.True(t, ok)
	assert.Equal(t, []NodeID{h, d, a, b, h}, nodesOf(r))

	_, ok = candidate(tour, InsertionMove{Node: b, Pred: h, Succ: h, DepotSucc: Undefined})
	assert.False(t, ok, "pred and succ are not adjacent")
}
