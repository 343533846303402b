package opt

import "fmt"

// TwoOpt applies best-improvement segment reversals to t until no reversal
// lowers the cost by more than Eps or iterations are used up. Only reversals
// h accepts as Feasible are applied. It returns the number of reversals.
func TwoOpt(t *Tour, cost CostDelegate, h *ConstraintHandler, iterations int) int {
	if iterations <= 0 {
		iterations = 1
	}
	if cost == nil {
		cost = t.cost
	}
	applied := 0
	for it := 0; it < iterations; it++ {
		t.ensure()
		n := len(t.nodes)
		best := ReversalMove{Tour: t.tech, From: Undefined, To: Undefined, Delta: -Eps}
		for i := max(1, t.frozen+1); i < n-2; i++ {
			for k := i + 1; k < n-1; k++ {
				m := ReversalMove{Tour: t.tech, From: t.nodes[i], To: t.nodes[k]}
				m.Delta = cost.EvaluateMove(t, m)
				if m.Delta >= best.Delta {
					continue
				}
				if h != nil && h.Check(t, m) != Feasible {
					continue
				}
				best = m
			}
		}
		if best.From == Undefined {
			break
		}
		if err := t.Reverse(best.From, best.To); err != nil {
			break
		}
		t.Settle()
		applied++
	}
	return applied
}

// MergeTours empties the tour of technician src into tour dst when h accepts
// the merged tour. It reports whether the merge was applied and its net
// change of the solution cost.
func MergeTours(sol *Solution, dst, src int, h *ConstraintHandler) (bool, float64, error) {
	to, from := sol.Tour(dst), sol.Tour(src)
	if to == nil || from == nil || dst == src {
		return false, 0, fmt.Errorf("merge tours %d<-%d: %w", dst, src, ErrUnknownTechnician)
	}
	if from.RequestCount() == 0 {
		return false, 0, nil
	}
	m := MergeMove{Tour: dst, Source: from}
	m.Delta = sol.cost.EvaluateMove(to, m)
	if h != nil && h.Check(to, m) != Feasible {
		return false, 0, nil
	}
	net := m.Delta - from.TotalCost()
	if err := sol.Apply(m); err != nil {
		return false, 0, err
	}
	return true, net, nil
}
