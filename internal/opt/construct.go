package opt

import (
	"cmp"
	"slices"
)

// ByDeadline orders requests by window end, then window start, then id.
func ByDeadline(inst *Instance, requests []NodeID) []NodeID {
	out := slices.Clone(requests)
	slices.SortStableFunc(out, func(a, b NodeID) int {
		wa, wb := inst.nodes[a].Window, inst.nodes[b].Window
		if c := cmp.Compare(wa.End, wb.End); c != 0 {
			return c
		}
		if c := cmp.Compare(wa.Start, wb.Start); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return out
}

// Construct inserts every unserved request of sol, in deadline order, at
// its cheapest feasible position over all tours. Requests without a feasible
// insertion stay unserved; their ids are returned.
func Construct(sol *Solution, search *InsertionSearch) ([]NodeID, error) {
	var left []NodeID
	for _, id := range ByDeadline(sol.inst, sol.Unserved()) {
		m := search.FindBestInsertion(sol, id)
		if !m.Feasible() {
			left = append(left, id)
			continue
		}
		if err := search.Execute(sol, m); err != nil {
			return left, err
		}
	}
	return left, nil
}
