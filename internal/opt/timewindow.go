package opt

import "math"

// Eps is the tolerance used for every comparison of propagated times.
const Eps = 1e-3

// TimeWindow is the interval in which service may start. A soft window never
// makes a schedule infeasible; lateness is priced by the cost delegate.
type TimeWindow struct {
	Start float64
	End   float64
	Soft  bool
}

// OpenWindow returns [0, +Inf).
func OpenWindow() TimeWindow { return TimeWindow{Start: 0, End: math.Inf(1)} }

// EarliestStart is the earliest start of service for the given arrival.
func (w TimeWindow) EarliestStart(arrival float64) float64 {
	return math.Max(arrival, w.Start)
}

// Feasible reports whether service may start at t.
func (w TimeWindow) Feasible(t float64) bool {
	return w.Soft || t <= w.End+Eps
}

// Lateness is the amount by which t exceeds the window end.
func (w TimeWindow) Lateness(t float64) float64 {
	return math.Max(0, t-w.End)
}

// hardEnd is the end that bounds slack computations.
func (w TimeWindow) hardEnd() float64 {
	if w.Soft {
		return math.Inf(1)
	}
	return w.End
}

// ApproxEqual compares two schedule values within Eps.
func ApproxEqual(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= Eps
}
