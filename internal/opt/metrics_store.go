package opt

import "sync"

// RunMetrics counts the work of one construction or split run.
type RunMetrics struct {
	InsertionsEvaluated int     `json:"insertionsEvaluated"`
	FeasibilityChecks   int     `json:"feasibilityChecks"`
	Pruned              int     `json:"pruned"`
	DepotScans          int     `json:"depotScans"`
	DepotTrips          int     `json:"depotTrips"`
	SplitArcs           int     `json:"splitArcs"`
	TwoOptMoves         int     `json:"twoOptMoves"`
	Served              int     `json:"served"`
	Unserved            int     `json:"unserved"`
	Cost                float64 `json:"cost"`
	DurationMs          int64   `json:"durationMs"`
}

// add is nil-safe so callers can count without checking for a sink.
func (m *RunMetrics) add(f func(*RunMetrics)) {
	if m != nil {
		f(m)
	}
}

type metricsKey struct {
	Solution  string
	Algorithm string
}

var (
	metricsMu sync.Mutex
	runs      = map[metricsKey]RunMetrics{}
)

// RecordMetrics stores the metrics of a finished run.
func RecordMetrics(solutionID, algorithm string, m RunMetrics) {
	metricsMu.Lock()
	runs[metricsKey{Solution: solutionID, Algorithm: algorithm}] = m
	metricsMu.Unlock()
}

// GetMetrics returns the recorded runs of a solution keyed by algorithm.
func GetMetrics(solutionID string) map[string]RunMetrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := map[string]RunMetrics{}
	for k, v := range runs {
		if k.Solution == solutionID {
			out[k.Algorithm] = v
		}
	}
	return out
}
