package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"techroute/internal/opt"
)

func sample() InstanceIn {
	return InstanceIn{
		Name:  "line",
		Depot: DepotIn{Location: Location{X: 50}},
		Technicians: []TechnicianIn{
			{ID: "west", Home: Location{X: 0}},
			{ID: "east", Home: Location{X: 100}},
		},
		Requests: []RequestIn{
			{ID: "a", Location: Location{X: 10}, TimeWindow: &TimeWindow{Start: 0, End: 100}},
			{ID: "b", Location: Location{X: 90}, ServiceMin: 5},
		},
	}
}

func TestCompile(t *testing.T) {
	c, err := Compile(sample())
	require.NoError(t, err)
	inst := c.Instance
	assert.Equal(t, 5, inst.NodeCount())
	assert.Equal(t, opt.NodeID(0), inst.MainDepot())
	assert.Equal(t, []opt.NodeID{3, 4}, inst.Requests())

	a, ok := c.Request("a")
	require.True(t, ok)
	assert.Equal(t, "a", c.RequestID(a))
	assert.Equal(t, "", c.RequestID(1), "homes have no request id")
	assert.Equal(t, "", c.RequestID(99))
	k, ok := c.Technician("east")
	require.True(t, ok)
	assert.Equal(t, "east", c.TechnicianID(k))
	assert.Equal(t, 100.0, inst.Node(inst.Requests()[0]).Window.End)
	assert.True(t, inst.Node(4).Window == opt.OpenWindow())

	giant, err := c.Giant([]string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []opt.NodeID{4, 3}, giant)
	_, err = c.Giant([]string{"zz"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCompileRejects(t *testing.T) {
	for name, mutate := range map[string]func(*InstanceIn){
		"no technicians":  func(in *InstanceIn) { in.Technicians = nil },
		"missing id":      func(in *InstanceIn) { in.Requests[0].ID = "" },
		"duplicate tech":  func(in *InstanceIn) { in.Technicians[1].ID = "west" },
		"duplicate req":   func(in *InstanceIn) { in.Requests[1].ID = "a" },
		"short matrix":    func(in *InstanceIn) { in.Travel = [][]float64{{0}} },
		"negative travel": func(in *InstanceIn) { in.Travel = square(5, -1) },
		"bad window":      func(in *InstanceIn) { in.Requests[0].TimeWindow = &TimeWindow{Start: 9, End: 1} },
	} {
		t.Run(name, func(t *testing.T) {
			in := sample()
			mutate(&in)
			_, err := Compile(in)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func square(n int, v float64) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = v
			}
		}
	}
	return m
}

func TestCompileWithMatrix(t *testing.T) {
	in := sample()
	in.Travel = square(5, 7)
	c, err := Compile(in)
	require.NoError(t, err)
	assert.Equal(t, 7.0, c.Instance.Travel(0, 3))
}

func TestEncodeRestore(t *testing.T) {
	c, err := Compile(sample())
	require.NoError(t, err)
	s, err := opt.NewSolver(c.Instance, opt.DefaultOptions(), nil)
	require.NoError(t, err)
	sol, m, err := s.Solve(opt.AlgorithmInsertion, nil)
	require.NoError(t, err)

	out := SolutionOut{ID: "s1", Algorithm: opt.AlgorithmInsertion, Metrics: m}
	c.Encode(sol, &out)
	require.Len(t, out.Tours, 2)
	assert.Equal(t, "west", out.Tours[0].Technician)
	assert.Equal(t, []string{"a"}, out.Tours[0].Requests)
	assert.Equal(t, []string{"b"}, out.Tours[1].Requests)
	assert.InDelta(t, 40, out.Cost, opt.Eps)
	assert.Empty(t, out.Unserved)
	v := out.Tours[1].Visits[1]
	assert.Equal(t, "request", v.Kind)
	assert.InDelta(t, 10, v.Arrival, opt.Eps)
	assert.InDelta(t, 15, v.Departure, opt.Eps)
	assert.Nil(t, v.Slack, "open windows have unbounded slack")
	require.NotNil(t, out.Tours[0].Visits[1].Slack)
	assert.InDelta(t, 90, *out.Tours[0].Visits[1].Slack, opt.Eps)

	// the encoding must survive a JSON round trip through the store
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	var back SolutionOut
	require.NoError(t, json.Unmarshal(raw, &back))

	restored, err := c.Restore(back, s.Cost())
	require.NoError(t, err)
	assert.InDelta(t, sol.Cost(), restored.Cost(), opt.Eps)
	assert.NoError(t, restored.Check(opt.DefaultConstraints()))

	back.Tours[0].Technician = "north"
	_, err = c.Restore(back, s.Cost())
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestInstanceYAML(t *testing.T) {
	doc := `
name: yaml
allowDepotTrips: true
depot: {location: {x: 1, y: 1}}
technicians:
  - id: t1
    home: {x: 0, y: 0}
    capacity: [2]
    tools: [1]
requests:
  - id: r1
    location: {x: 3, y: 4}
    timeWindow: {start: 0, end: 30}
    parts: [1]
`
	var in InstanceIn
	require.NoError(t, yaml.Unmarshal([]byte(doc), &in))
	c, err := Compile(in)
	require.NoError(t, err)
	assert.True(t, c.Instance.AllowDepotTrips())
	assert.Equal(t, 1, c.Instance.Compartments())
	assert.InDelta(t, 5, c.Instance.Travel(1, 2), opt.Eps)
}
