package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techroute/internal/model"
	"techroute/internal/opt"
)

func TestReadInstanceYAML(t *testing.T) {
	in, err := readInstance(filepath.Join("testdata", "line.yaml"))
	require.NoError(t, err)
	assert.Len(t, in.Technicians, 2)
	assert.Len(t, in.Requests, 3)
	require.NotNil(t, in.Requests[2].TimeWindow)
	assert.True(t, in.Requests[2].TimeWindow.Soft)

	c, err := model.Compile(in)
	require.NoError(t, err)
	s, err := opt.NewSolver(c.Instance, opt.DefaultOptions(), nil)
	require.NoError(t, err)
	sol, _, err := s.Solve(opt.AlgorithmInsertion, nil)
	require.NoError(t, err)
	assert.Empty(t, sol.Unserved())
}

func TestReadInstanceJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"technicians":[{"id":"t"}],"requests":[{"id":"r","location":{"x":1}}]}`), 0o600))
	in, err := readInstance(p)
	require.NoError(t, err)
	assert.Equal(t, "r", in.Requests[0].ID)

	require.NoError(t, os.WriteFile(p, []byte(`{`), 0o600))
	_, err = readInstance(p)
	assert.ErrorContains(t, err, "parse")
}
