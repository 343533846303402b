package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techroute/internal/opt"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, opt.ObjectiveDistance, cfg.Solver.Objective)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeFile(t, dir, "techroute.yaml", `
server:
  port: "9090"
  rateRps: 5
database:
  url: postgres://file
  migrate: true
solver:
  objective: workingTime
  latePenalty: 2.5
  twoOpt: 3
`)
	writeFile(t, dir, ".env", "REDIS_URL=redis://dotenv:6379/0\n")
	// godotenv never overrides a set variable, so clear it and undo the load afterwards
	os.Unsetenv("REDIS_URL")
	t.Cleanup(func() { os.Unsetenv("REDIS_URL") })
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("DB_MIGRATE", "false")
	t.Setenv("RATE_BURST", "7")
	t.Setenv("TRSP_DEBUG", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5.0, cfg.Server.RateRPS)
	assert.Equal(t, 7, cfg.Server.RateBurst)
	assert.Equal(t, "postgres://env", cfg.Database.URL, "environment wins over the file")
	assert.False(t, cfg.Database.Migrate)
	assert.Equal(t, "redis://dotenv:6379/0", cfg.Redis.URL)
	assert.Equal(t, opt.ObjectiveWorkingTime, cfg.Solver.Objective)
	assert.Equal(t, 2.5, cfg.Solver.LatePenalty)
	assert.Equal(t, 3, cfg.Solver.TwoOpt)
	assert.True(t, cfg.Solver.Debug)
	assert.True(t, cfg.Solver.PruneSearch, "unset keys keep their defaults")
}

func TestLoadMissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("nope.yaml")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	bad := writeFile(t, dir, "bad.yaml", "server: [")
	_, err := Load(bad)
	assert.ErrorContains(t, err, "parse config")

	obj := writeFile(t, dir, "obj.yaml", "solver: {objective: fastest}")
	_, err = Load(obj)
	assert.ErrorContains(t, err, "unknown objective")

	t.Setenv("RATE_RPS", "lots")
	_, err = Load("")
	assert.ErrorContains(t, err, "RATE_RPS")
}

func TestDecodeSolverOptions(t *testing.T) {
	base := opt.DefaultOptions()

	out, err := DecodeSolverOptions(nil, base)
	require.NoError(t, err)
	assert.Equal(t, base, out)

	out, err = DecodeSolverOptions(map[string]any{
		"objective":     "workingTime",
		"twoOpt":        "4",
		"bestInsertion": "false",
		"latePenalty":   1,
	}, base)
	require.NoError(t, err)
	assert.Equal(t, opt.ObjectiveWorkingTime, out.Objective)
	assert.Equal(t, 4, out.TwoOpt)
	assert.False(t, out.BestInsertion)
	assert.Equal(t, 1.0, out.LatePenalty)
	assert.True(t, out.PruneSearch)

	_, err = DecodeSolverOptions(map[string]any{"turbo": true}, base)
	assert.ErrorContains(t, err, "turbo")

	_, err = DecodeSolverOptions(map[string]any{"twoOpt": -1}, base)
	assert.Error(t, err)
}
