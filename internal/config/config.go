// Package config loads service configuration from a YAML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"techroute/internal/opt"
)

type Server struct {
	Port      string  `yaml:"port"`
	RateRPS   float64 `yaml:"rateRps"`
	RateBurst int     `yaml:"rateBurst"`
}

type Database struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type Redis struct {
	URL string `yaml:"url"`
}

type Config struct {
	Server   Server      `yaml:"server"`
	Database Database    `yaml:"database"`
	Redis    Redis       `yaml:"redis"`
	Solver   opt.Options `yaml:"solver"`
}

// Default is an in-memory, single-replica setup on port 8080.
func Default() Config {
	return Config{
		Server:   Server{Port: "8080", RateRPS: 50, RateBurst: 100},
		Database: Database{Migrate: true},
		Solver:   opt.DefaultOptions(),
	}
}

// Load reads path (skipped when empty or missing) on top of Default, then
// applies .env and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		cfg.Database.Migrate = !strings.EqualFold(v, "false")
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		cfg.Server.RateRPS = f
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_BURST: %w", err)
		}
		cfg.Server.RateBurst = n
	}
	if v := os.Getenv("TRSP_OBJECTIVE"); v != "" {
		cfg.Solver.Objective = v
	}
	if v := os.Getenv("TRSP_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRSP_DEBUG: %w", err)
		}
		cfg.Solver.Debug = b
	}
	return nil
}

// Validate checks ranges and the objective name.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("config: server.port is empty")
	}
	if c.Server.RateRPS < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("config: rate limit %g/%d must be >= 0", c.Server.RateRPS, c.Server.RateBurst)
	}
	if _, err := opt.NewCostDelegate(c.Solver.Objective); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Solver.TwoOpt < 0 {
		return fmt.Errorf("config: solver.twoOpt must be >= 0, got %d", c.Solver.TwoOpt)
	}
	return nil
}

// DecodeSolverOptions overlays free-form per-request options on base. Values
// are weakly typed ("true", "3") and unknown keys are rejected.
func DecodeSolverOptions(in map[string]any, base opt.Options) (opt.Options, error) {
	out := base
	if len(in) == 0 {
		return out, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return base, err
	}
	if err := dec.Decode(in); err != nil {
		return base, fmt.Errorf("solver options: %w", err)
	}
	if out.TwoOpt < 0 {
		return base, fmt.Errorf("solver options: twoOpt must be >= 0, got %d", out.TwoOpt)
	}
	return out, nil
}
