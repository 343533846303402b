// Command trsp solves an instance file offline and prints the solution as
// JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"techroute/internal/model"
	"techroute/internal/opt"
)

func main() {
	var (
		instancePath = flag.String("instance", "", "instance file (.yaml, .yml or .json)")
		algorithm    = flag.String("algorithm", opt.AlgorithmInsertion, "insertion or split")
		objective    = flag.String("objective", opt.ObjectiveDistance, "distance or workingTime")
		latePenalty  = flag.Float64("late-penalty", 0, "cost per unit of soft lateness (workingTime)")
		tech         = flag.String("tech", "", "split the giant tour for this technician only")
		giant        = flag.String("giant", "", "comma-separated request ids forming the giant tour")
		twoOpt       = flag.Int("twoopt", 0, "2-opt improvements per tour (0 = off)")
		debug        = flag.Bool("debug", false, "check the solution and log diagnostics")
		strict       = flag.Bool("strict", false, "panic on inconsistencies (with -debug)")
	)
	flag.Parse()
	if *instancePath == "" {
		flag.Usage()
		os.Exit(2)
	}
	logger := log.New(os.Stderr, "trsp ", log.LstdFlags)

	in, err := readInstance(*instancePath)
	if err != nil {
		logger.Fatal(err)
	}
	c, err := model.Compile(in)
	if err != nil {
		logger.Fatal(err)
	}
	opts := opt.DefaultOptions()
	opts.Objective = *objective
	opts.LatePenalty = *latePenalty
	opts.TwoOpt = *twoOpt
	opts.Debug = *debug
	opts.Strict = *strict
	var sink opt.Logger
	if *debug {
		sink = logger
	}
	solver, err := opt.NewSolver(c.Instance, opts, sink)
	if err != nil {
		logger.Fatal(err)
	}
	var ids []string
	if *giant != "" {
		ids = strings.Split(*giant, ",")
	}
	order, err := c.Giant(ids)
	if err != nil {
		logger.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if *tech != "" {
		k, ok := c.Technician(*tech)
		if !ok {
			logger.Fatalf("unknown technician %q", *tech)
		}
		if len(order) == 0 {
			order = opt.ByDeadline(c.Instance, c.Instance.Requests())
		}
		tours, m, err := solver.SplitTour(order, k)
		if err != nil {
			logger.Fatal(err)
		}
		if len(tours) == 0 {
			logger.Fatalf("no feasible split for %s", *tech)
		}
		out := make([]model.TourOut, 0, len(tours))
		for _, t := range tours {
			out = append(out, c.EncodeTour(t))
		}
		_ = enc.Encode(map[string]any{"technician": *tech, "tours": out, "metrics": m})
		return
	}

	sol, m, err := solver.Solve(*algorithm, order)
	if err != nil {
		logger.Fatal(err)
	}
	out := model.SolutionOut{Algorithm: *algorithm, Metrics: m, Options: opts}
	c.Encode(sol, &out)
	if err := enc.Encode(out); err != nil {
		logger.Fatal(err)
	}
	if len(out.Unserved) > 0 {
		fmt.Fprintf(os.Stderr, "unserved: %s\n", strings.Join(out.Unserved, ","))
	}
}

func readInstance(path string) (model.InstanceIn, error) {
	var in model.InstanceIn
	f, err := os.Open(path)
	if err != nil {
		return in, err
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return in, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &in)
	default:
		err = json.Unmarshal(raw, &in)
	}
	if err != nil {
		return in, fmt.Errorf("parse %s: %w", path, err)
	}
	return in, nil
}
