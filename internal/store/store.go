package store

import (
	"context"
	"errors"
	"time"

	"techroute/internal/model"
	"techroute/internal/opt"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Instances
	CreateInstance(ctx context.Context, in model.InstanceIn) (model.InstanceOut, error)
	GetInstance(ctx context.Context, id string) (model.InstanceIn, model.InstanceOut, error)
	ListInstances(ctx context.Context, cursor string, limit int) (items []model.InstanceOut, nextCursor string, err error)

	// Solutions. SaveSolution assigns an id when sol.ID is empty and
	// replaces the stored solution otherwise.
	SaveSolution(ctx context.Context, sol model.SolutionOut) (model.SolutionOut, error)
	GetSolution(ctx context.Context, id string) (model.SolutionOut, error)
	ListSolutions(ctx context.Context, instanceID, cursor string, limit int) (items []model.SolutionOut, nextCursor string, err error)

	// Run metrics, one entry per solution and algorithm.
	SaveRunMetrics(ctx context.Context, solutionID, algorithm string, m opt.RunMetrics) error
	ListRunMetrics(ctx context.Context, solutionID string) (map[string]opt.RunMetrics, error)
}

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 100
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func summary(id string, in model.InstanceIn, createdAt string) model.InstanceOut {
	return model.InstanceOut{
		ID:          id,
		Name:        in.Name,
		Technicians: len(in.Technicians),
		Requests:    len(in.Requests),
		CreatedAt:   createdAt,
	}
}
