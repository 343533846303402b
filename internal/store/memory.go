package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"techroute/internal/model"
	"techroute/internal/opt"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set. Run
// metrics go to the process-wide opt metrics store.
type Memory struct {
	mu        sync.Mutex
	instances map[string]memInstance
	instOrder []string
	solutions map[string]model.SolutionOut
	solOrder  []string
}

type memInstance struct {
	in  model.InstanceIn
	out model.InstanceOut
}

func NewMemory() *Memory {
	return &Memory{
		instances: map[string]memInstance{},
		solutions: map[string]model.SolutionOut{},
	}
}

func (m *Memory) CreateInstance(ctx context.Context, in model.InstanceIn) (model.InstanceOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	out := summary(id, in, now())
	m.instances[id] = memInstance{in: in, out: out}
	m.instOrder = append(m.instOrder, id)
	return out, nil
}

func (m *Memory) GetInstance(ctx context.Context, id string) (model.InstanceIn, model.InstanceOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.instances[id]
	if !ok {
		return model.InstanceIn{}, model.InstanceOut{}, ErrNotFound
	}
	return it.in, it.out, nil
}

func (m *Memory) ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, next := page(m.instOrder, cursor, limit)
	items := make([]model.InstanceOut, 0, len(ids))
	for _, id := range ids {
		items = append(items, m.instances[id].out)
	}
	return items, next, nil
}

func (m *Memory) SaveSolution(ctx context.Context, sol model.SolutionOut) (model.SolutionOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[sol.InstanceID]; !ok {
		return sol, ErrNotFound
	}
	ts := now()
	if sol.ID == "" {
		sol.ID = uuid.New().String()
		sol.CreatedAt = ts
		m.solOrder = append(m.solOrder, sol.ID)
	} else if prev, ok := m.solutions[sol.ID]; ok {
		sol.CreatedAt = prev.CreatedAt
	} else {
		return sol, ErrNotFound
	}
	sol.UpdatedAt = ts
	m.solutions[sol.ID] = sol
	return sol, nil
}

func (m *Memory) GetSolution(ctx context.Context, id string) (model.SolutionOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sol, ok := m.solutions[id]
	if !ok {
		return model.SolutionOut{}, ErrNotFound
	}
	return sol, nil
}

func (m *Memory) ListSolutions(ctx context.Context, instanceID, cursor string, limit int) ([]model.SolutionOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.solOrder
	if instanceID != "" {
		ids = make([]string, 0, len(m.solOrder))
		for _, id := range m.solOrder {
			if m.solutions[id].InstanceID == instanceID {
				ids = append(ids, id)
			}
		}
	}
	sel, next := page(ids, cursor, limit)
	items := make([]model.SolutionOut, 0, len(sel))
	for _, id := range sel {
		items = append(items, m.solutions[id])
	}
	return items, next, nil
}

func (m *Memory) SaveRunMetrics(ctx context.Context, solutionID, algorithm string, rm opt.RunMetrics) error {
	m.mu.Lock()
	_, ok := m.solutions[solutionID]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	opt.RecordMetrics(solutionID, algorithm, rm)
	return nil
}

func (m *Memory) ListRunMetrics(ctx context.Context, solutionID string) (map[string]opt.RunMetrics, error) {
	m.mu.Lock()
	_, ok := m.solutions[solutionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return opt.GetMetrics(solutionID), nil
}

// page returns the ids after cursor and the cursor of the following page,
// "" on the last one.
func page(ids []string, cursor string, limit int) ([]string, string) {
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	limit = clampLimit(limit)
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}
	if start > end {
		start = end
	}
	next := ""
	if end < len(ids) {
		next = ids[end-1]
	}
	return append([]string(nil), ids[start:end]...), next
}
