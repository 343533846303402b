package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"techroute/internal/model"
	"techroute/internal/opt"
)

// Postgres keeps instances and solutions as JSONB documents.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) CreateInstance(ctx context.Context, in model.InstanceIn) (model.InstanceOut, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return model.InstanceOut{}, err
	}
	id := uuid.New()
	var created time.Time
	err = p.db.QueryRowContext(ctx,
		`INSERT INTO instances (id, name, technicians, requests, body) VALUES ($1,$2,$3,$4,$5) RETURNING created_at`,
		id, nullIfEmpty(in.Name), len(in.Technicians), len(in.Requests), string(body)).Scan(&created)
	if err != nil {
		return model.InstanceOut{}, fmt.Errorf("insert instance: %w", err)
	}
	return summary(id.String(), in, stamp(created)), nil
}

func (p *Postgres) GetInstance(ctx context.Context, id string) (model.InstanceIn, model.InstanceOut, error) {
	var in model.InstanceIn
	uid, err := uuid.Parse(id)
	if err != nil {
		return in, model.InstanceOut{}, ErrNotFound
	}
	var body []byte
	var created time.Time
	err = p.db.QueryRowContext(ctx, `SELECT body, created_at FROM instances WHERE id=$1`, uid).Scan(&body, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return in, model.InstanceOut{}, ErrNotFound
	}
	if err != nil {
		return in, model.InstanceOut{}, err
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return in, model.InstanceOut{}, fmt.Errorf("decode instance %s: %w", id, err)
	}
	return in, summary(id, in, stamp(created)), nil
}

func (p *Postgres) ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceOut, string, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, technicians, requests, created_at FROM instances WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, technicians, requests, created_at FROM instances ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.InstanceOut{}
	var last string
	for rows.Next() {
		var o model.InstanceOut
		var name sql.NullString
		var created time.Time
		if err := rows.Scan(&o.ID, &name, &o.Technicians, &o.Requests, &created); err != nil {
			return nil, "", err
		}
		o.Name = name.String
		o.CreatedAt = stamp(created)
		out = append(out, o)
		last = o.ID
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) SaveSolution(ctx context.Context, sol model.SolutionOut) (model.SolutionOut, error) {
	iid, err := uuid.Parse(sol.InstanceID)
	if err != nil {
		return sol, ErrNotFound
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return sol, err
	}
	defer func() { _ = tx.Rollback() }()

	ts := time.Now().UTC()
	if sol.ID == "" {
		sol.ID = uuid.New().String()
		sol.CreatedAt = stamp(ts)
		sol.UpdatedAt = sol.CreatedAt
		body, err := json.Marshal(sol)
		if err != nil {
			return sol, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO solutions (id, instance_id, algorithm, cost, body, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$6)`,
			sol.ID, iid, sol.Algorithm, sol.Cost, string(body), ts)
		if err != nil {
			return sol, fmt.Errorf("insert solution: %w", err)
		}
	} else {
		var created time.Time
		err := tx.QueryRowContext(ctx, `SELECT created_at FROM solutions WHERE id::text=$1 FOR UPDATE`, sol.ID).Scan(&created)
		if errors.Is(err, sql.ErrNoRows) {
			return sol, ErrNotFound
		}
		if err != nil {
			return sol, err
		}
		sol.CreatedAt = stamp(created)
		sol.UpdatedAt = stamp(ts)
		body, err := json.Marshal(sol)
		if err != nil {
			return sol, err
		}
		_, err = tx.ExecContext(ctx, `UPDATE solutions SET algorithm=$2, cost=$3, body=$4, updated_at=$5 WHERE id::text=$1`,
			sol.ID, sol.Algorithm, sol.Cost, string(body), ts)
		if err != nil {
			return sol, fmt.Errorf("update solution: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return sol, err
	}
	return sol, nil
}

func (p *Postgres) GetSolution(ctx context.Context, id string) (model.SolutionOut, error) {
	var sol model.SolutionOut
	if _, err := uuid.Parse(id); err != nil {
		return sol, ErrNotFound
	}
	var body []byte
	err := p.db.QueryRowContext(ctx, `SELECT body FROM solutions WHERE id::text=$1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return sol, ErrNotFound
	}
	if err != nil {
		return sol, err
	}
	if err := json.Unmarshal(body, &sol); err != nil {
		return sol, fmt.Errorf("decode solution %s: %w", id, err)
	}
	return sol, nil
}

func (p *Postgres) ListSolutions(ctx context.Context, instanceID, cursor string, limit int) ([]model.SolutionOut, string, error) {
	limit = clampLimit(limit)
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, body FROM solutions
		 WHERE ($1 = '' OR instance_id::text = $1) AND ($2 = '' OR id::text > $2)
		 ORDER BY id LIMIT $3`, instanceID, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.SolutionOut{}
	var last string
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, "", err
		}
		var sol model.SolutionOut
		if err := json.Unmarshal(body, &sol); err != nil {
			return nil, "", fmt.Errorf("decode solution %s: %w", id, err)
		}
		out = append(out, sol)
		last = id
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) SaveRunMetrics(ctx context.Context, solutionID, algorithm string, m opt.RunMetrics) error {
	if _, err := uuid.Parse(solutionID); err != nil {
		return ErrNotFound
	}
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO run_metrics (solution_id, algorithm, metrics)
		 SELECT id, $2, $3 FROM solutions WHERE id::text=$1
		 ON CONFLICT (solution_id, algorithm) DO UPDATE SET metrics=EXCLUDED.metrics, recorded_at=now()`,
		solutionID, algorithm, string(body))
	if err != nil {
		return fmt.Errorf("save run metrics: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListRunMetrics(ctx context.Context, solutionID string) (map[string]opt.RunMetrics, error) {
	if _, err := p.GetSolution(ctx, solutionID); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT algorithm, metrics FROM run_metrics WHERE solution_id::text=$1`, solutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]opt.RunMetrics{}
	for rows.Next() {
		var algo string
		var body []byte
		if err := rows.Scan(&algo, &body); err != nil {
			return nil, err
		}
		var m opt.RunMetrics
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("decode run metrics %s/%s: %w", solutionID, algo, err)
		}
		out[algo] = m
	}
	return out, rows.Err()
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
