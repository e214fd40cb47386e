package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/safety"
)

const schema = `
CREATE TABLE IF NOT EXISTS recovery_executions (
	id             TEXT PRIMARY KEY,
	plan_id        TEXT NOT NULL,
	status         TEXT NOT NULL,
	dry_run        BOOLEAN NOT NULL DEFAULT FALSE,
	start_time     TIMESTAMPTZ NOT NULL,
	end_time       TIMESTAMPTZ,
	rto_compliance BOOLEAN NOT NULL DEFAULT FALSE,
	rpo_compliance BOOLEAN NOT NULL DEFAULT FALSE,
	document       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS recovery_executions_plan_idx ON recovery_executions (plan_id, start_time DESC);
CREATE TABLE IF NOT EXISTS recovery_snapshots (
	execution_id   TEXT NOT NULL,
	component_id   TEXT NOT NULL,
	component_type TEXT NOT NULL,
	state          JSONB,
	captured_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (execution_id, component_id)
);`

const upsertExecution = `
INSERT INTO recovery_executions (id, plan_id, status, dry_run, start_time, end_time, rto_compliance, rpo_compliance, document)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	end_time = EXCLUDED.end_time,
	rto_compliance = EXCLUDED.rto_compliance,
	rpo_compliance = EXCLUDED.rpo_compliance,
	document = EXCLUDED.document`

const upsertSnapshot = `
INSERT INTO recovery_snapshots (execution_id, component_id, component_type, state, captured_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (execution_id, component_id) DO UPDATE SET
	state = EXCLUDED.state,
	captured_at = EXCLUDED.captured_at`

// Querier is the subset of pgxpool.Pool the store uses
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ExecutionStore persists finished executions and pre-recovery snapshots
type ExecutionStore struct {
	q Querier
}

// NewExecutionStore wraps a pool or connection
func NewExecutionStore(q Querier) *ExecutionStore {
	return &ExecutionStore{q: q}
}

// EnsureSchema creates the tables if they do not exist
func (s *ExecutionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveExecution upserts the execution document
func (s *ExecutionStore) SaveExecution(ctx context.Context, exec *domain.RecoveryExecution) error {
	doc, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("encode execution %s: %w", exec.ID, err)
	}
	_, err = s.q.Exec(ctx, upsertExecution,
		exec.ID, exec.PlanID, string(exec.Status), exec.DryRun,
		exec.StartTime, exec.EndTime,
		exec.Metrics.RTOCompliance, exec.Metrics.RPOCompliance,
		doc,
	)
	if err != nil {
		return fmt.Errorf("save execution %s: %w", exec.ID, err)
	}
	return nil
}

// GetExecution loads one execution
func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (*domain.RecoveryExecution, error) {
	var doc []byte
	err := s.q.QueryRow(ctx, `SELECT document FROM recovery_executions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	return decodeExecution(doc)
}

// ListExecutions returns the newest executions first, optionally for one plan
func (s *ExecutionStore) ListExecutions(ctx context.Context, planID string, limit int) ([]*domain.RecoveryExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.Query(ctx, `
		SELECT document FROM recovery_executions
		WHERE $1 = '' OR plan_id = $1
		ORDER BY start_time DESC
		LIMIT $2`, planID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.RecoveryExecution
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		exec, err := decodeExecution(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

// SaveSnapshot stores a pre-recovery snapshot
func (s *ExecutionStore) SaveSnapshot(ctx context.Context, snap *safety.Snapshot) error {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode snapshot %s/%s: %w", snap.ExecutionID, snap.ComponentID, err)
	}
	_, err = s.q.Exec(ctx, upsertSnapshot,
		snap.ExecutionID, snap.ComponentID, string(snap.ComponentType), state, snap.CapturedAt)
	if err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", snap.ExecutionID, snap.ComponentID, err)
	}
	return nil
}

func decodeExecution(doc []byte) (*domain.RecoveryExecution, error) {
	var exec domain.RecoveryExecution
	if err := json.Unmarshal(doc, &exec); err != nil {
		return nil, fmt.Errorf("decode execution: %w", err)
	}
	return &exec, nil
}
