package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/skylens/weathercard/cmd/cardgen/models"
	"github.com/skylens/weathercard/common/db"
)

// ErrStepNotFound is returned when no record exists for (run, step)
var ErrStepNotFound = errors.New("step record not found")

// StepRepository persists step records keyed by (run_id, step_name).
// The pipeline consults it before executing a step so completed work is
// not redone after a process restart.
type StepRepository struct {
	db *db.DB
}

// NewStepRepository creates a new step repository
func NewStepRepository(database *db.DB) *StepRepository {
	return &StepRepository{db: database}
}

// Get retrieves the record for one step of a run
func (r *StepRepository) Get(ctx context.Context, runID, stepName string) (*models.StepRecord, error) {
	query := `
		SELECT step_id, run_id, step_name, status, attempt, result, started_at, finished_at
		FROM step_records
		WHERE run_id = $1 AND step_name = $2
	`

	rec := &models.StepRecord{}
	err := r.db.QueryRow(ctx, query, runID, stepName).Scan(
		&rec.StepID,
		&rec.RunID,
		&rec.StepName,
		&rec.Status,
		&rec.Attempt,
		&rec.Result,
		&rec.StartedAt,
		&rec.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStepNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step record: %w", err)
	}

	return rec, nil
}

// MarkRunning upserts the record into the running state, bumping the
// attempt counter on re-execution
func (r *StepRepository) MarkRunning(ctx context.Context, runID, stepName string, attempt int) error {
	query := `
		INSERT INTO step_records (step_id, run_id, step_name, status, attempt, started_at)
		VALUES ($1, $2, $3, 'running', $4, now())
		ON CONFLICT (run_id, step_name) DO UPDATE SET
			status = 'running', attempt = $4, started_at = now(), finished_at = NULL
	`

	_, err := r.db.Exec(ctx, query, uuid.New(), runID, stepName, attempt)
	if err != nil {
		return fmt.Errorf("failed to mark step running: %w", err)
	}

	return nil
}

// MarkCompleted records the step's result so a replay can return it
// without re-executing
func (r *StepRepository) MarkCompleted(ctx context.Context, runID, stepName string, attempt int, result json.RawMessage) error {
	query := `
		INSERT INTO step_records (step_id, run_id, step_name, status, attempt, result, started_at, finished_at)
		VALUES ($1, $2, $3, 'completed', $4, $5, now(), now())
		ON CONFLICT (run_id, step_name) DO UPDATE SET
			status = 'completed', attempt = $4, result = $5, finished_at = now()
	`

	_, err := r.db.Exec(ctx, query, uuid.New(), runID, stepName, attempt, result)
	if err != nil {
		return fmt.Errorf("failed to mark step completed: %w", err)
	}

	return nil
}

// MarkFailed records a step failure after its retry budget is exhausted
func (r *StepRepository) MarkFailed(ctx context.Context, runID, stepName string, attempt int) error {
	query := `
		INSERT INTO step_records (step_id, run_id, step_name, status, attempt, started_at, finished_at)
		VALUES ($1, $2, $3, 'failed', $4, now(), now())
		ON CONFLICT (run_id, step_name) DO UPDATE SET
			status = 'failed', attempt = $4, finished_at = now()
	`

	_, err := r.db.Exec(ctx, query, uuid.New(), runID, stepName, attempt)
	if err != nil {
		return fmt.Errorf("failed to mark step failed: %w", err)
	}

	return nil
}

// DeleteForRun removes all step records for a run (cleanup alongside
// ledger row deletion)
func (r *StepRepository) DeleteForRun(ctx context.Context, runID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM step_records WHERE run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete step records: %w", err)
	}
	return nil
}
