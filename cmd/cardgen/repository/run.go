package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/skylens/weathercard/cmd/cardgen/models"
	"github.com/skylens/weathercard/common/db"
)

// ErrRunNotFound is returned when no run exists for an id
var ErrRunNotFound = errors.New("run not found")

const runFields = `run_id, city, resolved_city_name, weather_condition, weather_icon,
	temp_min, temp_max, current_temp, weather_date, model, image_key,
	status, error_message, duration_ms, created_at, updated_at`

// RunRepository handles database operations for generation runs
type RunRepository struct {
	db *db.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

// Create inserts a new run row with status running. ON CONFLICT DO
// NOTHING keeps the insert idempotent when the same logical run is
// re-executed after a restart.
func (r *RunRepository) Create(ctx context.Context, runID, city string, weatherDate time.Time) error {
	query := `
		INSERT INTO generation_runs (run_id, city, weather_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'running', now(), now())
		ON CONFLICT (run_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query, runID, city, weatherDate)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetByID retrieves a run by its ID
func (r *RunRepository) GetByID(ctx context.Context, runID string) (*models.Run, error) {
	query := `SELECT ` + runFields + ` FROM generation_runs WHERE run_id = $1`

	run := &models.Run{}
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&run.RunID,
		&run.City,
		&run.ResolvedCityName,
		&run.WeatherCondition,
		&run.WeatherIcon,
		&run.TempMin,
		&run.TempMax,
		&run.CurrentTemp,
		&run.WeatherDate,
		&run.Model,
		&run.ImageKey,
		&run.Status,
		&run.ErrorMessage,
		&run.DurationMs,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// UpdateWeather persists the resolved weather fields onto a run row
func (r *RunRepository) UpdateWeather(ctx context.Context, runID string, w models.WeatherUpdate) error {
	query := `
		UPDATE generation_runs SET
			resolved_city_name = $2, weather_condition = $3, weather_icon = $4,
			temp_min = $5, temp_max = $6, current_temp = $7, updated_at = now()
		WHERE run_id = $1
	`

	_, err := r.db.Exec(ctx, query, runID,
		w.ResolvedCityName, w.ConditionText, w.ConditionIcon,
		w.TempMin, w.TempMax, w.CurrentTemp,
	)
	if err != nil {
		return fmt.Errorf("failed to update weather: %w", err)
	}

	return nil
}

// MarkSucceeded records the terminal succeeded state
func (r *RunRepository) MarkSucceeded(ctx context.Context, runID, imageKey, model string, durationMs int64) error {
	query := `
		UPDATE generation_runs SET
			image_key = $2, model = $3, status = 'succeeded',
			duration_ms = $4, updated_at = now()
		WHERE run_id = $1
	`

	_, err := r.db.Exec(ctx, query, runID, imageKey, model, durationMs)
	if err != nil {
		return fmt.Errorf("failed to mark run succeeded: %w", err)
	}

	return nil
}

// MarkFailed records the terminal failed state with a human-readable message
func (r *RunRepository) MarkFailed(ctx context.Context, runID, errorMessage string, durationMs int64) error {
	query := `
		UPDATE generation_runs SET
			status = 'failed', error_message = $2,
			duration_ms = $3, updated_at = now()
		WHERE run_id = $1
	`

	_, err := r.db.Exec(ctx, query, runID, errorMessage, durationMs)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}

	return nil
}

// FindPage retrieves a page of runs ordered by creation time descending,
// with the total count matching the filter for pagination metadata
func (r *RunRepository) FindPage(ctx context.Context, filter models.RunFilter, page, limit int) (*models.RunPage, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	where := ""
	args := []interface{}{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	if filter.Date != nil {
		args = append(args, *filter.Date)
		if where == "" {
			where = fmt.Sprintf(" WHERE weather_date = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND weather_date = $%d", len(args))
		}
	}

	countQuery := `SELECT COUNT(*) FROM generation_runs` + where

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT `+runFields+` FROM generation_runs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	runs, err := r.queryRuns(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &models.RunPage{Runs: runs, Total: total, Page: page, Limit: limit}, nil
}

// FindCards retrieves a page of succeeded runs that have a stored image,
// newest first (the public gallery feed)
func (r *RunRepository) FindCards(ctx context.Context, page, limit int) (*models.RunPage, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	const where = ` WHERE status = 'succeeded' AND image_key IS NOT NULL`

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM generation_runs`+where).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}

	query := `SELECT ` + runFields + ` FROM generation_runs` + where +
		` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	runs, err := r.queryRuns(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}

	return &models.RunPage{Runs: runs, Total: total, Page: page, Limit: limit}, nil
}

// Delete removes a single run row (administrative cleanup)
func (r *RunRepository) Delete(ctx context.Context, runID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM generation_runs WHERE run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// FailStale marks running rows older than cutoff as failed. A run that
// never reached a terminal state means the process died mid-flight and
// nothing resumed it.
func (r *RunRepository) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE generation_runs SET
			status = 'failed',
			error_message = 'run abandoned: no terminal state recorded',
			duration_ms = (EXTRACT(EPOCH FROM now() - created_at) * 1000)::bigint,
			updated_at = now()
		WHERE status = 'running' AND created_at < now() - ($1 * interval '1 second')
	`

	tag, err := r.db.Exec(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale runs: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *RunRepository) queryRuns(ctx context.Context, query string, args ...interface{}) ([]*models.Run, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run := &models.Run{}
		err := rows.Scan(
			&run.RunID,
			&run.City,
			&run.ResolvedCityName,
			&run.WeatherCondition,
			&run.WeatherIcon,
			&run.TempMin,
			&run.TempMax,
			&run.CurrentTemp,
			&run.WeatherDate,
			&run.Model,
			&run.ImageKey,
			&run.Status,
			&run.ErrorMessage,
			&run.DurationMs,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}
