package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/skylens/weathercard/cmd/cardgen/models"
	"github.com/skylens/weathercard/cmd/cardgen/repository"
	"github.com/skylens/weathercard/common/logger"
)

// RetryPolicy bounds how often a step may run before its failure is
// surfaced to the pipeline
type RetryPolicy struct {
	// MaxAttempts is the total number of executions allowed (>= 1)
	MaxAttempts int

	// Delay is the base wait between attempts; attempt n waits n*Delay
	// (linear backoff)
	Delay time.Duration
}

// Once is the default policy: a single attempt, no retries
var Once = RetryPolicy{MaxAttempts: 1}

// StepStore persists step records keyed by (run_id, step_name)
type StepStore interface {
	Get(ctx context.Context, runID, stepName string) (*models.StepRecord, error)
	MarkRunning(ctx context.Context, runID, stepName string, attempt int) error
	MarkCompleted(ctx context.Context, runID, stepName string, attempt int, result json.RawMessage) error
	MarkFailed(ctx context.Context, runID, stepName string, attempt int) error
}

// Executor runs named steps with durable memoization: a step that
// already completed for a run returns its persisted result instead of
// executing again. Steps are therefore at-least-once; their effects
// must be safe to replay.
type Executor struct {
	steps StepStore
	log   *logger.Logger

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

// NewExecutor creates a step executor
func NewExecutor(steps StepStore, log *logger.Logger) *Executor {
	return &Executor{
		steps: steps,
		log:   log,
		sleep: time.Sleep,
	}
}

// execute runs one named step under a retry policy and returns its
// JSON-encoded result.
//
// Step-record bookkeeping failures are logged but never fail the step:
// the record is a replay optimization, the run ledger stays the source
// of truth.
func (e *Executor) execute(ctx context.Context, runID, name string, policy RetryPolicy, fn func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	log := e.log.WithRunID(runID).WithStep(name)

	// Replay: completed steps return their memoized result
	rec, err := e.steps.Get(ctx, runID, name)
	if err != nil && !errors.Is(err, repository.ErrStepNotFound) {
		log.Warn("step record lookup failed, executing anyway", "error", err)
	}
	if rec != nil && rec.Status == models.StepCompleted {
		log.Debug("step already completed, replaying result", "attempt", rec.Attempt)
		return rec.Result, nil
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := e.steps.MarkRunning(ctx, runID, name, attempt); err != nil {
			log.Warn("failed to record step start", "error", err)
		}

		result, err := fn(ctx)
		if err == nil {
			if err := e.steps.MarkCompleted(ctx, runID, name, attempt, result); err != nil {
				log.Warn("failed to record step completion", "error", err)
			}
			return result, nil
		}

		lastErr = err
		if attempt < maxAttempts {
			wait := time.Duration(attempt) * policy.Delay
			log.Warn("step attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"wait", wait,
				"error", err)
			e.sleep(wait)
		}
	}

	if err := e.steps.MarkFailed(ctx, runID, name, maxAttempts); err != nil {
		log.Warn("failed to record step failure", "error", err)
	}

	return nil, fmt.Errorf("step %s: %w", name, lastErr)
}

// Do runs a step whose result is a value of type T, JSON-encoded into
// the step record so replays can return it without re-executing
func Do[T any](ctx context.Context, e *Executor, runID, name string, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	raw, err := e.execute(ctx, runID, name, policy, func(ctx context.Context) (json.RawMessage, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode step result: %w", err)
		}
		return encoded, nil
	})
	if err != nil {
		return zero, err
	}

	if len(raw) == 0 {
		return zero, nil
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("decode step %s result: %w", name, err)
	}
	return v, nil
}
