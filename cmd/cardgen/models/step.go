package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StepStatus represents the state of one pipeline step execution
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepRecord is the durable memo of one named step within a run.
// Keyed by (run_id, step_name): if the process restarts mid-run, a
// completed record replays its persisted result instead of re-executing
// the step's side effects.
type StepRecord struct {
	StepID   uuid.UUID `db:"step_id" json:"step_id"`
	RunID    string    `db:"run_id" json:"run_id"`
	StepName string    `db:"step_name" json:"step_name"`

	Status StepStatus `db:"status" json:"status"`

	// Attempts consumed so far (1-based)
	Attempt int `db:"attempt" json:"attempt"`

	// JSON-encoded step result, present when Status == StepCompleted
	Result json.RawMessage `db:"result" json:"result,omitempty"`

	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
