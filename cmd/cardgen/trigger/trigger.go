// Package trigger starts generation runs. Both entry points (the daily
// schedule and the manual HTTP endpoint) assign the run id here, before
// the pipeline sees it, and never wait for the pipeline to finish.
package trigger

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/skylens/weathercard/cmd/cardgen/pipeline"
	"github.com/skylens/weathercard/common/logger"
)

// runBudget caps a single pipeline execution. Generation can take
// minutes; this only guards against a hung upstream call.
const runBudget = 10 * time.Minute

// Service launches pipeline executions in the background
type Service struct {
	pipeline *pipeline.Pipeline
	log      *logger.Logger
}

// NewService creates a trigger service
func NewService(p *pipeline.Pipeline, log *logger.Logger) *Service {
	return &Service{pipeline: p, log: log}
}

// NewRunID returns a unique, time-sortable run identifier
func NewRunID() string {
	return ulid.Make().String()
}

// Launch assigns a run id and starts the pipeline in a goroutine.
// Fire-and-forget: callers observe the outcome later via the run
// ledger, never through this call.
func (s *Service) Launch(city string) string {
	runID := NewRunID()

	s.log.Info("launching generation run", "run_id", runID, "city", city)

	go func() {
		// Detached from the caller's request context on purpose: the
		// run must outlive the HTTP response.
		ctx, cancel := context.WithTimeout(context.Background(), runBudget)
		defer cancel()

		if _, err := s.pipeline.Execute(ctx, runID, city); err != nil {
			s.log.Error("pipeline execution aborted", "run_id", runID, "error", err)
		}
	}()

	return runID
}
