package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/skylens/weathercard/cmd/cardgen/models"
	"github.com/skylens/weathercard/cmd/cardgen/repository"
	"github.com/skylens/weathercard/common/logger"
)

// memStepStore is an in-memory StepStore for tests
type memStepStore struct {
	records map[string]*models.StepRecord

	failMarks bool
	failGet   bool
}

func newMemStepStore() *memStepStore {
	return &memStepStore{records: make(map[string]*models.StepRecord)}
}

func stepKey(runID, name string) string {
	return runID + "/" + name
}

func (s *memStepStore) Get(ctx context.Context, runID, stepName string) (*models.StepRecord, error) {
	if s.failGet {
		return nil, errors.New("store unavailable")
	}
	rec, ok := s.records[stepKey(runID, stepName)]
	if !ok {
		return nil, repository.ErrStepNotFound
	}
	return rec, nil
}

func (s *memStepStore) MarkRunning(ctx context.Context, runID, stepName string, attempt int) error {
	if s.failMarks {
		return errors.New("store unavailable")
	}
	s.records[stepKey(runID, stepName)] = &models.StepRecord{
		RunID:    runID,
		StepName: stepName,
		Status:   models.StepRunning,
		Attempt:  attempt,
	}
	return nil
}

func (s *memStepStore) MarkCompleted(ctx context.Context, runID, stepName string, attempt int, result json.RawMessage) error {
	if s.failMarks {
		return errors.New("store unavailable")
	}
	s.records[stepKey(runID, stepName)] = &models.StepRecord{
		RunID:    runID,
		StepName: stepName,
		Status:   models.StepCompleted,
		Attempt:  attempt,
		Result:   result,
	}
	return nil
}

func (s *memStepStore) MarkFailed(ctx context.Context, runID, stepName string, attempt int) error {
	if s.failMarks {
		return errors.New("store unavailable")
	}
	s.records[stepKey(runID, stepName)] = &models.StepRecord{
		RunID:    runID,
		StepName: stepName,
		Status:   models.StepFailed,
		Attempt:  attempt,
	}
	return nil
}

func newTestExecutor(store StepStore) *Executor {
	e := NewExecutor(store, logger.New("error", "json"))
	e.sleep = func(time.Duration) {}
	return e
}

// TestDoMemoizesCompletedStep verifies a completed step replays its
// persisted result instead of executing again
func TestDoMemoizesCompletedStep(t *testing.T) {
	store := newMemStepStore()
	exec := newTestExecutor(store)

	calls := 0
	fn := func(ctx context.Context) (string, error) {
		calls++
		return fmt.Sprintf("result-%d", calls), nil
	}

	first, err := Do(context.Background(), exec, "run-1", "step-a", Once, fn)
	if err != nil {
		t.Fatalf("first Do failed: %v", err)
	}
	second, err := Do(context.Background(), exec, "run-1", "step-a", Once, fn)
	if err != nil {
		t.Fatalf("second Do failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected 1 execution, got %d", calls)
	}
	if first != "result-1" || second != "result-1" {
		t.Errorf("expected both calls to return result-1, got %q and %q", first, second)
	}
}

// TestDoRetriesUntilBudgetExhausted verifies the attempt budget and
// that the last error is surfaced with the step name
func TestDoRetriesUntilBudgetExhausted(t *testing.T) {
	store := newMemStepStore()
	exec := newTestExecutor(store)

	calls := 0
	boom := errors.New("upstream down")
	_, err := Do(context.Background(), exec, "run-1", "step-b",
		RetryPolicy{MaxAttempts: 3, Delay: time.Second},
		func(ctx context.Context) (int, error) {
			calls++
			return 0, boom
		})

	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
	rec := store.records[stepKey("run-1", "step-b")]
	if rec == nil || rec.Status != models.StepFailed {
		t.Errorf("expected failed step record, got %+v", rec)
	}
	if rec != nil && rec.Attempt != 3 {
		t.Errorf("expected final attempt 3, got %d", rec.Attempt)
	}
}

// TestDoLinearBackoff verifies attempt n waits n*Delay
func TestDoLinearBackoff(t *testing.T) {
	store := newMemStepStore()
	exec := NewExecutor(store, logger.New("error", "json"))

	var waits []time.Duration
	exec.sleep = func(d time.Duration) { waits = append(waits, d) }

	_, _ = Do(context.Background(), exec, "run-1", "step-c",
		RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Second},
		func(ctx context.Context) (int, error) {
			return 0, errors.New("nope")
		})

	want := []time.Duration{10 * time.Second, 20 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), waits)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], waits[i])
		}
	}
}

// TestDoSucceedsAfterRetry verifies a mid-budget success completes the
// step with the succeeding attempt recorded
func TestDoSucceedsAfterRetry(t *testing.T) {
	store := newMemStepStore()
	exec := newTestExecutor(store)

	calls := 0
	got, err := Do(context.Background(), exec, "run-1", "step-d",
		RetryPolicy{MaxAttempts: 3, Delay: time.Second},
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 2 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	rec := store.records[stepKey("run-1", "step-d")]
	if rec.Status != models.StepCompleted || rec.Attempt != 2 {
		t.Errorf("expected completed on attempt 2, got %+v", rec)
	}
}

// TestDoBookkeepingFailuresDoNotFailStep verifies the step record is a
// replay optimization only: store failures never fail a working step
func TestDoBookkeepingFailuresDoNotFailStep(t *testing.T) {
	store := newMemStepStore()
	store.failGet = true
	store.failMarks = true
	exec := newTestExecutor(store)

	got, err := Do(context.Background(), exec, "run-1", "step-e", Once,
		func(ctx context.Context) (string, error) {
			return "survived", nil
		})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "survived" {
		t.Errorf("expected survived, got %q", got)
	}
}

// TestDoCancelledContext verifies a cancelled context stops execution
// before the function runs
func TestDoCancelledContext(t *testing.T) {
	store := newMemStepStore()
	exec := newTestExecutor(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, exec, "run-1", "step-f", Once,
		func(ctx context.Context) (int, error) {
			calls++
			return 0, nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no execution, got %d", calls)
	}
}
