package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/skylens/weathercard/cmd/cardgen/models"
	"github.com/skylens/weathercard/cmd/cardgen/repository"
	"github.com/skylens/weathercard/common/logger"
)

// RunReader queries run history
type RunReader interface {
	FindPage(ctx context.Context, filter models.RunFilter, page, limit int) (*models.RunPage, error)
	GetByID(ctx context.Context, runID string) (*models.Run, error)
	Delete(ctx context.Context, runID string) error
}

// StepCleaner removes step bookkeeping for a run
type StepCleaner interface {
	DeleteForRun(ctx context.Context, runID string) error
}

// BlobDeleter removes stored objects
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// LogHandler serves run history for the admin surface
type LogHandler struct {
	runs  RunReader
	steps StepCleaner
	blobs BlobDeleter
	log   *logger.Logger
}

// NewLogHandler creates a log handler
func NewLogHandler(runs RunReader, steps StepCleaner, blobs BlobDeleter, log *logger.Logger) *LogHandler {
	return &LogHandler{runs: runs, steps: steps, blobs: blobs, log: log}
}

// ListLogs returns a page of runs, optionally filtered by status and date
// GET /api/v1/logs?status=failed&date=2026-08-31&page=1&limit=30
func (h *LogHandler) ListLogs(c echo.Context) error {
	page := intParam(c, "page", 1)
	limit := intParam(c, "limit", 30)
	if limit > 100 {
		limit = 100
	}

	var filter models.RunFilter
	if status := c.QueryParam("status"); status != "" {
		s := models.RunStatus(status)
		if s != models.StatusRunning && s != models.StatusSucceeded && s != models.StatusFailed {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "invalid status filter",
			})
		}
		filter.Status = s
	}
	if date := c.QueryParam("date"); date != "" {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "invalid date filter, expected YYYY-MM-DD",
			})
		}
		filter.Date = &d
	}

	result, err := h.runs.FindPage(c.Request().Context(), filter, page, limit)
	if err != nil {
		h.log.Error("failed to list logs", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to list logs",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"logs":  result.Runs,
		"total": result.Total,
		"page":  result.Page,
		"limit": result.Limit,
	})
}

// GetLog returns one run with its full detail
// GET /api/v1/logs/:run_id
func (h *LogHandler) GetLog(c echo.Context) error {
	runID := c.Param("run_id")
	run, err := h.runs.GetByID(c.Request().Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "run not found",
			})
		}
		h.log.Error("failed to load run", "run_id", runID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to load run",
		})
	}
	return c.JSON(http.StatusOK, run)
}

// DeleteLog removes a run, its step records, and its stored image
// DELETE /api/v1/logs/:run_id
func (h *LogHandler) DeleteLog(c echo.Context) error {
	runID := c.Param("run_id")
	if runID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "run_id is required",
		})
	}

	ctx := c.Request().Context()

	run, err := h.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "run not found",
			})
		}
		h.log.Error("failed to load run", "run_id", runID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to delete run",
		})
	}

	// Stored image cleanup is best-effort; an orphaned object is
	// preferable to an undeletable row
	if run.ImageKey != nil {
		if err := h.blobs.Delete(ctx, *run.ImageKey); err != nil {
			h.log.Warn("failed to delete stored image", "key", *run.ImageKey, "error", err)
		}
	}

	if err := h.steps.DeleteForRun(ctx, runID); err != nil {
		h.log.Error("failed to delete step records", "run_id", runID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to delete run",
		})
	}
	if err := h.runs.Delete(ctx, runID); err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "run not found",
			})
		}
		h.log.Error("failed to delete run", "run_id", runID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to delete run",
		})
	}

	h.log.Info("run deleted", "run_id", runID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":     true,
		"run_id": runID,
	})
}
