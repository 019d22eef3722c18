package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/skylens/weathercard/common/logger"
)

// RunLauncher starts a generation run in the background
type RunLauncher interface {
	Launch(city string) string
}

// TriggerHandler starts generation runs on demand
type TriggerHandler struct {
	runner RunLauncher
	log    *logger.Logger
}

// NewTriggerHandler creates a trigger handler
func NewTriggerHandler(runner RunLauncher, log *logger.Logger) *TriggerHandler {
	return &TriggerHandler{runner: runner, log: log}
}

// Trigger starts a run and returns immediately. With no city parameter
// the run picks one at random.
// POST /api/v1/trigger?city=杭州
func (h *TriggerHandler) Trigger(c echo.Context) error {
	city := c.QueryParam("city")
	runID := h.runner.Launch(city)

	h.log.Info("run triggered", "run_id", runID, "city", city)
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"ok":     true,
		"run_id": runID,
		"city":   city,
	})
}
