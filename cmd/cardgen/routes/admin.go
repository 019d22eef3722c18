package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/skylens/weathercard/cmd/cardgen/container"
	"github.com/skylens/weathercard/cmd/cardgen/handlers"
	"github.com/skylens/weathercard/cmd/cardgen/middleware"
)

// RegisterAdminRoutes registers access-code protected admin routes
func RegisterAdminRoutes(e *echo.Echo, c *container.Container) {
	cfg := c.Components.Config
	logs := handlers.NewLogHandler(c.RunRepo, c.StepRepo, c.Components.BlobStore, c.Components.Logger)
	trig := handlers.NewTriggerHandler(c.Trigger, c.Components.Logger)

	auth := middleware.RequireAccessCode(cfg.Auth.AccessCode)

	admin := e.Group("/api/v1", auth)
	{
		admin.GET("/logs", logs.ListLogs)             // GET /api/v1/logs?status=failed&date=...
		admin.GET("/logs/:run_id", logs.GetLog)       // GET /api/v1/logs/{run_id}
		admin.DELETE("/logs/:run_id", logs.DeleteLog) // DELETE /api/v1/logs/{run_id}
		admin.POST("/trigger", trig.Trigger)          // POST /api/v1/trigger?city=...
	}
}
