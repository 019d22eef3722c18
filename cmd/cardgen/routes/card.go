package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/skylens/weathercard/cmd/cardgen/container"
	"github.com/skylens/weathercard/cmd/cardgen/handlers"
)

// RegisterCardRoutes registers the public gallery routes
func RegisterCardRoutes(e *echo.Echo, c *container.Container) {
	cfg := c.Components.Config
	h := handlers.NewCardHandler(c.RunRepo, cfg.Auth.ImageSecret, c.Components.Logger)
	img := handlers.NewImageHandler(c.Components.BlobStore, cfg.Auth.ImageSecret, c.Components.Logger)

	e.GET("/api/v1/cards", h.ListCards)     // GET /api/v1/cards?page=1&limit=20
	e.GET("/api/v1/images/*", img.GetImage) // GET /api/v1/images/{key}?token=...
}
