package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/skylens/weathercard/cmd/cardgen/container"
	"github.com/skylens/weathercard/cmd/cardgen/routes"
	"github.com/skylens/weathercard/common/bootstrap"
	"github.com/skylens/weathercard/common/db"
	commonmiddleware "github.com/skylens/weathercard/common/middleware"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, redis, blob store)
	components, err := bootstrap.Setup(ctx, "cardgen",
		bootstrap.WithDBInitHook(db.ApplySchema),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap cardgen: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e, serviceContainer)
	setupHealthCheck(e, serviceContainer)
	registerRoutes(e, serviceContainer)

	// Background loops: daily schedule and stale-run watchdog
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	startBackground(bgCtx, serviceContainer)

	startServer(e, serviceContainer, cancelBg)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestID())

	// Global ceiling first, then per-IP route limits
	if limit := c.Components.Config.Service.GlobalRateLimit; limit > 0 {
		e.Use(commonmiddleware.GlobalRateLimitMiddleware(c.RateLimiter, int64(limit)))
	}
	e.Use(commonmiddleware.IPRateLimitMiddleware(c.RateLimiter))
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ec echo.Context) error {
		if err := c.Components.Health(ec.Request().Context()); err != nil {
			return ec.JSON(503, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return ec.JSON(200, map[string]string{
			"status":  "ok",
			"service": "cardgen",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, c *container.Container) {
	routes.RegisterCardRoutes(e, c)
	routes.RegisterAdminRoutes(e, c)
}

// startBackground starts the cron scheduler and the stale-run watchdog
func startBackground(ctx context.Context, c *container.Container) {
	if err := c.Scheduler.Start(ctx); err != nil {
		c.Components.Logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	go c.Watchdog.Start(ctx)
}

// startServer starts the Echo server and shuts down cleanly on SIGINT/SIGTERM
func startServer(e *echo.Echo, c *container.Container, cancelBg context.CancelFunc) {
	log := c.Components.Logger
	port := c.Components.Config.Service.Port

	go func() {
		log.Info("Starting cardgen", "port", port)
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
			log.Info("Server stopped", "reason", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down cardgen")
	cancelBg()
	c.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", "error", err)
	}
}
