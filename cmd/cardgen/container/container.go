package container

import (
	"fmt"

	"github.com/skylens/weathercard/cmd/cardgen/imagegen"
	"github.com/skylens/weathercard/cmd/cardgen/pipeline"
	"github.com/skylens/weathercard/cmd/cardgen/repository"
	"github.com/skylens/weathercard/cmd/cardgen/scheduler"
	"github.com/skylens/weathercard/cmd/cardgen/trigger"
	"github.com/skylens/weathercard/cmd/cardgen/weather"
	"github.com/skylens/weathercard/common/bootstrap"
	"github.com/skylens/weathercard/common/ratelimit"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Repositories
	RunRepo  *repository.RunRepository
	StepRepo *repository.StepRepository

	// Clients
	Weather  *weather.Client
	ImageGen *imagegen.Client

	// Services
	Pipeline    *pipeline.Pipeline
	Trigger     *trigger.Service
	Scheduler   *scheduler.Scheduler
	Watchdog    *pipeline.Watchdog
	RateLimiter *ratelimit.RateLimiter
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	// Initialize repositories
	runRepo := repository.NewRunRepository(components.DB)
	stepRepo := repository.NewStepRepository(components.DB)

	// External clients
	weatherClient := weather.NewClient(cfg.Weather, components.Logger)
	imageClient := imagegen.NewClient(cfg.ImageGen, components.Logger)

	// Pipeline (bottom-up: executor first)
	executor := pipeline.NewExecutor(stepRepo, components.Logger)
	pipe := pipeline.New(
		runRepo,
		weatherClient,
		imageClient,
		components.BlobStore,
		executor,
		cfg.Pipeline,
		components.Logger,
	)

	triggerService := trigger.NewService(pipe, components.Logger)

	sched, err := scheduler.New(triggerService, components.Redis, cfg.Schedule, components.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	watchdog := pipeline.NewWatchdog(
		runRepo,
		cfg.Pipeline.StaleRunTimeout,
		cfg.Pipeline.WatchdogInterval,
		components.Logger,
	)

	rateLimiter := ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), components.Logger)

	return &Container{
		Components:  components,
		RunRepo:     runRepo,
		StepRepo:    stepRepo,
		Weather:     weatherClient,
		ImageGen:    imageClient,
		Pipeline:    pipe,
		Trigger:     triggerService,
		Scheduler:   sched,
		Watchdog:    watchdog,
		RateLimiter: rateLimiter,
	}, nil
}
