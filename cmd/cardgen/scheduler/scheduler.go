package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/skylens/weathercard/cmd/cardgen/trigger"
	"github.com/skylens/weathercard/common/config"
	"github.com/skylens/weathercard/common/logger"
	rediscommon "github.com/skylens/weathercard/common/redis"
)

// Scheduler fires the daily generation run on a cron schedule. A Redis
// SETNX lock keyed by date keeps multiple instances from each firing
// their own run.
type Scheduler struct {
	cron    *cron.Cron
	trigger *trigger.Service
	redis   *rediscommon.Client
	cfg     config.ScheduleConfig
	log     *logger.Logger
}

// New creates a scheduler. Validates the cron expression up front.
func New(t *trigger.Service, redis *rediscommon.Client, cfg config.ScheduleConfig, log *logger.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(cfg.CronSpec); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.CronSpec, err)
	}

	return &Scheduler{
		cron:    cron.New(),
		trigger: t,
		redis:   redis,
		cfg:     cfg,
		log:     log,
	}, nil
}

// Start registers the schedule and starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("scheduled generation disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.CronSpec, func() { s.fire(ctx) }); err != nil {
		return fmt.Errorf("register schedule: %w", err)
	}

	s.cron.Start()
	s.log.Info("scheduler started", "cron", s.cfg.CronSpec)
	return nil
}

// Stop halts the cron loop, waiting for an in-flight fire to return
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) fire(ctx context.Context) {
	// One scheduled run per day across all instances
	lockKey := "schedule:daily:" + time.Now().Format("2006-01-02")
	if s.redis != nil {
		ok, err := s.redis.SetNX(ctx, lockKey, "1", 23*time.Hour)
		if err != nil {
			s.log.Warn("schedule lock check failed, firing anyway", "error", err)
		} else if !ok {
			s.log.Info("scheduled run already fired today", "lock", lockKey)
			return
		}
	}

	runID := s.trigger.Launch("")
	s.log.Info("scheduled run launched", "run_id", runID)
}
