// Package scheduler plans prayer notification rows and runs the
// recurring jobs that keep the schedule fresh and drained.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/zaidalbayati/minaret/internal/dispatch"
	"github.com/zaidalbayati/minaret/internal/metrics"
)

// Config holds the job timings.
type Config struct {
	// DueScanInterval is how often due rows are scanned for.
	DueScanInterval time.Duration
	// DueBatchSize caps how many rows one scan tick picks up.
	DueBatchSize int
	// RetentionDays is how long sent rows are kept before cleanup.
	RetentionDays int
	// StartupDelay is how long after boot the catch-up reschedule runs.
	StartupDelay time.Duration
}

// Scheduler owns the recurring jobs: the nightly reschedule, the due
// scan, the sent-row cleanup, and a one-shot catch-up pass shortly
// after startup so a restarted server does not wait until midnight.
type Scheduler struct {
	scheduler  gocron.Scheduler
	planner    *Planner
	dispatcher *dispatch.Dispatcher
	repo       Repository
	config     Config
	logger     *zap.Logger
}

// New creates a scheduler with its jobs registered but not started.
func New(planner *Planner, dispatcher *dispatch.Dispatcher, repo Repository, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if cfg.DueScanInterval <= 0 {
		cfg.DueScanInterval = time.Minute
	}
	if cfg.DueBatchSize <= 0 {
		cfg.DueBatchSize = 100
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = 5 * time.Second
	}

	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{
		scheduler:  gs,
		planner:    planner,
		dispatcher: dispatcher,
		repo:       repo,
		config:     cfg,
		logger:     logger,
	}

	if err := s.registerJobs(); err != nil {
		_ = gs.Shutdown()
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) registerJobs() error {
	// Midnight regenerates every subscriber's schedule for the new day.
	if _, err := s.scheduler.NewJob(
		gocron.CronJob("0 0 * * *", false),
		gocron.NewTask(s.runDailyReschedule),
		gocron.WithName("daily-reschedule"),
	); err != nil {
		return fmt.Errorf("register daily reschedule: %w", err)
	}

	// The due scan is the delivery heartbeat. Singleton mode keeps a
	// slow batch from overlapping with the next tick.
	if _, err := s.scheduler.NewJob(
		gocron.DurationJob(s.config.DueScanInterval),
		gocron.NewTask(s.runDueScan),
		gocron.WithName("due-scan"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("register due scan: %w", err)
	}

	if _, err := s.scheduler.NewJob(
		gocron.CronJob("0 3 * * *", false),
		gocron.NewTask(s.runCleanup),
		gocron.WithName("cleanup"),
	); err != nil {
		return fmt.Errorf("register cleanup: %w", err)
	}

	// Catch-up pass for restarts mid-day.
	if _, err := s.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(s.config.StartupDelay))),
		gocron.NewTask(s.runDailyReschedule),
		gocron.WithName("startup-reschedule"),
	); err != nil {
		return fmt.Errorf("register startup reschedule: %w", err)
	}

	return nil
}

// Start begins executing the registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info("scheduler started",
		zap.Duration("due_scan_interval", s.config.DueScanInterval),
		zap.Int("due_batch_size", s.config.DueBatchSize),
		zap.Int("retention_days", s.config.RetentionDays),
	)
}

// Shutdown stops the jobs and waits for any running job to finish, so
// in-flight deliveries reach a terminal outcome before the process
// exits.
func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}

func (s *Scheduler) runDailyReschedule() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.planner.RescheduleAll(ctx); err != nil {
		s.logger.Error("daily reschedule failed", zap.Error(err))
	}
}

func (s *Scheduler) runDueScan() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	batch, err := s.repo.DueNotifications(ctx, time.Now(), s.config.DueBatchSize)
	if err != nil {
		s.logger.Error("due scan failed", zap.Error(err))
		return
	}

	metrics.SetDueBacklog(len(batch))

	if len(batch) == 0 {
		return
	}

	s.logger.Info("dispatching due notifications", zap.Int("count", len(batch)))
	s.dispatcher.Dispatch(ctx, batch)
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	removed, err := s.repo.CleanupSentBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		return
	}

	s.logger.Info("sent notifications cleaned up",
		zap.Int64("removed", removed),
		zap.Time("cutoff", cutoff),
	)
}
