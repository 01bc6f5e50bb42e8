package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/config"
	"github.com/mamadbah2/medistock/internal/domain/models"
)

const jobTimeout = 2 * time.Minute

// InventorySweeper raises the daily stock alert batch.
type InventorySweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// ReportPublisher stores the end-of-day report.
type ReportPublisher interface {
	PublishDailyReport(ctx context.Context, now time.Time) (models.DailyReport, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron      *cron.Cron
	inventory InventorySweeper
	reporting ReportPublisher
	cfg       config.ReportingConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduler creates a new scheduler instance running in the configured timezone.
func NewScheduler(cfg config.ReportingConfig, inventory InventorySweeper, reporting ReportPublisher, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Standard 5-field cron expressions, evaluated in the reporting timezone.
	c := cron.New(cron.WithLocation(cfg.Location()))

	return &Scheduler{
		cron:      c,
		inventory: inventory,
		reporting: reporting,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Start registers the jobs and starts the scheduler. It fails if a schedule does not parse.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("sweep", s.cfg.SweepCronSchedule),
		zap.String("report", s.cfg.CronSchedule),
		zap.String("timezone", s.cfg.Timezone))

	if _, err := s.cron.AddFunc(s.cfg.SweepCronSchedule, s.runInventorySweep); err != nil {
		return fmt.Errorf("schedule inventory sweep %q: %w", s.cfg.SweepCronSchedule, err)
	}

	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.runDailyReport); err != nil {
		return fmt.Errorf("schedule daily report %q: %w", s.cfg.CronSchedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runInventorySweep() {
	s.logger.Info("running inventory sweep")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.inventory.Sweep(ctx)
	if err != nil {
		s.logger.Error("inventory sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("inventory sweep finished", zap.Int("alerts", n))
}

func (s *Scheduler) runDailyReport() {
	s.logger.Info("generating daily report")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	report, err := s.reporting.PublishDailyReport(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to publish daily report", zap.Error(err))
		return
	}
	s.logger.Info("daily report published", zap.String("date", report.Date.Format("2006-01-02")))
}
