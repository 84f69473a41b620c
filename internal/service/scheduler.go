package service

import (
	"context"
	"time"

	"golang-rotation/config"
	"golang-rotation/pkg/logger"
	"golang-rotation/pkg/utils"

	"github.com/robfig/cron/v3"
)

// SchedulerService runs the daily market scan on a cron cadence in the
// market time zone.
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop()
}

type schedulerService struct {
	cfg     *config.Config
	log     *logger.Logger
	scanner ScannerService
	cron    *cron.Cron
}

func NewSchedulerService(cfg *config.Config, log *logger.Logger, scanner ScannerService, loc *time.Location) SchedulerService {
	return &schedulerService{
		cfg:     cfg,
		log:     log,
		scanner: scanner,
		cron:    cron.New(cron.WithLocation(loc)),
	}
}

func (s *schedulerService) Start(ctx context.Context) error {
	if s.cfg.Scheduler.DailyScanSpec == "" {
		s.log.Info("Daily scan schedule not configured, scheduler idle")
		return nil
	}

	_, err := s.cron.AddFunc(s.cfg.Scheduler.DailyScanSpec, func() {
		utils.GoSafe(func() {
			scanCtx := ctx
			var cancel context.CancelFunc
			if s.cfg.Scheduler.TimeoutDuration > 0 {
				scanCtx, cancel = context.WithTimeout(ctx, s.cfg.Scheduler.TimeoutDuration)
				defer cancel()
			}

			if _, err := s.scanner.Scan(scanCtx); err != nil {
				s.log.ErrorContext(scanCtx, "Scheduled scan failed", logger.ErrorField(err))
			}
		})
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("Scheduler started", logger.StringField("daily_scan_spec", s.cfg.Scheduler.DailyScanSpec))
	return nil
}

func (s *schedulerService) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("Scheduler stopped")
}
