package application

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mes-platform/production-service/pkg/logging"
)

// Purger deletes completed jobs
type Purger interface {
	PurgeCompleted(ctx context.Context) (*PurgeResultDTO, error)
}

// PurgeScheduler runs the completed-job purge on a cron schedule
type PurgeScheduler struct {
	cron    *cron.Cron
	purger  Purger
	timeout time.Duration
	logger  *logging.Logger
}

// NewPurgeScheduler parses a standard five-field cron spec
func NewPurgeScheduler(spec string, purger Purger, logger *logging.Logger) (*PurgeScheduler, error) {
	s := &PurgeScheduler{
		cron:    cron.New(),
		purger:  purger,
		timeout: time.Minute,
		logger:  logger.WithComponent("purge-scheduler"),
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *PurgeScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.purger.PurgeCompleted(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled purge failed")
		return
	}
	s.logger.Info("Scheduled purge finished", "deleted", result.Deleted)
}

// Start begins the schedule
func (s *PurgeScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Purge scheduler started", "entries", len(s.cron.Entries()))
}

// Stop waits for a running purge to finish
func (s *PurgeScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Purge scheduler stopped")
}

// Next returns the next scheduled run
func (s *PurgeScheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
