package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulerService wraps cron-based jobs. Specs have a leading seconds field.
type SchedulerService struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSchedulerService creates a scheduler evaluating specs in loc.
func NewSchedulerService(loc *time.Location, logger *slog.Logger) *SchedulerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchedulerService{
		cron:   cron.New(cron.WithLocation(loc), cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// Schedule registers job under a six-field cron spec or descriptor.
func (s *SchedulerService) Schedule(name, spec string, job func()) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("job scheduled",
		"component", "worker",
		"worker", "scheduler",
		"action", "job_scheduled",
		"job", name,
		"spec", spec,
	)
	return id, nil
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(name string, interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("schedule %s: interval must be positive", name)
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.Schedule(name, fmt.Sprintf("@every %ds", seconds), job)
}

// Next returns the next activation of the entry, or the zero time.
func (s *SchedulerService) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *SchedulerService) Run(ctx context.Context) {
	s.Start()
	<-ctx.Done()
	s.Stop()
	s.logger.Info("worker stopped",
		"component", "worker",
		"worker", "scheduler",
		"reason", "context_cancelled",
	)
}
