package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/pkgindex/internal/logfields"
)

// Scheduler wraps the gocron scheduler running the periodic index job.
type Scheduler struct {
	scheduler gocron.Scheduler
	job       gocron.Job
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Schedule registers task to run every interval, or on cron when it is set.
// A run that is still going when the next one is due delays that one.
func (s *Scheduler) Schedule(interval time.Duration, cron string, task func()) error {
	def := gocron.DurationJob(interval)
	if cron != "" {
		def = gocron.CronJob(cron, false)
	}
	job, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(task),
		gocron.WithName("index-run"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create periodic index job: %w", err)
	}
	s.job = job
	return nil
}

// NextRun returns when the scheduled job runs next.
func (s *Scheduler) NextRun() (time.Time, bool) {
	if s.job == nil {
		return time.Time{}, false
	}
	next, err := s.job.NextRun()
	if err != nil {
		return time.Time{}, false
	}
	return next, true
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
	if next, ok := s.NextRun(); ok {
		slog.Info("Next scheduled run", slog.Time("at", next))
	}
}

// Stop shuts the scheduler down and waits for a running job.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		slog.Warn("Scheduler shutdown failed", logfields.Error(err))
		return err
	}
	return nil
}
