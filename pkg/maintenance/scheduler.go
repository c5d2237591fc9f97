package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one housekeeping job.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Scheduler runs tasks on a cron schedule.
type Scheduler struct {
	schedule string
	tasks    []Task
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a scheduler for the given standard cron expression.
func NewScheduler(schedule string, tasks ...Task) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		tasks:    tasks,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "maintenance.scheduler"),
	}
}

// Start registers the cron job and starts the scheduler. An empty schedule
// disables maintenance without error. The scheduler stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("maintenance schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("maintenance scheduler started",
		"schedule", s.schedule,
		"tasks", len(s.tasks),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce executes every task in order. A failing task is logged and does
// not prevent the others from running.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, task := range s.tasks {
		removed, err := task.Run(ctx)
		if err != nil {
			s.logger.Error("maintenance task failed",
				"task", task.Name,
				"error", err,
			)
			continue
		}

		if removed > 0 {
			s.logger.Info("maintenance task completed",
				"task", task.Name,
				"removed", removed,
			)
		} else {
			s.logger.Debug("maintenance task completed, nothing removed", "task", task.Name)
		}
	}
}

// Stop stops the scheduler and waits for a running job to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("maintenance scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled run, or nil when not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}
