package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mailops/internal/clock"
	"mailops/internal/cron"
	"mailops/internal/metrics"
	"mailops/internal/model"
	"mailops/internal/repository"
	"mailops/pkg/logger"
)

// Scheduler polls for due tasks and hands claimed firings to the dispatcher.
// Claiming advances next_run_at with a compare-and-set, so a firing is
// dispatched at most once even with overlapping ticks.
type Scheduler struct {
	taskRepo  repository.TaskInterface
	submitter Submitter
	clk       clock.Clock
	tick      time.Duration
	observer  metrics.SchedulerObserver
}

func NewScheduler(
	taskRepo repository.TaskInterface,
	submitter Submitter,
	clk clock.Clock,
	tick time.Duration,
	observer metrics.SchedulerObserver,
) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		taskRepo:  taskRepo,
		submitter: submitter,
		clk:       clk,
		tick:      tick,
		observer:  observer,
	}
}

// SeedNextRuns computes next_run_at for tasks that never had one. Run once at
// startup before the tick loop starts.
func (s *Scheduler) SeedNextRuns(ctx context.Context) error {
	tasks, err := s.taskRepo.List(ctx)
	if err != nil {
		return err
	}
	now := s.clk.Now()
	for _, task := range tasks {
		if task.NextRunAt != nil || task.Status == model.TaskDisabled || !task.IsActive {
			continue
		}
		next, err := s.nextFiring(task, now)
		if err != nil {
			logger.Warn("cannot seed schedule",
				zap.String("task", task.Name), zap.String("expr", task.CronExpression), zap.Error(err))
			continue
		}
		if err := s.taskRepo.SeedNextRun(ctx, task.ID, next); err != nil {
			return err
		}
		logger.Info("seeded next run",
			zap.String("task", task.Name), zap.Time("next_run_at", next))
	}
	return nil
}

// Run drives the tick loop until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("scheduler started", zap.Duration("tick", s.tick))
	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return
		case <-s.clk.After(s.tick):
			if err := s.dispatchDue(ctx); err != nil {
				logger.Error("scheduler tick failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) dispatchDue(ctx context.Context) error {
	now := s.clk.Now()
	due, err := s.taskRepo.ListDue(ctx, now)
	if err != nil {
		return err
	}

	for _, task := range due {
		next, err := s.nextFiring(task, now)
		if err != nil {
			logger.Warn("skipping task with invalid schedule",
				zap.String("task", task.Name), zap.String("expr", task.CronExpression), zap.Error(err))
			continue
		}

		claimed, err := s.taskRepo.ClaimNextRun(ctx, task.ID, task.NextRunAt, next)
		if err != nil {
			return err
		}
		if !claimed {
			// Another tick or instance already took this firing.
			continue
		}
		s.observer.RecordClaim()

		if _, err := s.submitter.Submit(*task, model.TriggerScheduled, nil); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				// next_run_at already advanced; the firing is skipped, not queued.
				logger.Warn("firing dropped, previous execution still running",
					zap.String("task", task.Name))
				continue
			}
			logger.Error("submission failed",
				zap.String("task", task.Name), zap.Error(err))
		}
	}
	return nil
}

func (s *Scheduler) nextFiring(task *model.Task, now time.Time) (time.Time, error) {
	sched, err := cron.ParseInLocation(task.CronExpression, task.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(now)
}
