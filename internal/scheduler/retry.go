package scheduler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"mailops/internal/clock"
	"mailops/internal/metrics"
	"mailops/internal/model"
	"mailops/internal/notify"
	"mailops/pkg/logger"
)

// Submitter is the slice of the dispatcher the retry controller needs.
type Submitter interface {
	Submit(task model.Task, trigger model.TriggerType, parent *model.Execution) (string, error)
}

// RetryController turns failed executions into delayed retry submissions,
// chained through parent_log_id, and notifies once the retry budget is spent.
type RetryController struct {
	ctx       context.Context
	submitter Submitter
	notifier  notify.Notifier
	clk       clock.Clock
	observer  metrics.SchedulerObserver
}

func NewRetryController(
	ctx context.Context,
	submitter Submitter,
	notifier notify.Notifier,
	clk clock.Clock,
	observer metrics.SchedulerObserver,
) *RetryController {
	return &RetryController{
		ctx:       ctx,
		submitter: submitter,
		notifier:  notifier,
		clk:       clk,
		observer:  observer,
	}
}

// OnExecutionFinished is invoked by the dispatcher after every terminal
// execution. Cancelled executions never retry.
func (c *RetryController) OnExecutionFinished(task model.Task, exec *model.Execution) {
	if !exec.Status.Retryable() {
		return
	}

	if exec.RetryCount >= task.MaxRetries {
		logger.Warn("retry budget exhausted",
			zap.String("task", task.Name),
			zap.Int("retry_count", exec.RetryCount),
			zap.Int("max_retries", task.MaxRetries),
		)
		if task.NotifyOnFailure {
			if err := c.notifier.Notify(c.ctx, task.Recipients(), task.Name, exec.ExecutionID, exec.ErrorMessage); err != nil {
				logger.Error("failure notification failed", zap.String("task", task.Name), zap.Error(err))
			}
		}
		return
	}

	c.observer.RecordRetry()
	logger.Info("retry scheduled",
		zap.String("task", task.Name),
		zap.Int("attempt", exec.RetryCount+1),
		zap.Duration("delay", task.RetryDelay()),
	)

	go c.fireAfterDelay(task, exec)
}

func (c *RetryController) fireAfterDelay(task model.Task, exec *model.Execution) {
	select {
	case <-c.ctx.Done():
		return
	case <-c.clk.After(task.RetryDelay()):
	}

	_, err := c.submitter.Submit(task, model.TriggerRetry, exec)
	if errors.Is(err, ErrAlreadyRunning) {
		// A scheduled firing slipped in ahead of the retry. Wait one more
		// interval and try once; after that the scheduled run covers us.
		select {
		case <-c.ctx.Done():
			return
		case <-c.clk.After(task.RetryDelay()):
		}
		_, err = c.submitter.Submit(task, model.TriggerRetry, exec)
		if errors.Is(err, ErrAlreadyRunning) {
			logger.Info("retry superseded by running execution", zap.String("task", task.Name))
			return
		}
	}
	if err != nil {
		logger.Error("retry submission failed", zap.String("task", task.Name), zap.Error(err))
	}
}
