package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailops/internal/clock"
	"mailops/internal/metrics"
	"mailops/internal/model"
	"mailops/internal/repository"
	"mailops/pkg/logger"
)

var (
	// ErrAlreadyRunning means the task has an in-flight execution. The
	// submission is dropped, not queued.
	ErrAlreadyRunning = errors.New("task already has a running execution")

	// ErrUnknownJobType means no job body is registered for the task type.
	ErrUnknownJobType = errors.New("no job registered for task type")

	// ErrExecutionNotFound is returned by Cancel for unknown execution ids.
	ErrExecutionNotFound = errors.New("execution not found or not running")
)

// RetryHandler observes terminal executions. The retry controller implements
// it; the dispatcher never decides retry policy itself.
type RetryHandler interface {
	OnExecutionFinished(task model.Task, exec *model.Execution)
}

type inflight struct {
	executionID string
	cancel      context.CancelFunc
	manual      atomic.Bool
}

// Dispatcher owns the set of running task ids and guarantees at most one
// in-flight execution per task. Job bodies run on a bounded worker pool
// under an enforced wall-clock timeout.
type Dispatcher struct {
	base     context.Context
	execRepo repository.ExecutionInterface
	taskRepo repository.TaskInterface
	registry *Registry
	clk      clock.Clock
	observer metrics.SchedulerObserver
	retry    RetryHandler
	sem      chan struct{}

	mu      sync.Mutex
	running map[uint64]*inflight

	wg sync.WaitGroup

	hostname string
	pid      int
}

func NewDispatcher(
	base context.Context,
	execRepo repository.ExecutionInterface,
	taskRepo repository.TaskInterface,
	registry *Registry,
	clk clock.Clock,
	observer metrics.SchedulerObserver,
	maxWorkers int,
) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	hostname, _ := os.Hostname()
	return &Dispatcher{
		base:     base,
		execRepo: execRepo,
		taskRepo: taskRepo,
		registry: registry,
		clk:      clk,
		observer: observer,
		sem:      make(chan struct{}, maxWorkers),
		running:  make(map[uint64]*inflight),
		hostname: hostname,
		pid:      os.Getpid(),
	}
}

// SetRetryHandler breaks the dispatcher/retry construction cycle; wired once
// at startup.
func (d *Dispatcher) SetRetryHandler(h RetryHandler) {
	d.retry = h
}

// Submit accepts a task snapshot for execution. The task value is copied at
// submission time, so concurrent policy edits never drift into a running
// execution.
func (d *Dispatcher) Submit(task model.Task, trigger model.TriggerType, parent *model.Execution) (string, error) {
	job, ok := d.registry.Get(task.Type)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJobType, task.Type)
	}

	entry := &inflight{executionID: uuid.NewString()}

	// Reserve the slot in memory first so concurrent submissions for the
	// same task settle without touching the database.
	d.mu.Lock()
	if _, exists := d.running[task.ID]; exists {
		d.mu.Unlock()
		d.observer.RecordDropped()
		return "", ErrAlreadyRunning
	}
	d.running[task.ID] = entry
	d.mu.Unlock()

	release := func() {
		d.mu.Lock()
		delete(d.running, task.ID)
		d.mu.Unlock()
	}

	// Transactional claim: protects against a second scheduler instance or
	// a stale in-memory view.
	claimed, err := d.taskRepo.TryMarkRunning(d.base, task.ID)
	if err != nil {
		release()
		return "", err
	}
	if !claimed {
		release()
		d.observer.RecordDropped()
		return "", ErrAlreadyRunning
	}

	exec := &model.Execution{
		ExecutionID:    entry.executionID,
		TaskID:         task.ID,
		TaskName:       task.Name,
		TriggerType:    trigger,
		Status:         model.ExecRunning,
		StartedAt:      d.clk.Now(),
		ServerHostname: d.hostname,
		ProcessID:      d.pid,
	}
	if parent != nil {
		exec.IsRetry = true
		exec.RetryCount = parent.RetryCount + 1
		exec.ParentLogID = &parent.ID
	}

	if err := d.execRepo.Create(d.base, exec); err != nil {
		release()
		// Free the claim so the task is not wedged in running. The run never
		// started, so no counters move.
		if rerr := d.taskRepo.ReleaseRunning(d.base, task.ID); rerr != nil {
			logger.Error("failed to release task claim", zap.Uint64("task_id", task.ID), zap.Error(rerr))
		}
		return "", err
	}

	d.wg.Add(1)
	go d.run(task, job, exec, entry)

	logger.Info("execution submitted",
		zap.String("execution_id", exec.ExecutionID),
		zap.String("task", task.Name),
		zap.String("trigger", string(trigger)),
		zap.Int("retry_count", exec.RetryCount),
	)
	return entry.executionID, nil
}

// Cancel requests cooperative cancellation of a running execution.
func (d *Dispatcher) Cancel(executionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, entry := range d.running {
		if entry.executionID == executionID {
			entry.manual.Store(true)
			if entry.cancel != nil {
				entry.cancel()
			}
			return nil
		}
	}
	return ErrExecutionNotFound
}

// RunningCount reports the number of in-flight executions.
func (d *Dispatcher) RunningCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// Drain blocks until all in-flight executions have finished.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

func (d *Dispatcher) run(task model.Task, job Job, exec *model.Execution, entry *inflight) {
	defer d.wg.Done()

	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	d.observer.IncRunning()
	defer d.observer.DecRunning()

	ctx, cancel := context.WithTimeout(d.base, task.Timeout())
	d.mu.Lock()
	entry.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	started := d.clk.Now()
	res, jobErr := d.invoke(ctx, job, task.Parameters)
	finished := d.clk.Now()

	status := terminalStatus(ctx, entry, res, jobErr)

	upd := repository.FinishUpdate{
		Status:        status,
		FinishedAt:    finished,
		DurationMS:    finished.Sub(started).Milliseconds(),
		MemoryUsageMB: allocMB(),
	}
	if res != nil {
		upd.ExitCode = res.ExitCode
		upd.Output = res.Output
		upd.ErrorOutput = res.ErrorOutput
		if len(res.Summary) > 0 {
			if raw, err := json.Marshal(res.Summary); err == nil {
				if upd.Output != "" {
					upd.Output += "\n"
				}
				upd.Output += string(raw)
			}
		}
	}
	switch {
	case status == model.ExecTimeout:
		upd.ErrorMessage = fmt.Sprintf("execution exceeded %s timeout", task.Timeout())
		upd.ExitCode = -1
	case status == model.ExecCancelled:
		upd.ErrorMessage = "execution cancelled"
		upd.ExitCode = -1
	case jobErr != nil:
		upd.ErrorMessage = jobErr.Error()
		if upd.ExitCode == 0 {
			upd.ExitCode = 1
		}
	case status == model.ExecError && upd.ErrorMessage == "":
		upd.ErrorMessage = fmt.Sprintf("job exited with code %d", upd.ExitCode)
	}

	if err := d.execRepo.Finish(d.base, exec.ExecutionID, upd); err != nil {
		logger.Error("failed to finish execution",
			zap.String("execution_id", exec.ExecutionID), zap.Error(err))
	}

	success := status == model.ExecSuccess
	final := model.TaskEnabled
	if status == model.ExecError || status == model.ExecTimeout {
		final = model.TaskError
	}
	if err := d.taskRepo.RecordRun(d.base, task.ID, success, finished, final); err != nil {
		logger.Error("failed to record run on task",
			zap.Uint64("task_id", task.ID), zap.Error(err))
	}

	d.observer.RecordExecution(string(task.Type), string(status), finished.Sub(started))

	logger.Info("execution finished",
		zap.String("execution_id", exec.ExecutionID),
		zap.String("task", task.Name),
		zap.String("status", string(status)),
		zap.Int64("duration_ms", upd.DurationMS),
	)

	// Free the single-flight slot before the retry controller gets a say, so
	// a zero-interval retry is submittable immediately.
	d.mu.Lock()
	delete(d.running, task.ID)
	d.mu.Unlock()

	exec.Status = status
	exec.FinishedAt = &finished
	exec.ErrorMessage = upd.ErrorMessage
	if d.retry != nil {
		d.retry.OnExecutionFinished(task, exec)
	}
}

// invoke shields the dispatcher from panicking job bodies.
func (d *Dispatcher) invoke(ctx context.Context, job Job, params string) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("job panicked: %v", r)
			logger.Error("job body panicked", zap.String("job", job.Name()), zap.Any("panic", r))
		}
	}()
	return job.Run(ctx, []byte(params))
}

func terminalStatus(ctx context.Context, entry *inflight, res *Result, jobErr error) model.ExecutionStatus {
	switch {
	case entry.manual.Load():
		return model.ExecCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return model.ExecTimeout
	case jobErr != nil:
		return model.ExecError
	case res != nil && res.ExitCode != 0:
		return model.ExecError
	default:
		return model.ExecSuccess
	}
}

func allocMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / 1024.0 / 1024.0
}
