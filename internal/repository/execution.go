package repository

import (
	"context"
	"errors"
	"time"

	"mailops/internal/model"

	"gorm.io/gorm"
)

// ErrNotRunning is returned by Finish when the execution has already reached
// a terminal state (terminal rows are immutable).
var ErrNotRunning = errors.New("execution is not running")

// FinishUpdate carries the terminal transition of an execution.
type FinishUpdate struct {
	Status        model.ExecutionStatus
	FinishedAt    time.Time
	DurationMS    int64
	ExitCode      int
	Output        string
	ErrorOutput   string
	ErrorMessage  string
	MemoryUsageMB float64
}

type ExecutionInterface interface {
	Create(ctx context.Context, exec *model.Execution) error
	Finish(ctx context.Context, executionID string, upd FinishUpdate) error
	GetByExecutionID(ctx context.Context, executionID string) (*model.Execution, error)
	ListByTask(ctx context.Context, taskID uint64, limit int) ([]*model.Execution, error)
	CountRunning(ctx context.Context, taskID uint64) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	WithTx(tx *gorm.DB) ExecutionInterface
}

type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) Create(ctx context.Context, exec *model.Execution) error {
	return r.db.WithContext(ctx).Create(exec).Error
}

// Finish transitions a running execution to a terminal state. The guard on
// status makes the transition happen exactly once.
func (r *ExecutionRepository) Finish(ctx context.Context, executionID string, upd FinishUpdate) error {
	res := r.db.WithContext(ctx).Model(&model.Execution{}).
		Where("execution_id = ? AND status = ?", executionID, model.ExecRunning).
		Updates(map[string]any{
			"status":          upd.Status,
			"finished_at":     upd.FinishedAt,
			"duration_ms":     upd.DurationMS,
			"exit_code":       upd.ExitCode,
			"output":          upd.Output,
			"error_output":    upd.ErrorOutput,
			"error_message":   upd.ErrorMessage,
			"memory_usage_mb": upd.MemoryUsageMB,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotRunning
	}
	return nil
}

func (r *ExecutionRepository) GetByExecutionID(ctx context.Context, executionID string) (*model.Execution, error) {
	var exec model.Execution
	if err := r.db.WithContext(ctx).Where("execution_id = ?", executionID).First(&exec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &exec, nil
}

func (r *ExecutionRepository) ListByTask(ctx context.Context, taskID uint64, limit int) ([]*model.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	var execs []*model.Execution
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).
		Order("started_at DESC").Limit(limit).Find(&execs).Error
	return execs, err
}

func (r *ExecutionRepository) CountRunning(ctx context.Context, taskID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Execution{}).
		Where("task_id = ? AND status = ?", taskID, model.ExecRunning).
		Count(&count).Error
	return count, err
}

func (r *ExecutionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ? AND status <> ?", cutoff, model.ExecRunning).
		Delete(&model.Execution{})
	return res.RowsAffected, res.Error
}

func (r *ExecutionRepository) WithTx(tx *gorm.DB) ExecutionInterface {
	return &ExecutionRepository{db: tx}
}
