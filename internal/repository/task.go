package repository

import (
	"context"
	"errors"
	"time"

	"mailops/internal/model"

	"gorm.io/gorm"
)

// TaskStats is the aggregate view surfaced on the ops API.
type TaskStats struct {
	TotalTasks    int64 `json:"total_tasks"`
	EnabledTasks  int64 `json:"enabled_tasks"`
	DisabledTasks int64 `json:"disabled_tasks"`
	RunningTasks  int64 `json:"running_tasks"`
	ErrorTasks    int64 `json:"error_tasks"`
}

type TaskInterface interface {
	Create(ctx context.Context, task *model.Task) error
	Update(ctx context.Context, task *model.Task) error
	GetByID(ctx context.Context, id uint64) (*model.Task, error)
	GetByName(ctx context.Context, name string) (*model.Task, error)
	List(ctx context.Context) ([]*model.Task, error)
	ListDue(ctx context.Context, now time.Time) ([]*model.Task, error)
	SeedNextRun(ctx context.Context, id uint64, next time.Time) error
	ClaimNextRun(ctx context.Context, id uint64, prev *time.Time, next time.Time) (bool, error)
	TryMarkRunning(ctx context.Context, id uint64) (bool, error)
	ReleaseRunning(ctx context.Context, id uint64) error
	RecordRun(ctx context.Context, id uint64, success bool, at time.Time, final model.TaskStatus) error
	Stats(ctx context.Context) (*TaskStats, error)
	SoftDelete(ctx context.Context, id uint64) error
	WithTx(tx *gorm.DB) TaskInterface
}

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *TaskRepository) GetByID(ctx context.Context, id uint64) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) GetByName(ctx context.Context, name string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) List(ctx context.Context) ([]*model.Task, error) {
	var tasks []*model.Task
	err := r.db.WithContext(ctx).Order("priority ASC, id ASC").Find(&tasks).Error
	return tasks, err
}

// ListDue returns enabled, active tasks whose next_run_at has arrived,
// ordered by priority (lower = higher).
func (r *TaskRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Task, error) {
	var tasks []*model.Task
	err := r.db.WithContext(ctx).
		Where("status = ? AND is_active = ? AND next_run_at IS NOT NULL AND next_run_at <= ?",
			model.TaskEnabled, true, now).
		Order("priority ASC, next_run_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// SeedNextRun fills next_run_at only when it is still null (first run).
func (r *TaskRepository) SeedNextRun(ctx context.Context, id uint64, next time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND next_run_at IS NULL", id).
		Update("next_run_at", next).Error
}

// ClaimNextRun is the scheduler's compare-and-set: next_run_at only advances
// when it still holds the value the scheduler read, so a second tick cannot
// reclaim the same firing.
func (r *TaskRepository) ClaimNextRun(ctx context.Context, id uint64, prev *time.Time, next time.Time) (bool, error) {
	q := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id)
	if prev == nil {
		q = q.Where("next_run_at IS NULL")
	} else {
		q = q.Where("next_run_at = ?", *prev)
	}
	res := q.Update("next_run_at", next)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// TryMarkRunning is the dispatcher's transactional claim: the conditional
// update succeeds for exactly one caller even under concurrent submissions.
func (r *TaskRepository) TryMarkRunning(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND status <> ?", id, model.TaskRunning).
		Update("status", model.TaskRunning)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseRunning undoes a claim whose execution never started. Counters and
// last_* timestamps stay untouched; only a still-running status is restored.
func (r *TaskRepository) ReleaseRunning(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND status = ?", id, model.TaskRunning).
		Update("status", model.TaskEnabled).Error
}

// RecordRun applies the post-completion counter updates. run_count always
// increments; success/error counters and last_* timestamps exclusively.
func (r *TaskRepository) RecordRun(ctx context.Context, id uint64, success bool, at time.Time, final model.TaskStatus) error {
	updates := map[string]any{
		"run_count":   gorm.Expr("run_count + 1"),
		"last_run_at": at,
	}
	if success {
		updates["success_count"] = gorm.Expr("success_count + 1")
		updates["last_success_at"] = at
	} else {
		updates["error_count"] = gorm.Expr("error_count + 1")
		updates["last_error_at"] = at
	}
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return err
	}
	// Restore status only if nobody toggled it mid-run.
	return r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND status = ?", id, model.TaskRunning).
		Update("status", final).Error
}

func (r *TaskRepository) Stats(ctx context.Context) (*TaskStats, error) {
	var stats TaskStats
	db := r.db.WithContext(ctx).Model(&model.Task{})

	if err := db.Count(&stats.TotalTasks).Error; err != nil {
		return nil, err
	}
	counts := map[model.TaskStatus]*int64{
		model.TaskEnabled:  &stats.EnabledTasks,
		model.TaskDisabled: &stats.DisabledTasks,
		model.TaskRunning:  &stats.RunningTasks,
		model.TaskError:    &stats.ErrorTasks,
	}
	for status, dst := range counts {
		if err := r.db.WithContext(ctx).Model(&model.Task{}).
			Where("status = ?", status).Count(dst).Error; err != nil {
			return nil, err
		}
	}
	return &stats, nil
}

func (r *TaskRepository) SoftDelete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&model.Task{}, id).Error
}

func (r *TaskRepository) WithTx(tx *gorm.DB) TaskInterface {
	return &TaskRepository{db: tx}
}
