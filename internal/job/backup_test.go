package job

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mailops/internal/clock"
	"mailops/internal/model"
	"mailops/internal/repository"
)

type staticTaskRepo struct {
	mu    sync.Mutex
	tasks []*model.Task
}

func (r *staticTaskRepo) Create(context.Context, *model.Task) error { return nil }
func (r *staticTaskRepo) Update(context.Context, *model.Task) error { return nil }
func (r *staticTaskRepo) GetByID(context.Context, uint64) (*model.Task, error) {
	return nil, nil
}
func (r *staticTaskRepo) GetByName(context.Context, string) (*model.Task, error) {
	return nil, nil
}
func (r *staticTaskRepo) List(context.Context) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks, nil
}
func (r *staticTaskRepo) ListDue(context.Context, time.Time) ([]*model.Task, error) {
	return nil, nil
}
func (r *staticTaskRepo) SeedNextRun(context.Context, uint64, time.Time) error { return nil }
func (r *staticTaskRepo) ClaimNextRun(context.Context, uint64, *time.Time, time.Time) (bool, error) {
	return false, nil
}
func (r *staticTaskRepo) TryMarkRunning(context.Context, uint64) (bool, error) { return false, nil }
func (r *staticTaskRepo) ReleaseRunning(context.Context, uint64) error         { return nil }
func (r *staticTaskRepo) RecordRun(context.Context, uint64, bool, time.Time, model.TaskStatus) error {
	return nil
}
func (r *staticTaskRepo) Stats(context.Context) (*repository.TaskStats, error) {
	return &repository.TaskStats{TotalTasks: int64(len(r.tasks))}, nil
}
func (r *staticTaskRepo) SoftDelete(context.Context, uint64) error { return nil }
func (r *staticTaskRepo) WithTx(*gorm.DB) repository.TaskInterface { return r }

func TestBackupWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewFake(time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC))
	repo := &staticTaskRepo{tasks: []*model.Task{
		{ID: 1, Name: "sync", Type: model.TaskTypeMailboxSync},
		{ID: 2, Name: "extract", Type: model.TaskTypeOrderSync},
	}}

	j := NewBackupJob(repo, dir, clk)
	res, err := j.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary["tasks"])

	path := filepath.Join(dir, "tasks-20241115-120000.json")
	assert.Equal(t, path, res.Output)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var snapshot struct {
		Stats struct {
			TotalTasks int64 `json:"total_tasks"`
		} `json:"stats"`
		Tasks []model.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(raw, &snapshot))
	assert.Equal(t, int64(2), snapshot.Stats.TotalTasks)
	require.Len(t, snapshot.Tasks, 2)
	assert.Equal(t, "sync", snapshot.Tasks[0].Name)
}

func TestBackupDirectoryOverride(t *testing.T) {
	base := t.TempDir()
	override := filepath.Join(base, "nested", "out")
	clk := clock.NewFake(time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC))

	j := NewBackupJob(&staticTaskRepo{}, base, clk)
	params, err := json.Marshal(BackupParams{Directory: override})
	require.NoError(t, err)

	res, err := j.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, override, filepath.Dir(res.Output))

	_, err = os.Stat(res.Output)
	require.NoError(t, err)
}
