package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"mailops/internal/clock"
	"mailops/internal/repository"
	"mailops/internal/scheduler"
	"mailops/pkg/logger"
)

// BackupParams controls where the snapshot lands.
type BackupParams struct {
	Directory string `json:"directory"`
}

// BackupJob writes a JSON snapshot of the task table and aggregate stats to
// the backup directory. One file per run, timestamped.
type BackupJob struct {
	tasks      repository.TaskInterface
	defaultDir string
	clk        clock.Clock
}

func NewBackupJob(tasks repository.TaskInterface, defaultDir string, clk clock.Clock) *BackupJob {
	return &BackupJob{tasks: tasks, defaultDir: defaultDir, clk: clk}
}

func (j *BackupJob) Name() string { return "backup" }

func (j *BackupJob) Run(ctx context.Context, params []byte) (*scheduler.Result, error) {
	var p BackupParams
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	dir := p.Directory
	if dir == "" {
		dir = j.defaultDir
	}
	if dir == "" {
		dir = "backups"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	tasks, err := j.tasks.List(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := j.tasks.Stats(ctx)
	if err != nil {
		return nil, err
	}

	now := j.clk.Now()
	snapshot := map[string]any{
		"generated_at": now,
		"stats":        stats,
		"tasks":        tasks,
	}
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, fmt.Sprintf("tasks-%s.json", now.UTC().Format("20060102-150405")))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	logger.Info("backup written", zap.String("path", path), zap.Int("tasks", len(tasks)))
	return &scheduler.Result{
		Output: path,
		Summary: map[string]any{
			"tasks": len(tasks),
			"bytes": len(raw),
		},
	}, nil
}
