package job

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mailops/internal/clock"
	"mailops/internal/repository"
	"mailops/internal/scheduler"
	"mailops/pkg/logger"
)

// CleanupParams controls the retention pass.
type CleanupParams struct {
	RetentionDays int `json:"retention_days"`
}

// CleanupJob prunes old execution logs and sync logs. Running executions are
// never touched.
type CleanupJob struct {
	executions repository.ExecutionInterface
	syncLogs   repository.SyncLogInterface
	clk        clock.Clock
}

func NewCleanupJob(
	executions repository.ExecutionInterface,
	syncLogs repository.SyncLogInterface,
	clk clock.Clock,
) *CleanupJob {
	return &CleanupJob{executions: executions, syncLogs: syncLogs, clk: clk}
}

func (j *CleanupJob) Name() string { return "cleanup" }

func (j *CleanupJob) Run(ctx context.Context, params []byte) (*scheduler.Result, error) {
	p := CleanupParams{RetentionDays: 30}
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if p.RetentionDays <= 0 {
		p.RetentionDays = 30
	}

	cutoff := j.clk.Now().AddDate(0, 0, -p.RetentionDays)

	execs, err := j.executions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	syncs, err := j.syncLogs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	logger.Info("cleanup finished",
		zap.Time("cutoff", cutoff),
		zap.Int64("executions_deleted", execs),
		zap.Int64("sync_logs_deleted", syncs),
	)
	return &scheduler.Result{
		Summary: map[string]any{
			"retention_days":     p.RetentionDays,
			"executions_deleted": execs,
			"sync_logs_deleted":  syncs,
		},
	}, nil
}
