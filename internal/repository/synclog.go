package repository

import (
	"context"
	"time"

	"mailops/internal/model"

	"gorm.io/gorm"
)

type SyncLogInterface interface {
	Create(ctx context.Context, log *model.SyncLog) error
	ListByAccount(ctx context.Context, accountID uint64, limit int) ([]*model.SyncLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type SyncLogRepository struct {
	db *gorm.DB
}

func NewSyncLogRepository(db *gorm.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

func (r *SyncLogRepository) Create(ctx context.Context, log *model.SyncLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *SyncLogRepository) ListByAccount(ctx context.Context, accountID uint64, limit int) ([]*model.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []*model.SyncLog
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).
		Order("started_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

func (r *SyncLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.SyncLog{})
	return res.RowsAffected, res.Error
}
