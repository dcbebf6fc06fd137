package repository

import (
	"context"
	"errors"

	"mailops/internal/model"

	"gorm.io/gorm"
)

type EmailInterface interface {
	// ListUIDs returns the UIDs already stored for an account folder,
	// including soft-deleted marks (a re-appearing UID is an update, not a
	// new record).
	ListUIDs(ctx context.Context, accountID uint64, folder string) ([]uint32, error)
	// Upsert creates the record on first sight of a UID and updates mutable
	// metadata in place on later syncs. Reports whether a row was created.
	Upsert(ctx context.Context, rec *model.EmailRecord) (bool, error)
	MarkDeleted(ctx context.Context, accountID uint64, folder string, uids []uint32) (int64, error)
	// ListEligible returns records for order extraction, optionally only
	// those not yet linked to an order.
	ListEligible(ctx context.Context, accountID uint64, onlyUnlinked bool, limit int) ([]*model.EmailRecord, error)
	LinkOrder(ctx context.Context, emailID, orderID uint64) error
	Count(ctx context.Context, accountID uint64) (int64, error)
}

type EmailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) *EmailRepository {
	return &EmailRepository{db: db}
}

func (r *EmailRepository) ListUIDs(ctx context.Context, accountID uint64, folder string) ([]uint32, error) {
	var uids []uint32
	err := r.db.WithContext(ctx).Model(&model.EmailRecord{}).
		Where("account_id = ? AND folder = ?", accountID, folder).
		Pluck("uid", &uids).Error
	return uids, err
}

func (r *EmailRepository) Upsert(ctx context.Context, rec *model.EmailRecord) (bool, error) {
	var existing model.EmailRecord
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND folder = ? AND uid = ?", rec.AccountID, rec.Folder, rec.UID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	// Only mutable metadata moves on re-sync; identity and the order link
	// stay untouched.
	updErr := r.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"flags":     rec.Flags,
		"subject":   rec.Subject,
		"size":      rec.Size,
		"deleted":   false,
		"synced_at": rec.SyncedAt,
	}).Error
	if updErr != nil {
		return false, updErr
	}
	rec.ID = existing.ID
	rec.OrderID = existing.OrderID
	return false, nil
}

func (r *EmailRepository) MarkDeleted(ctx context.Context, accountID uint64, folder string, uids []uint32) (int64, error) {
	if len(uids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&model.EmailRecord{}).
		Where("account_id = ? AND folder = ? AND uid IN ?", accountID, folder, uids).
		Update("deleted", true)
	return res.RowsAffected, res.Error
}

func (r *EmailRepository) ListEligible(ctx context.Context, accountID uint64, onlyUnlinked bool, limit int) ([]*model.EmailRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).
		Where("account_id = ? AND deleted = ?", accountID, false)
	if onlyUnlinked {
		q = q.Where("order_id IS NULL")
	}
	var recs []*model.EmailRecord
	err := q.Order("date ASC").Limit(limit).Find(&recs).Error
	return recs, err
}

func (r *EmailRepository) LinkOrder(ctx context.Context, emailID, orderID uint64) error {
	return r.db.WithContext(ctx).Model(&model.EmailRecord{}).
		Where("id = ?", emailID).Update("order_id", orderID).Error
}

func (r *EmailRepository) Count(ctx context.Context, accountID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.EmailRecord{}).
		Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}
