package repository

import (
	"context"
	"errors"
	"time"

	"mailops/internal/model"

	"gorm.io/gorm"
)

type AccountInterface interface {
	Create(ctx context.Context, account *model.MailboxAccount) error
	GetByID(ctx context.Context, id uint64) (*model.MailboxAccount, error)
	List(ctx context.Context) ([]*model.MailboxAccount, error)
	ListAutoSync(ctx context.Context) ([]*model.MailboxAccount, error)
	UpdateLastSync(ctx context.Context, id uint64, at time.Time) error
}

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.MailboxAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByID(ctx context.Context, id uint64) (*model.MailboxAccount, error) {
	var account model.MailboxAccount
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*model.MailboxAccount, error) {
	var accounts []*model.MailboxAccount
	err := r.db.WithContext(ctx).Order("id ASC").Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) ListAutoSync(ctx context.Context) ([]*model.MailboxAccount, error) {
	var accounts []*model.MailboxAccount
	err := r.db.WithContext(ctx).Where("auto_sync = ?", true).Order("id ASC").Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) UpdateLastSync(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.MailboxAccount{}).
		Where("id = ?", id).Update("last_sync_time", at).Error
}
