package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/observability"
)

type CallbackLogRepository interface {
	Append(ctx context.Context, entry *domain.CallbackLog) error
	ListByTransaction(ctx context.Context, transactionID uint) ([]domain.CallbackLog, error)
}

type GormCallbackLogRepository struct{ db *gorm.DB }

func NewCallbackLogRepository(db *gorm.DB) CallbackLogRepository {
	return &GormCallbackLogRepository{db: db}
}

func (r *GormCallbackLogRepository) Append(ctx context.Context, entry *domain.CallbackLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "callback_log", "append", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "callback_log", "append", "success")
	return nil
}

func (r *GormCallbackLogRepository) ListByTransaction(ctx context.Context, transactionID uint) ([]domain.CallbackLog, error) {
	var entries []domain.CallbackLog
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Order("id asc").Find(&entries).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "callback_log", "list", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "callback_log", "list", "success")
	return entries, nil
}
