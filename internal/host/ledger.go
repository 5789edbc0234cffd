package host

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/observability"
)

// GormLedger records completed payments in the host payments table and links them to the
// gateway transaction that paid for them.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (l *GormLedger) RecordPayment(ctx context.Context, transactionID uint, p domain.LedgerPayment) (uint, error) {
	p.ID = 0
	if p.Gateway == "" {
		p.Gateway = domain.GatewayName
	}
	var paymentID uint
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record domain.Transaction
		if err := tx.Select("id", "payment_id").First(&record, transactionID).Error; err != nil {
			return fmt.Errorf("load transaction %d: %w", transactionID, err)
		}
		if record.PaymentID != nil {
			paymentID = *record.PaymentID
			return nil
		}
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("save ledger payment: %w", err)
		}
		res := tx.Model(&domain.Transaction{}).
			Where("id = ? AND payment_id IS NULL", transactionID).
			Updates(map[string]any{"payment_id": p.ID, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return fmt.Errorf("link ledger payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("link ledger payment: transaction %d already linked", transactionID)
		}
		paymentID = p.ID
		return nil
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "ledger", "record_payment", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "ledger", "record_payment", "success")
	return paymentID, nil
}

func (l *GormLedger) FindPayment(ctx context.Context, id uint) (*domain.LedgerPayment, error) {
	var p domain.LedgerPayment
	if err := l.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, fmt.Errorf("find ledger payment %d: %w", id, err)
	}
	return &p, nil
}
