package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerPayment is the host platform's record of a completed payment.
type LedgerPayment struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	AccountID   uint            `gorm:"not null;index" json:"account_id"`
	Component   string          `gorm:"size:100;not null" json:"component"`
	PaymentArea string          `gorm:"size:50;not null" json:"payment_area"`
	ItemID      uint            `gorm:"not null" json:"item_id"`
	UserID      uint            `gorm:"not null;index" json:"user_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,5);not null" json:"amount"`
	Currency    string          `gorm:"size:3;not null" json:"currency"`
	Gateway     string          `gorm:"size:100;not null" json:"gateway"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (LedgerPayment) TableName() string { return "payments" }
