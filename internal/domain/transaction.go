package domain

import "time"

// UnsetOrderID marks a transaction whose remote payment has not been created yet.
const UnsetOrderID = "-1"

const (
	TransactionStatusInit        = "INIT"
	TransactionStatusZeroPayment = "ZEROPAYMENT"

	TransactionStatusOpen     = "open"
	TransactionStatusPending  = "pending"
	TransactionStatusPaid     = "paid"
	TransactionStatusCanceled = "canceled"
	TransactionStatusExpired  = "expired"
	TransactionStatusFailed   = "failed"
)

// Transaction is the local record of one payment attempt against the remote provider.
// Component, PaymentArea, ItemID and UserID identify what is paid for and by whom; they
// never change after creation. TestMode is captured at creation and decides which API
// credential is used for every later call about this record.
type Transaction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Component   string    `gorm:"size:100;not null;index:idx_paygw_mollie_item" json:"component"`
	PaymentArea string    `gorm:"size:50;not null;index:idx_paygw_mollie_item" json:"payment_area"`
	ItemID      uint      `gorm:"not null;index:idx_paygw_mollie_item" json:"item_id"`
	OrderID     string    `gorm:"size:64;not null;default:-1;index" json:"order_id"`
	Status      string    `gorm:"size:32;not null;default:INIT" json:"status"`
	TestMode    bool      `gorm:"not null;default:false" json:"test_mode"`
	PaymentID   *uint     `gorm:"index" json:"payment_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Transaction) TableName() string { return "paygw_mollie" }

// HasRemoteOrder reports whether the remote create-payment call completed for this record.
func (t *Transaction) HasRemoteOrder() bool {
	return t.OrderID != "" && t.OrderID != UnsetOrderID
}

func (t *Transaction) IsPaid() bool {
	return t.Status == TransactionStatusPaid
}

// IsRemoteStatus reports whether s is one of the status codes the remote provider reports.
func IsRemoteStatus(s string) bool {
	switch s {
	case TransactionStatusOpen, TransactionStatusPending, TransactionStatusPaid,
		TransactionStatusCanceled, TransactionStatusExpired, TransactionStatusFailed:
		return true
	}
	return false
}
