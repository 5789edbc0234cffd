package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	CallbackSourceReturn  = "return"
	CallbackSourceWebhook = "webhook"
	CallbackSourceCLI     = "cli"
)

const (
	CallbackOutcomeSynced    = "synced"
	CallbackOutcomeUnchanged = "unchanged"
	CallbackOutcomeRejected  = "rejected"
	CallbackOutcomeError     = "error"
)

// CallbackLog records one reconciliation attempt and what it observed.
type CallbackLog struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	TransactionID uint           `gorm:"not null;index" json:"transaction_id"`
	Source        string         `gorm:"size:16;not null;index" json:"source"`
	RemoteStatus  string         `gorm:"size:32" json:"remote_status"`
	Outcome       string         `gorm:"size:16;not null;index" json:"outcome"`
	Detail        datatypes.JSON `json:"detail,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}

func (CallbackLog) TableName() string { return "paygw_mollie_callbacks" }
