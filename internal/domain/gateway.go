package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const GatewayName = "mollie"

var (
	ErrLiveAPIKeyMissing = errors.New("live api key is required when test mode is off")
	ErrTestAPIKeyMissing = errors.New("test api key is required when test mode is on")
)

// SupportedCurrencies lists the currencies the gateway accepts.
var SupportedCurrencies = []string{"EUR"}

func IsSupportedCurrency(currency string) bool {
	for _, c := range SupportedCurrencies {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

// GatewayConfig is the per-account gateway configuration held by the host platform.
type GatewayConfig struct {
	APIKey     string `mapstructure:"apikey"`
	APIKeyTest string `mapstructure:"apikeytest"`
	TestMode   bool   `mapstructure:"testmode"`
	// UseInternalZeroPayments defaults to true when unset; the provider rejects zero amounts.
	UseInternalZeroPayments *bool `mapstructure:"useinternalzeropayments"`
}

func (c GatewayConfig) InternalZeroPayments() bool {
	return c.UseInternalZeroPayments == nil || *c.UseInternalZeroPayments
}

func (c GatewayConfig) Validate() error {
	if c.TestMode && strings.TrimSpace(c.APIKeyTest) == "" {
		return ErrTestAPIKeyMissing
	}
	if !c.TestMode && strings.TrimSpace(c.APIKey) == "" {
		return ErrLiveAPIKeyMissing
	}
	return nil
}

// Credential returns the API key for the given credential class. Callers reconciling an
// existing transaction pass the transaction's TestMode, never the current TestMode.
func (c GatewayConfig) Credential(testMode bool) (string, error) {
	if testMode {
		if strings.TrimSpace(c.APIKeyTest) == "" {
			return "", ErrTestAPIKeyMissing
		}
		return c.APIKeyTest, nil
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return "", ErrLiveAPIKeyMissing
	}
	return c.APIKey, nil
}

// Payable is what the host platform charges for an item, surcharge and rounding applied.
type Payable struct {
	AccountID uint
	Amount    decimal.Decimal
	Currency  string
}

// Delivery identifies an item to hand over to the payer after payment.
type Delivery struct {
	Component   string `json:"component"`
	PaymentArea string `json:"payment_area"`
	ItemID      uint   `json:"item_id"`
	PaymentID   uint   `json:"payment_id"`
	UserID      uint   `json:"user_id"`
}
