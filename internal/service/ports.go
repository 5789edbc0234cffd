package service

import (
	"context"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/mollie"
)

// PaymentProvider is the remote payment service. Implemented by *mollie.Client.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, apiKey string, req mollie.CreatePaymentRequest) (*mollie.Payment, error)
	GetPayment(ctx context.Context, apiKey, id string) (*mollie.Payment, error)
	ListActiveMethods(ctx context.Context, apiKey string) ([]mollie.Method, error)
}

type GatewayConfigResolver interface {
	GatewayConfig(ctx context.Context, component, paymentArea string, itemID uint) (domain.GatewayConfig, error)
}

type PayableResolver interface {
	Payable(ctx context.Context, component, paymentArea string, itemID uint) (domain.Payable, error)
}

// SuccessURLResolver returns the page a payer lands on after paying, "" when the host has none.
type SuccessURLResolver interface {
	SuccessURL(ctx context.Context, component, paymentArea string, itemID uint) (string, error)
}

// Ledger saves a payment in the host ledger and links it to the transaction in one unit.
// When the transaction already carries a payment id that id is returned and nothing is saved.
type Ledger interface {
	RecordPayment(ctx context.Context, transactionID uint, p domain.LedgerPayment) (uint, error)
}

type Deliverer interface {
	DeliverOrder(ctx context.Context, in domain.Delivery) error
}
