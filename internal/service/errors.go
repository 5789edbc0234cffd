package service

import (
	"errors"
	"fmt"

	"github.com/sandeepkv93/paygw-mollie/internal/repository"
)

var (
	ErrConfiguration       = errors.New("gateway configuration error")
	ErrRemoteCall          = errors.New("remote payment service call failed")
	ErrInvalidArguments    = errors.New("provide either the remote payment, the local record or both")
	ErrNotFound            = repository.ErrTransactionNotFound
	ErrRecordMismatch      = errors.New("payment record does not match the requested component, payment area or item")
	ErrUnsupportedCurrency = errors.New("currency not supported by gateway")

	// ErrConcurrentTransition reports that another caller changed the status first.
	ErrConcurrentTransition = errors.New("transaction status changed concurrently")
	ErrLockUnavailable      = errors.New("transaction lock unavailable")
)

const (
	FieldComponent   = "component"
	FieldPaymentArea = "paymentarea"
	FieldItemID      = "itemid"
	FieldUserID      = "userid"
	FieldMetadata    = "metadata"
	FieldOrderID     = "orderid"
)

// ValidationError reports a mismatch between the local record and the remote payment.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field == FieldUserID {
		return "transaction invalid: user mismatch"
	}
	return fmt.Sprintf("transaction invalid: %s mismatch", e.Field)
}

// IsValidationError reports whether err carries a ValidationError and returns its field.
func IsValidationError(err error) (string, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Field, true
	}
	return "", false
}
