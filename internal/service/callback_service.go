package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/mollie"
	"github.com/sandeepkv93/paygw-mollie/internal/repository"
)

const (
	MessagePaymentSuccessful = "Your payment was successful"
	MessageAlreadyPaid       = "Payment already performed"
	MessagePaymentPending    = "Your payment is pending. We will process the payment status later"
	MessagePaymentCanceled   = "Your payment was cancelled"
	MessageCannotProcess     = "Your payment has a status we cannot (yet) process. Please contact system administrator"
	MessageRecordNotFound    = "Reference to this payment cannot be found in our system."
	MessageUnknownError      = "An unknown error has occurred. Please contact the system administrator."
	MessageRecordMismatch    = "Invalid request: one or more paymentrecord variables do not match with the intended component, paymentarea or itemid"
	MessageNoPaymentMethods  = "You don't have any payment methods enabled for Mollie."
)

const (
	NoticeLevelSuccess = "success"
	NoticeLevelWarning = "warning"
	NoticeLevelError   = "error"
)

const (
	returnOutcomeAlreadyPaid  = "already_paid"
	returnOutcomeSynchronized = "synchronized"
)

// CallbackRef is what the provider echoes back on the return and webhook URLs.
type CallbackRef struct {
	Component   string
	PaymentArea string
	ItemID      uint
	InternalID  uint
}

func (r CallbackRef) matches(tx *domain.Transaction) bool {
	return tx.Component == r.Component && tx.PaymentArea == r.PaymentArea && tx.ItemID == r.ItemID
}

// ReturnOutcome tells the browser where to go next and what to show there.
type ReturnOutcome struct {
	RedirectURL string
	NoticeLevel string
	Message     string
	Status      string
	Reason      string
}

type synchronizer interface {
	Synchronize(ctx context.Context, source string, snapshot *mollie.Payment, record *domain.Transaction) (*mollie.Payment, error)
}

// CallbackService handles the payer's return from checkout and the provider's webhook.
type CallbackService struct {
	transactions repository.TransactionRepository
	reconciler   synchronizer
	payments     *PaymentService
	logger       *slog.Logger
}

func NewCallbackService(transactions repository.TransactionRepository, reconciler *ReconcileService, payments *PaymentService, logger *slog.Logger) *CallbackService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackService{transactions: transactions, reconciler: reconciler, payments: payments, logger: logger}
}

// HandleReturn never fails; every error becomes a notice on the site root.
func (s *CallbackService) HandleReturn(ctx context.Context, ref CallbackRef) ReturnOutcome {
	siteRoot := s.payments.SiteRoot()
	record, err := s.transactions.FindByID(ctx, ref.InternalID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return ReturnOutcome{RedirectURL: siteRoot, NoticeLevel: NoticeLevelError, Message: MessageRecordNotFound, Reason: "not_found"}
		}
		s.logger.ErrorContext(ctx, "return lookup failed", "internal_id", ref.InternalID, "error", err)
		return ReturnOutcome{RedirectURL: siteRoot, NoticeLevel: NoticeLevelError, Message: MessageUnknownError, Reason: "lookup_error"}
	}
	if !ref.matches(record) {
		s.logger.WarnContext(ctx, "return parameters do not match transaction",
			"internal_id", ref.InternalID,
			"component", ref.Component,
			"payment_area", ref.PaymentArea,
			"item_id", ref.ItemID,
		)
		return ReturnOutcome{RedirectURL: siteRoot, NoticeLevel: NoticeLevelError, Message: MessageRecordMismatch, Reason: "mismatch"}
	}

	successURL := s.payments.SuccessURL(ctx, record.Component, record.PaymentArea, record.ItemID)
	if record.IsPaid() {
		return ReturnOutcome{
			RedirectURL: successURL,
			NoticeLevel: NoticeLevelSuccess,
			Message:     MessageAlreadyPaid,
			Status:      record.Status,
			Reason:      returnOutcomeAlreadyPaid,
		}
	}

	snapshot, err := s.reconciler.Synchronize(ctx, domain.CallbackSourceReturn, nil, record)
	if err != nil {
		s.logger.WarnContext(ctx, "return reconciliation failed", "internal_id", record.ID, "error", err)
		if errors.Is(err, ErrNotFound) {
			return ReturnOutcome{RedirectURL: siteRoot, NoticeLevel: NoticeLevelError, Message: MessageRecordNotFound, Reason: "not_found"}
		}
		if field, ok := IsValidationError(err); ok {
			return ReturnOutcome{RedirectURL: siteRoot, NoticeLevel: NoticeLevelError, Message: MessageUnknownError, Reason: "invalid_" + field}
		}
		return ReturnOutcome{RedirectURL: siteRoot, NoticeLevel: NoticeLevelError, Message: MessageUnknownError, Reason: "error"}
	}

	out := ReturnOutcome{RedirectURL: siteRoot, Status: snapshot.Status, Reason: returnOutcomeSynchronized}
	switch snapshot.Status {
	case mollie.StatusPaid:
		out.RedirectURL = successURL
		out.NoticeLevel = NoticeLevelSuccess
		out.Message = MessagePaymentSuccessful
	case mollie.StatusPending:
		out.NoticeLevel = NoticeLevelWarning
		out.Message = MessagePaymentPending
	case mollie.StatusCanceled:
		out.NoticeLevel = NoticeLevelWarning
		out.Message = MessagePaymentCanceled
	default:
		out.NoticeLevel = NoticeLevelError
		out.Message = MessageCannotProcess
	}
	return out
}

// HandleWebhook reconciles the record named by both the internal id and the provider's
// payment id. Any error means the provider should retry.
func (s *CallbackService) HandleWebhook(ctx context.Context, ref CallbackRef, orderID string) error {
	if orderID == "" || ref.InternalID == 0 {
		return ErrInvalidArguments
	}
	record, err := s.transactions.FindByIDAndOrderID(ctx, ref.InternalID, orderID)
	if err != nil {
		return err
	}
	if !ref.matches(record) {
		return ErrRecordMismatch
	}
	_, err = s.reconciler.Synchronize(ctx, domain.CallbackSourceWebhook, nil, record)
	return err
}
