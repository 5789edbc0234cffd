package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/mollie"
	"github.com/sandeepkv93/paygw-mollie/internal/observability"
	"github.com/sandeepkv93/paygw-mollie/internal/repository"
)

// ReconcileService is the single place that changes a transaction's status and triggers
// delivery. The return flow, the webhook and the operator CLI all go through Synchronize.
type ReconcileService struct {
	transactions repository.TransactionRepository
	callbacks    repository.CallbackLogRepository
	provider     PaymentProvider
	gateways     GatewayConfigResolver
	payables     PayableResolver
	ledger       Ledger
	deliverer    Deliverer
	locker       RecordLocker
	logger       *slog.Logger
}

func NewReconcileService(
	transactions repository.TransactionRepository,
	callbacks repository.CallbackLogRepository,
	provider PaymentProvider,
	gateways GatewayConfigResolver,
	payables PayableResolver,
	ledger Ledger,
	deliverer Deliverer,
	locker RecordLocker,
	logger *slog.Logger,
) *ReconcileService {
	if locker == nil {
		locker = NewLocalRecordLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{
		transactions: transactions,
		callbacks:    callbacks,
		provider:     provider,
		gateways:     gateways,
		payables:     payables,
		ledger:       ledger,
		deliverer:    deliverer,
		locker:       locker,
		logger:       logger,
	}
}

// Synchronize brings the local record in line with the remote payment. Either argument may
// be nil and is then resolved from the other; both nil is ErrInvalidArguments. The remote
// snapshot is returned on every successful path, including when nothing changed.
func (s *ReconcileService) Synchronize(ctx context.Context, source string, snapshot *mollie.Payment, record *domain.Transaction) (*mollie.Payment, error) {
	ctx, span := observability.StartSpan(ctx, "reconcile.synchronize", attribute.String("source", source))
	defer span.End()

	result, outcome, err := s.synchronize(ctx, source, snapshot, record)
	observability.RecordReconcileOutcome(ctx, source, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return result, err
}

func (s *ReconcileService) synchronize(ctx context.Context, source string, snapshot *mollie.Payment, record *domain.Transaction) (*mollie.Payment, string, error) {
	if snapshot == nil && record == nil {
		return nil, domain.CallbackOutcomeRejected, ErrInvalidArguments
	}

	if record == nil {
		found, err := s.transactions.FindByOrderID(ctx, snapshot.ID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				s.logger.WarnContext(ctx, "no transaction for remote payment", "order_id", snapshot.ID, "source", source)
				return nil, domain.CallbackOutcomeRejected, ErrNotFound
			}
			return nil, domain.CallbackOutcomeError, fmt.Errorf("find transaction by order id: %w", err)
		}
		record = found
	}

	unlock, err := s.locker.Lock(ctx, record.ID)
	if err != nil {
		s.appendCallback(ctx, record.ID, source, snapshotStatus(snapshot), domain.CallbackOutcomeError, map[string]any{"error": err.Error()})
		return nil, domain.CallbackOutcomeError, err
	}
	defer unlock()

	current, err := s.transactions.FindByID(ctx, record.ID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, domain.CallbackOutcomeRejected, ErrNotFound
		}
		return nil, domain.CallbackOutcomeError, fmt.Errorf("reload transaction: %w", err)
	}

	if snapshot == nil {
		fetched, err := s.fetchSnapshot(ctx, current)
		if err != nil {
			s.appendCallback(ctx, current.ID, source, "", domain.CallbackOutcomeError, map[string]any{"error": err.Error()})
			return nil, domain.CallbackOutcomeError, err
		}
		snapshot = fetched
	}

	if err := validateSnapshot(snapshot, current); err != nil {
		field, _ := IsValidationError(err)
		s.logger.WarnContext(ctx, "remote payment does not match transaction",
			"transaction_id", current.ID,
			"order_id", snapshot.ID,
			"field", field,
			"source", source,
		)
		s.appendCallback(ctx, current.ID, source, snapshot.Status, domain.CallbackOutcomeRejected, map[string]any{"field": field})
		return nil, domain.CallbackOutcomeRejected, err
	}

	if snapshot.Status == current.Status {
		s.appendCallback(ctx, current.ID, source, snapshot.Status, domain.CallbackOutcomeUnchanged, nil)
		return snapshot, domain.CallbackOutcomeUnchanged, nil
	}

	// paid is final locally; a snapshot taken before the payment completed must not reopen it.
	if current.IsPaid() {
		s.logger.InfoContext(ctx, "ignoring remote status for paid transaction",
			"transaction_id", current.ID,
			"order_id", current.OrderID,
			"status", snapshot.Status,
			"source", source,
		)
		s.appendCallback(ctx, current.ID, source, snapshot.Status, domain.CallbackOutcomeUnchanged, map[string]any{"stale": true})
		return snapshot, domain.CallbackOutcomeUnchanged, nil
	}

	if err := s.transition(ctx, current, snapshot.Status); err != nil {
		if errors.Is(err, ErrConcurrentTransition) {
			s.logger.InfoContext(ctx, "transaction status changed by another caller",
				"transaction_id", current.ID,
				"order_id", current.OrderID,
				"status", snapshot.Status,
				"source", source,
			)
			s.appendCallback(ctx, current.ID, source, snapshot.Status, domain.CallbackOutcomeUnchanged, map[string]any{"race": true})
			return snapshot, domain.CallbackOutcomeUnchanged, nil
		}
		s.logger.ErrorContext(ctx, "transaction transition failed",
			"transaction_id", current.ID,
			"order_id", current.OrderID,
			"status", snapshot.Status,
			"source", source,
			"error", err,
		)
		s.appendCallback(ctx, current.ID, source, snapshot.Status, domain.CallbackOutcomeError, map[string]any{"error": err.Error()})
		return nil, domain.CallbackOutcomeError, err
	}

	s.logger.InfoContext(ctx, "transaction status synchronized",
		"transaction_id", current.ID,
		"order_id", current.OrderID,
		"from", current.Status,
		"status", snapshot.Status,
		"source", source,
	)
	s.appendCallback(ctx, current.ID, source, snapshot.Status, domain.CallbackOutcomeSynced, map[string]any{"from": current.Status})
	return snapshot, domain.CallbackOutcomeSynced, nil
}

func snapshotStatus(p *mollie.Payment) string {
	if p == nil {
		return ""
	}
	return p.Status
}

// fetchSnapshot reads the remote payment with the credential class the record was created
// with. The current test-mode setting is deliberately not consulted.
func (s *ReconcileService) fetchSnapshot(ctx context.Context, record *domain.Transaction) (*mollie.Payment, error) {
	if !record.HasRemoteOrder() {
		return nil, fmt.Errorf("%w: transaction %d has no remote order", ErrInvalidArguments, record.ID)
	}
	cfg, err := s.gateways.GatewayConfig(ctx, record.Component, record.PaymentArea, record.ItemID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	apiKey, err := cfg.Credential(record.TestMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	payment, err := s.provider.GetPayment(ctx, apiKey, record.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteCall, err)
	}
	return payment, nil
}

func validateSnapshot(snapshot *mollie.Payment, record *domain.Transaction) error {
	if snapshot.ID != record.OrderID {
		return &ValidationError{Field: FieldOrderID}
	}
	ref, err := DecodeMetadata(snapshot.Extra1())
	if err != nil {
		return err
	}
	switch {
	case ref.Component != record.Component:
		return &ValidationError{Field: FieldComponent}
	case ref.PaymentArea != record.PaymentArea:
		return &ValidationError{Field: FieldPaymentArea}
	case ref.ItemID != record.ItemID:
		return &ValidationError{Field: FieldItemID}
	case ref.UserID != record.UserID:
		return &ValidationError{Field: FieldUserID}
	}
	return nil
}

// transition writes the new status with a compare-and-swap on the observed one. Only the
// caller that wins the swap into paid runs the ledger save and delivery; if those fail the
// status is swapped back so the next callback retries them.
func (s *ReconcileService) transition(ctx context.Context, current *domain.Transaction, to string) error {
	won, err := s.transactions.CompareAndSwapStatus(ctx, current.ID, current.Status, to)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if !won {
		return ErrConcurrentTransition
	}
	if to != domain.TransactionStatusPaid {
		return nil
	}

	if err := s.deliverPaid(ctx, current); err != nil {
		reverted, revertErr := s.transactions.CompareAndSwapStatus(ctx, current.ID, to, current.Status)
		if revertErr != nil || !reverted {
			s.logger.ErrorContext(ctx, "revert paid status failed",
				"transaction_id", current.ID,
				"reverted", reverted,
				"error", revertErr,
			)
		}
		return err
	}
	return nil
}

func (s *ReconcileService) deliverPaid(ctx context.Context, record *domain.Transaction) error {
	payable, err := s.payables.Payable(ctx, record.Component, record.PaymentArea, record.ItemID)
	if err != nil {
		return fmt.Errorf("%w: resolve payable: %v", ErrConfiguration, err)
	}
	paymentID, err := s.ledger.RecordPayment(ctx, record.ID, domain.LedgerPayment{
		AccountID:   payable.AccountID,
		Component:   record.Component,
		PaymentArea: record.PaymentArea,
		ItemID:      record.ItemID,
		UserID:      record.UserID,
		Amount:      payable.Amount,
		Currency:    payable.Currency,
		Gateway:     domain.GatewayName,
	})
	if err != nil {
		return fmt.Errorf("save ledger payment: %w", err)
	}
	record.PaymentID = &paymentID

	if err := s.deliverer.DeliverOrder(ctx, domain.Delivery{
		Component:   record.Component,
		PaymentArea: record.PaymentArea,
		ItemID:      record.ItemID,
		PaymentID:   paymentID,
		UserID:      record.UserID,
	}); err != nil {
		return fmt.Errorf("deliver order: %w", err)
	}
	return nil
}

func (s *ReconcileService) appendCallback(ctx context.Context, transactionID uint, source, remoteStatus, outcome string, detail map[string]any) {
	if s.callbacks == nil || transactionID == 0 {
		return
	}
	entry := &domain.CallbackLog{
		TransactionID: transactionID,
		Source:        source,
		RemoteStatus:  remoteStatus,
		Outcome:       outcome,
	}
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err == nil {
			entry.Detail = datatypes.JSON(raw)
		}
	}
	if err := s.callbacks.Append(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "append callback log failed", "transaction_id", transactionID, "error", err)
	}
}
