package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/mollie"
	"github.com/sandeepkv93/paygw-mollie/internal/observability"
	"github.com/sandeepkv93/paygw-mollie/internal/repository"
)

const (
	ReturnPath  = "/payment/gateway/mollie/return"
	WebhookPath = "/payment/gateway/mollie/webhook"

	MessageInternalError = "An internal error has occurred. Please contact the system administrator."
)

var ErrInvalidInput = errors.New("invalid payment request")

type PaymentServiceConfig struct {
	PublicBaseURL   string
	ToolVersion     string
	MethodsCacheTTL time.Duration
}

type CreatePaymentInput struct {
	UserID          uint
	Component       string
	PaymentArea     string
	ItemID          uint
	Description     string
	PaymentMethodID string
	// BankID is accepted for compatibility and not used.
	BankID *int
}

type CreatePaymentResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type MethodView struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	MinAmount   *mollie.Amount `json:"minamount"`
	MaxAmount   *mollie.Amount `json:"maxamount"`
	Status      string         `json:"status"`
	Enabled     bool           `json:"enabled"`
	Images      mollie.Image   `json:"images"`
	HasBanks    bool           `json:"hasbanks"`
}

type PayPage struct {
	Component        string       `json:"component"`
	PaymentArea      string       `json:"paymentarea"`
	ItemID           uint         `json:"itemid"`
	Description      string       `json:"description"`
	Amount           string       `json:"amount"`
	Currency         string       `json:"currency"`
	Methods          []MethodView `json:"methods"`
	NoPaymentMethods bool         `json:"nopaymentmethods"`
}

// PaymentService starts payments and serves the data the payment page needs.
type PaymentService struct {
	cfg          PaymentServiceConfig
	transactions repository.TransactionRepository
	provider     PaymentProvider
	gateways     GatewayConfigResolver
	payables     PayableResolver
	successURLs  SuccessURLResolver
	ledger       Ledger
	deliverer    Deliverer
	methodsCache MethodsCacheStore
	logger       *slog.Logger
}

func NewPaymentService(
	cfg PaymentServiceConfig,
	transactions repository.TransactionRepository,
	provider PaymentProvider,
	gateways GatewayConfigResolver,
	payables PayableResolver,
	successURLs SuccessURLResolver,
	ledger Ledger,
	deliverer Deliverer,
	methodsCache MethodsCacheStore,
	logger *slog.Logger,
) *PaymentService {
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if methodsCache == nil {
		methodsCache = NewNoopMethodsCacheStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentService{
		cfg:          cfg,
		transactions: transactions,
		provider:     provider,
		gateways:     gateways,
		payables:     payables,
		successURLs:  successURLs,
		ledger:       ledger,
		deliverer:    deliverer,
		methodsCache: methodsCache,
		logger:       logger,
	}
}

// CreatePayment never returns an error: failures become a result with Success false and a
// generic message, and the cause is logged.
func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) CreatePaymentResult {
	redirectURL, err := s.Initiate(ctx, in)
	if err != nil {
		s.logger.ErrorContext(ctx, "payment initiation failed",
			"component", in.Component,
			"payment_area", in.PaymentArea,
			"item_id", in.ItemID,
			"user_id", in.UserID,
			"error", err,
		)
		return CreatePaymentResult{Success: false, Message: MessageInternalError}
	}
	return CreatePaymentResult{Success: true, RedirectURL: redirectURL}
}

// Initiate creates the local record and the remote payment and returns the checkout URL.
// Zero amounts are settled locally and return the success URL instead.
func (s *PaymentService) Initiate(ctx context.Context, in CreatePaymentInput) (string, error) {
	ctx, span := observability.StartSpan(ctx, "payment.initiate",
		attribute.String("component", in.Component),
		attribute.String("payment_area", in.PaymentArea),
		attribute.Int64("item_id", int64(in.ItemID)),
	)
	defer span.End()

	if err := validateCreateInput(in); err != nil {
		return "", err
	}

	cfg, payable, err := s.resolve(ctx, in.Component, in.PaymentArea, in.ItemID)
	if err != nil {
		return "", err
	}

	if payable.Amount.IsZero() && cfg.InternalZeroPayments() {
		return s.settleZeroPayment(ctx, in, payable)
	}

	apiKey, err := cfg.Credential(cfg.TestMode)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	record := &domain.Transaction{
		UserID:      in.UserID,
		Component:   in.Component,
		PaymentArea: in.PaymentArea,
		ItemID:      in.ItemID,
		OrderID:     domain.UnsetOrderID,
		Status:      domain.TransactionStatusInit,
		TestMode:    cfg.TestMode,
	}
	if err := s.transactions.Create(ctx, record); err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}

	extra1 := EncodeMetadata(ItemRef{
		Component:   in.Component,
		PaymentArea: in.PaymentArea,
		ItemID:      in.ItemID,
		UserID:      in.UserID,
	})
	req := mollie.CreatePaymentRequest{
		Amount:      mollie.NewAmount(payable.Amount, payable.Currency),
		Description: in.Description,
		RedirectURL: s.callbackURL(ReturnPath, record),
		WebhookURL:  s.callbackURL(WebhookPath, record),
		Metadata: mollie.Metadata{
			Tool:   ToolTag(s.cfg.ToolVersion),
			Extra1: extra1,
		},
		Method: strings.TrimSpace(in.PaymentMethodID),
	}
	payment, err := s.provider.CreatePayment(ctx, apiKey, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteCall, err)
	}
	if err := s.transactions.SetOrderID(ctx, record.ID, payment.ID); err != nil {
		return "", fmt.Errorf("store order id: %w", err)
	}

	s.logger.InfoContext(ctx, "payment initiated",
		"transaction_id", record.ID,
		"order_id", payment.ID,
		"test_mode", record.TestMode,
	)
	return payment.CheckoutURL(), nil
}

func validateCreateInput(in CreatePaymentInput) error {
	switch {
	case in.UserID == 0:
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	case strings.TrimSpace(in.Component) == "":
		return fmt.Errorf("%w: component is required", ErrInvalidInput)
	case strings.TrimSpace(in.PaymentArea) == "":
		return fmt.Errorf("%w: paymentarea is required", ErrInvalidInput)
	case strings.Contains(in.Component, metadataSeparator) || strings.Contains(in.PaymentArea, metadataSeparator):
		return fmt.Errorf("%w: component and paymentarea must not contain %q", ErrInvalidInput, metadataSeparator)
	}
	return nil
}

func (s *PaymentService) resolve(ctx context.Context, component, paymentArea string, itemID uint) (domain.GatewayConfig, domain.Payable, error) {
	cfg, err := s.gateways.GatewayConfig(ctx, component, paymentArea, itemID)
	if err != nil {
		return domain.GatewayConfig{}, domain.Payable{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return domain.GatewayConfig{}, domain.Payable{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	payable, err := s.payables.Payable(ctx, component, paymentArea, itemID)
	if err != nil {
		return domain.GatewayConfig{}, domain.Payable{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if !domain.IsSupportedCurrency(payable.Currency) {
		return domain.GatewayConfig{}, domain.Payable{}, fmt.Errorf("%w: %w %q", ErrConfiguration, ErrUnsupportedCurrency, payable.Currency)
	}
	return cfg, payable, nil
}

// settleZeroPayment records and delivers a free item without involving the provider.
func (s *PaymentService) settleZeroPayment(ctx context.Context, in CreatePaymentInput, payable domain.Payable) (string, error) {
	record := &domain.Transaction{
		UserID:      in.UserID,
		Component:   in.Component,
		PaymentArea: in.PaymentArea,
		ItemID:      in.ItemID,
		OrderID:     domain.UnsetOrderID,
		Status:      domain.TransactionStatusZeroPayment,
	}
	if err := s.transactions.Create(ctx, record); err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}
	paymentID, err := s.ledger.RecordPayment(ctx, record.ID, domain.LedgerPayment{
		AccountID:   payable.AccountID,
		Component:   in.Component,
		PaymentArea: in.PaymentArea,
		ItemID:      in.ItemID,
		UserID:      in.UserID,
		Amount:      payable.Amount,
		Currency:    payable.Currency,
		Gateway:     domain.GatewayName,
	})
	if err != nil {
		return "", fmt.Errorf("save ledger payment: %w", err)
	}
	if err := s.deliverer.DeliverOrder(ctx, domain.Delivery{
		Component:   in.Component,
		PaymentArea: in.PaymentArea,
		ItemID:      in.ItemID,
		PaymentID:   paymentID,
		UserID:      in.UserID,
	}); err != nil {
		return "", fmt.Errorf("deliver order: %w", err)
	}
	s.logger.InfoContext(ctx, "zero payment settled",
		"transaction_id", record.ID,
		"payment_id", paymentID,
	)
	return s.SuccessURL(ctx, in.Component, in.PaymentArea, in.ItemID), nil
}

func (s *PaymentService) callbackURL(path string, record *domain.Transaction) string {
	q := url.Values{}
	q.Set("component", record.Component)
	q.Set("paymentarea", record.PaymentArea)
	q.Set("itemid", strconv.FormatUint(uint64(record.ItemID), 10))
	q.Set("internalid", strconv.FormatUint(uint64(record.ID), 10))
	return s.cfg.PublicBaseURL + path + "?" + q.Encode()
}

// SuccessURL returns the host's landing page for the item, or the site root.
func (s *PaymentService) SuccessURL(ctx context.Context, component, paymentArea string, itemID uint) string {
	if s.successURLs != nil {
		u, err := s.successURLs.SuccessURL(ctx, component, paymentArea, itemID)
		if err != nil {
			s.logger.WarnContext(ctx, "resolve success url failed", "component", component, "item_id", itemID, "error", err)
		} else if u != "" {
			return u
		}
	}
	return s.SiteRoot()
}

func (s *PaymentService) SiteRoot() string {
	return s.cfg.PublicBaseURL + "/"
}

// GetMethods lists the provider's active methods for the item's account and marks which
// accept the item's amount. The current test-mode setting picks the credential since no
// transaction exists yet.
func (s *PaymentService) GetMethods(ctx context.Context, component, paymentArea string, itemID uint) ([]MethodView, error) {
	cfg, payable, err := s.resolve(ctx, component, paymentArea, itemID)
	if err != nil {
		return nil, err
	}
	return s.methodsFor(ctx, cfg, payable)
}

func (s *PaymentService) methodsFor(ctx context.Context, cfg domain.GatewayConfig, payable domain.Payable) ([]MethodView, error) {
	apiKey, err := cfg.Credential(cfg.TestMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	methods, err := s.activeMethods(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	out := make([]MethodView, 0, len(methods))
	for _, m := range methods {
		out = append(out, MethodView{
			ID:          m.ID,
			Description: m.Description,
			MinAmount:   m.MinimumAmount,
			MaxAmount:   m.MaximumAmount,
			Status:      m.Status,
			Enabled:     m.Accepts(payable.Amount),
			Images:      m.Image,
		})
	}
	return out, nil
}

func (s *PaymentService) activeMethods(ctx context.Context, apiKey string) ([]mollie.Method, error) {
	key := methodsCacheKey(apiKey)
	if raw, ok, err := s.methodsCache.Get(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "methods cache read failed", "error", err)
	} else if ok {
		var cached []mollie.Method
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	methods, err := s.provider.ListActiveMethods(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteCall, err)
	}
	if s.cfg.MethodsCacheTTL > 0 {
		if raw, err := json.Marshal(methods); err == nil {
			if err := s.methodsCache.Set(ctx, key, raw, s.cfg.MethodsCacheTTL); err != nil {
				s.logger.WarnContext(ctx, "methods cache write failed", "error", err)
			}
		}
	}
	return methods, nil
}

// PayPageData is what the method selection page renders.
func (s *PaymentService) PayPageData(ctx context.Context, component, paymentArea string, itemID uint, description string) (*PayPage, error) {
	cfg, payable, err := s.resolve(ctx, component, paymentArea, itemID)
	if err != nil {
		return nil, err
	}
	methods, err := s.methodsFor(ctx, cfg, payable)
	if err != nil {
		return nil, err
	}
	return &PayPage{
		Component:        component,
		PaymentArea:      paymentArea,
		ItemID:           itemID,
		Description:      description,
		Amount:           payable.Amount.StringFixed(2),
		Currency:         payable.Currency,
		Methods:          methods,
		NoPaymentMethods: len(methods) == 0,
	}, nil
}
