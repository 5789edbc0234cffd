package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/mollie"
	"github.com/sandeepkv93/paygw-mollie/internal/repository"
)

type memTransactionRepository struct {
	mu       sync.Mutex
	nextID   uint
	records  map[uint]domain.Transaction
	casCalls int32
	writes   int32
}

func newMemTransactionRepository() *memTransactionRepository {
	return &memTransactionRepository{records: map[uint]domain.Transaction{}}
}

func (r *memTransactionRepository) Create(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	tx.ID = r.nextID
	if tx.OrderID == "" {
		tx.OrderID = domain.UnsetOrderID
	}
	if tx.Status == "" {
		tx.Status = domain.TransactionStatusInit
	}
	r.records[tx.ID] = *tx
	return nil
}

func (r *memTransactionRepository) get(id uint) (domain.Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.records[id]
	return tx, ok
}

func (r *memTransactionRepository) FindByID(_ context.Context, id uint) (*domain.Transaction, error) {
	tx, ok := r.get(id)
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	return &tx, nil
}

func (r *memTransactionRepository) FindByOrderID(_ context.Context, orderID string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if orderID == "" || orderID == domain.UnsetOrderID {
		return nil, repository.ErrTransactionNotFound
	}
	for _, tx := range r.records {
		if tx.OrderID == orderID {
			out := tx
			return &out, nil
		}
	}
	return nil, repository.ErrTransactionNotFound
}

func (r *memTransactionRepository) FindByIDAndOrderID(ctx context.Context, id uint, orderID string) (*domain.Transaction, error) {
	tx, err := r.FindByID(ctx, id)
	if err != nil || orderID == domain.UnsetOrderID || tx.OrderID != orderID {
		return nil, repository.ErrTransactionNotFound
	}
	return tx, nil
}

func (r *memTransactionRepository) SetOrderID(_ context.Context, id uint, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.records[id]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	if tx.OrderID != domain.UnsetOrderID {
		return repository.ErrOrderIDAlreadySet
	}
	tx.OrderID = orderID
	r.records[id] = tx
	atomic.AddInt32(&r.writes, 1)
	return nil
}

func (r *memTransactionRepository) CompareAndSwapStatus(_ context.Context, id uint, from, to string) (bool, error) {
	atomic.AddInt32(&r.casCalls, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.records[id]
	if !ok || tx.Status != from {
		return false, nil
	}
	tx.Status = to
	r.records[id] = tx
	atomic.AddInt32(&r.writes, 1)
	return true, nil
}

func (r *memTransactionRepository) ListPaged(context.Context, repository.TransactionListQuery) (repository.PageResult[domain.Transaction], error) {
	return repository.PageResult[domain.Transaction]{}, errors.New("not implemented")
}

type stubProvider struct {
	mu          sync.Mutex
	createFn    func(apiKey string, req mollie.CreatePaymentRequest) (*mollie.Payment, error)
	getFn       func(apiKey, id string) (*mollie.Payment, error)
	listFn      func(apiKey string) ([]mollie.Method, error)
	createCalls int
	listCalls   int
	keysUsed    []string
	lastCreate  mollie.CreatePaymentRequest
}

func (p *stubProvider) CreatePayment(_ context.Context, apiKey string, req mollie.CreatePaymentRequest) (*mollie.Payment, error) {
	p.mu.Lock()
	p.createCalls++
	p.keysUsed = append(p.keysUsed, apiKey)
	p.lastCreate = req
	p.mu.Unlock()
	if p.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return p.createFn(apiKey, req)
}

func (p *stubProvider) GetPayment(_ context.Context, apiKey, id string) (*mollie.Payment, error) {
	p.mu.Lock()
	p.keysUsed = append(p.keysUsed, apiKey)
	p.mu.Unlock()
	if p.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return p.getFn(apiKey, id)
}

func (p *stubProvider) ListActiveMethods(_ context.Context, apiKey string) ([]mollie.Method, error) {
	p.mu.Lock()
	p.listCalls++
	p.keysUsed = append(p.keysUsed, apiKey)
	p.mu.Unlock()
	if p.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return p.listFn(apiKey)
}

type stubHost struct {
	mu         sync.Mutex
	gateway    domain.GatewayConfig
	gatewayErr error
	payable    domain.Payable
	payableErr error
	successURL string
}

func (h *stubHost) GatewayConfig(context.Context, string, string, uint) (domain.GatewayConfig, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gateway, h.gatewayErr
}

func (h *stubHost) setTestMode(on bool) {
	h.mu.Lock()
	h.gateway.TestMode = on
	h.mu.Unlock()
}

func (h *stubHost) Payable(context.Context, string, string, uint) (domain.Payable, error) {
	return h.payable, h.payableErr
}

func (h *stubHost) SuccessURL(context.Context, string, string, uint) (string, error) {
	return h.successURL, nil
}

// stubLedger links the payment into repo the way the gorm ledger does it in one database
// transaction: a failed call leaves neither a ledger row nor a payment id behind.
type stubLedger struct {
	repo         *memTransactionRepository
	saves        int32
	err          error
	failLinkNext int32
	nextID       uint32
}

func (l *stubLedger) RecordPayment(_ context.Context, transactionID uint, _ domain.LedgerPayment) (uint, error) {
	if l.err != nil {
		return 0, l.err
	}
	l.repo.mu.Lock()
	defer l.repo.mu.Unlock()
	tx, ok := l.repo.records[transactionID]
	if !ok {
		return 0, repository.ErrTransactionNotFound
	}
	if tx.PaymentID != nil {
		return *tx.PaymentID, nil
	}
	if l.failLinkNext > 0 {
		l.failLinkNext--
		return 0, errors.New("link ledger payment: connection reset")
	}
	atomic.AddInt32(&l.saves, 1)
	id := uint(atomic.AddUint32(&l.nextID, 1)) + 100
	tx.PaymentID = &id
	l.repo.records[transactionID] = tx
	atomic.AddInt32(&l.repo.writes, 1)
	return id, nil
}

type stubDeliverer struct {
	mu        sync.Mutex
	delivered []domain.Delivery
	failNext  int
	attempts  int
}

func (d *stubDeliverer) DeliverOrder(_ context.Context, in domain.Delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.failNext > 0 {
		d.failNext--
		return errors.New("host delivery unavailable")
	}
	d.delivered = append(d.delivered, in)
	return nil
}

func (d *stubDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered)
}

type stubCallbackLog struct {
	mu      sync.Mutex
	entries []domain.CallbackLog
}

func (c *stubCallbackLog) Append(_ context.Context, entry *domain.CallbackLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, *entry)
	return nil
}

func (c *stubCallbackLog) ListByTransaction(_ context.Context, id uint) ([]domain.CallbackLog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.CallbackLog
	for _, e := range c.entries {
		if e.TransactionID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *stubCallbackLog) outcomes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Outcome)
	}
	return out
}

// noopLocker leaves serialisation to the compare-and-swap alone.
type noopLocker struct{}

func (noopLocker) Lock(context.Context, uint) (func(), error) { return func() {}, nil }

func newTestHost() *stubHost {
	return &stubHost{
		gateway: domain.GatewayConfig{APIKey: "live_key", APIKeyTest: "test_key", TestMode: true},
		payable: domain.Payable{AccountID: 1, Amount: decimal.RequireFromString("10.00"), Currency: "EUR"},
	}
}

func paidSnapshot(orderID, extra1 string) *mollie.Payment {
	return &mollie.Payment{ID: orderID, Status: mollie.StatusPaid, Metadata: &mollie.Metadata{Extra1: extra1}}
}
