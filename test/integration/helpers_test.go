package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/paygw-mollie/internal/database"
	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/host"
	"github.com/sandeepkv93/paygw-mollie/internal/http/handler"
	"github.com/sandeepkv93/paygw-mollie/internal/http/middleware"
	"github.com/sandeepkv93/paygw-mollie/internal/http/router"
	"github.com/sandeepkv93/paygw-mollie/internal/mollie"
	"github.com/sandeepkv93/paygw-mollie/internal/repository"
	"github.com/sandeepkv93/paygw-mollie/internal/security"
	"github.com/sandeepkv93/paygw-mollie/internal/service"
)

const testCatalog = `
accounts:
  - id: 1
    name: Main
    mollie:
      apikey: live_main
      apikeytest: test_main
      testmode: true
payables:
  - component: enrol_fee
    paymentarea: fee
    itemid: 5
    amount: "10.00"
    currency: EUR
    account: 1
    success_url: https://lms.example.com/course/view.php?id=5
  - component: enrol_fee
    paymentarea: fee
    itemid: 6
    amount: "0"
    currency: EUR
    account: 1
`

// fakeProvider is an in-memory stand-in for the payments API.
type fakeProvider struct {
	mu       sync.Mutex
	srv      *httptest.Server
	seq      int
	payments map[string]*mollie.Payment
	requests map[string]mollie.CreatePaymentRequest
	keys     []string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{payments: map[string]*mollie.Payment{}, requests: map[string]mollie.CreatePaymentRequest{}}
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	w.Header().Set("Content-Type", "application/hal+json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/payments":
		var req mollie.CreatePaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"status":422,"title":"Unprocessable Entity","detail":"bad body"}`))
			return
		}
		p.seq++
		id := fmt.Sprintf("tr_%d", p.seq)
		meta := req.Metadata
		p.payments[id] = &mollie.Payment{
			ID:          id,
			Mode:        "test",
			Status:      domain.TransactionStatusOpen,
			Amount:      req.Amount,
			Description: req.Description,
			Metadata:    &meta,
			Links:       mollie.PaymentLinks{Checkout: &mollie.Link{Href: "https://checkout.example/" + id}},
		}
		p.requests[id] = req
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(p.payments[id])
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/payments/"):
		payment, ok := p.payments[strings.TrimPrefix(r.URL.Path, "/payments/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":404,"title":"Not Found","detail":"No payment exists with token"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(payment)
	case r.Method == http.MethodGet && r.URL.Path == "/methods":
		_, _ = w.Write([]byte(`{"count":1,"_embedded":{"methods":[{"id":"ideal","description":"iDEAL","minimumAmount":{"value":"0.01","currency":"EUR"},"maximumAmount":{"value":"50000.00","currency":"EUR"},"status":"activated"}]}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *fakeProvider) setStatus(id, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments[id].Status = status
}

func (p *fakeProvider) webhookPath(t *testing.T, id string) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	return localPath(t, p.requests[id].WebhookURL)
}

func (p *fakeProvider) returnPath(t *testing.T, id string) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	return localPath(t, p.requests[id].RedirectURL)
}

func localPath(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse callback url %q: %v", raw, err)
	}
	return u.RequestURI()
}

type countingDeliverer struct {
	mu         sync.Mutex
	deliveries []domain.Delivery
}

func (d *countingDeliverer) DeliverOrder(_ context.Context, in domain.Delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, in)
	return nil
}

func (d *countingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.deliveries)
}

type serverOptions struct {
	webhookRPM int
	apiRPM     int
}

type testServer struct {
	baseURL      string
	client       *http.Client
	jwt          *security.JWTManager
	provider     *fakeProvider
	deliverer    *countingDeliverer
	transactions repository.TransactionRepository
	db           *gorm.DB
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	if opts.webhookRPM == 0 {
		opts.webhookRPM = 100
	}
	if opts.apiRPM == 0 {
		opts.apiRPM = 100
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	catalogPath := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(catalogPath, []byte(testCatalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	ts := &testServer{
		jwt:       security.NewJWTManager("lms", "paygw", "abcdefghijklmnopqrstuvwxyz123456"),
		provider:  newFakeProvider(t),
		deliverer: &countingDeliverer{},
		db:        db,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts.transactions = repository.NewTransactionRepository(db)
	callbacks := repository.NewCallbackLogRepository(db)
	catalog := host.NewCatalog(catalogPath)
	ledger := host.NewGormLedger(db)
	client := mollie.NewClient(ts.provider.srv.URL, 5*time.Second)

	srv := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + srv.Listener.Addr().String()

	payments := service.NewPaymentService(
		service.PaymentServiceConfig{PublicBaseURL: baseURL, ToolVersion: "2021052500", MethodsCacheTTL: time.Minute},
		ts.transactions, client, catalog, catalog, catalog, ledger, ts.deliverer,
		service.NewInMemoryMethodsCacheStore(), log,
	)
	reconciler := service.NewReconcileService(ts.transactions, callbacks, client, catalog, catalog, ledger, ts.deliverer, service.NewLocalRecordLocker(), log)
	callbackSvc := service.NewCallbackService(ts.transactions, reconciler, payments, log)
	cookies := security.NewCookieManager("", false, "lax", "notice-secret")

	srv.Config.Handler = router.NewRouter(router.Dependencies{
		PaymentHandler:      handler.NewPaymentHandler(payments, cookies),
		CallbackHandler:     handler.NewCallbackHandler(callbackSvc, cookies),
		JWTManager:          ts.jwt,
		Logger:              log,
		IdempotencyStore:    service.NewDBIdempotencyStore(db),
		IdempotencyTTL:      time.Hour,
		RateLimitMode:       middleware.FailOpen,
		APIRateLimitRPM:     opts.apiRPM,
		WebhookRateLimitRPM: opts.webhookRPM,
		Bypass:              middleware.RequestBypassConfig{EnableInternalProbeBypass: true},
	})
	srv.Start()
	t.Cleanup(srv.Close)

	ts.baseURL = baseURL
	ts.client = &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return ts
}

func (ts *testServer) bearer(t *testing.T, userID uint) map[string]string {
	t.Helper()
	tok, err := ts.jwt.SignAccessToken(userID, time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path string, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, ts.baseURL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(raw)
}

// send is safe to call from goroutines other than the test's own.
func (ts *testServer) send(method, path, body string, headers map[string]string) (int, error) {
	req, err := http.NewRequest(method, ts.baseURL+path, strings.NewReader(body))
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (ts *testServer) doJSON(t *testing.T, method, path string, body string, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	resp, raw := ts.do(t, method, path, body, headers)
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("decode envelope: %v body=%q", err, raw)
	}
	return resp, env
}

func (ts *testServer) webhook(t *testing.T, orderID string) int {
	t.Helper()
	resp, _ := ts.do(t, http.MethodPost, ts.provider.webhookPath(t, orderID), url.Values{"id": {orderID}}.Encode(), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	return resp.StatusCode
}

func (ts *testServer) createPayment(t *testing.T, userID uint, itemID uint) (string, envelope) {
	t.Helper()
	body := fmt.Sprintf(`{"component":"enrol_fee","paymentarea":"fee","itemid":%d,"description":"Course fee"}`, itemID)
	resp, env := ts.doJSON(t, http.MethodPost, router.APIPayments, body, ts.bearer(t, userID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create payment: status %d", resp.StatusCode)
	}
	var result service.CreatePaymentResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return result.RedirectURL, env
}
