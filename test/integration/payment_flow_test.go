package integration

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/http/router"
)

func TestPaymentLifecycleDeliversOnce(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	checkout, _ := ts.createPayment(t, 42, 5)
	if checkout != "https://checkout.example/tr_1" {
		t.Fatalf("unexpected checkout url %q", checkout)
	}
	record, err := ts.transactions.FindByOrderID(context.Background(), "tr_1")
	if err != nil {
		t.Fatalf("find record: %v", err)
	}
	if !record.TestMode || record.Status != domain.TransactionStatusInit || record.UserID != 42 {
		t.Fatalf("unexpected record %+v", record)
	}

	if code := ts.webhook(t, "tr_1"); code != http.StatusOK {
		t.Fatalf("open webhook: %d", code)
	}
	if ts.deliverer.count() != 0 {
		t.Fatal("open payment must not deliver")
	}

	ts.provider.setStatus("tr_1", domain.TransactionStatusPaid)
	for i := 0; i < 3; i++ {
		if code := ts.webhook(t, "tr_1"); code != http.StatusOK {
			t.Fatalf("paid webhook %d: %d", i, code)
		}
	}
	if got := ts.deliverer.count(); got != 1 {
		t.Fatalf("expected exactly one delivery, got %d", got)
	}
	var ledgerRows int64
	ts.db.Model(&domain.LedgerPayment{}).Count(&ledgerRows)
	if ledgerRows != 1 {
		t.Fatalf("expected one ledger row, got %d", ledgerRows)
	}

	resp, _ := ts.do(t, http.MethodGet, ts.provider.returnPath(t, "tr_1"), "", ts.bearer(t, 42))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected return redirect, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://lms.example.com/course/view.php?id=5" {
		t.Fatalf("unexpected return location %q", loc)
	}
	if ts.deliverer.count() != 1 {
		t.Fatal("return after paid must not deliver again")
	}
	for _, key := range ts.provider.keys {
		if key != "test_main" {
			t.Fatalf("expected test credential on every call, saw %q", key)
		}
	}
}

func TestConcurrentReturnAndWebhookDeliverOnce(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ts.createPayment(t, 7, 5)
	ts.provider.setStatus("tr_1", domain.TransactionStatusPaid)

	returnPath := ts.provider.returnPath(t, "tr_1")
	webhookPath := ts.provider.webhookPath(t, "tr_1")
	headers := ts.bearer(t, 7)
	form := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := ts.send(http.MethodPost, webhookPath, "id=tr_1", form); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := ts.send(http.MethodGet, returnPath, "", headers); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("request failed: %v", err)
	}

	if got := ts.deliverer.count(); got != 1 {
		t.Fatalf("expected exactly one delivery, got %d", got)
	}
}

func TestWebhookRejectsTamperedParameters(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ts.createPayment(t, 7, 5)
	ts.provider.setStatus("tr_1", domain.TransactionStatusPaid)

	path := strings.Replace(ts.provider.webhookPath(t, "tr_1"), "itemid=5", "itemid=6", 1)
	resp, body := ts.do(t, http.MethodPost, path, "id=tr_1", map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	if resp.StatusCode != http.StatusNotAcceptable || body != "" {
		t.Fatalf("expected bare 406, got %d body=%q", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodPost, ts.provider.webhookPath(t, "tr_1"), "id=tr_999", map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	if resp.StatusCode != http.StatusNotAcceptable || body != "" {
		t.Fatalf("expected bare 406 for unknown order, got %d body=%q", resp.StatusCode, body)
	}
	if ts.deliverer.count() != 0 {
		t.Fatal("rejected webhooks must not deliver")
	}
}

func TestReturnForPendingPaymentShowsNotice(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ts.createPayment(t, 7, 5)
	ts.provider.setStatus("tr_1", domain.TransactionStatusPending)

	resp, _ := ts.do(t, http.MethodGet, ts.provider.returnPath(t, "tr_1"), "", ts.bearer(t, 7))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != ts.baseURL+"/" {
		t.Fatalf("expected site root, got %q", loc)
	}
	found := false
	for _, c := range resp.Cookies() {
		if c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected notice cookie")
	}
}

func TestZeroAmountSettledWithoutProvider(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	redirect, _ := ts.createPayment(t, 7, 6)
	if redirect != ts.baseURL+"/" {
		t.Fatalf("expected site root redirect, got %q", redirect)
	}
	if ts.deliverer.count() != 1 {
		t.Fatalf("expected zero payment delivery, got %d", ts.deliverer.count())
	}
	if len(ts.provider.keys) != 0 {
		t.Fatal("zero payment must not call the provider")
	}
}

func TestMethodsAndPayPage(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	resp, env := ts.doJSON(t, http.MethodGet, router.APIPayments+"/methods?component=enrol_fee&paymentarea=fee&itemid=5", "", ts.bearer(t, 7))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(env.Data), `"id":"ideal"`) {
		t.Fatalf("unexpected methods response %d %s", resp.StatusCode, env.Data)
	}
	resp, env = ts.doJSON(t, http.MethodGet, router.PayPath+"?component=enrol_fee&paymentarea=fee&itemid=5&description=Fee", "", ts.bearer(t, 7))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(env.Data), `"amount":"10.00"`) {
		t.Fatalf("unexpected pay page response %d %s", resp.StatusCode, env.Data)
	}
	if calls := len(ts.provider.keys); calls != 1 {
		t.Fatalf("expected methods to be cached, saw %d provider calls", calls)
	}
}
