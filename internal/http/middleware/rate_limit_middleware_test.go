package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sandeepkv93/paygw-mollie/internal/security"
)

type mockLimiter struct {
	decision Decision
	err      error
}

func (m mockLimiter) Allow(context.Context, string, RateLimitPolicy) (Decision, error) {
	return m.decision, m.err
}

type recordingLimiter struct {
	lastKey string
	calls   int
}

func (r *recordingLimiter) Allow(_ context.Context, key string, _ RateLimitPolicy) (Decision, error) {
	r.lastKey = key
	r.calls++
	return Decision{Allowed: true, Remaining: 1}, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, method, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.0.0.1:1111"
	if mutate != nil {
		mutate(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestDistributedRateLimiterFailOpenOnBackendError(t *testing.T) {
	rl := NewDistributedRateLimiter(mockLimiter{err: errors.New("redis down")}, PerMinutePolicy(10), FailOpen, "webhook")
	rr := serve(rl.Middleware()(okHandler()), http.MethodPost, "/payment/gateway/mollie/webhook", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected fail-open to allow request, got %d", rr.Code)
	}
}

func TestDistributedRateLimiterFailClosedOnBackendError(t *testing.T) {
	rl := NewDistributedRateLimiter(mockLimiter{err: errors.New("redis down")}, PerMinutePolicy(10), FailClosed, "api")
	rr := serve(rl.Middleware()(okHandler()), http.MethodPost, "/api/v1/payments", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected fail-closed to reject request, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected window-sized Retry-After, got %q", got)
	}
}

func TestDistributedRateLimiterDeniedSetsRetryAfter(t *testing.T) {
	rl := NewDistributedRateLimiter(
		mockLimiter{decision: Decision{Allowed: false, RetryAfter: 5 * time.Second}},
		PerMinutePolicy(1),
		FailClosed,
		"api",
	)
	rr := serve(rl.Middleware()(okHandler()), http.MethodGet, "/x", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "5" {
		t.Fatalf("expected Retry-After 5, got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Fatalf("expected limit header, got %q", got)
	}
}

func TestLocalRateLimiterEnforcesSustainedLimit(t *testing.T) {
	rl := NewRateLimiter(PerMinutePolicy(2))
	h := rl.Middleware()(okHandler())
	for i := 0; i < 2; i++ {
		if rr := serve(h, http.MethodGet, "/x", nil); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
	if rr := serve(h, http.MethodGet, "/x", nil); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected third request limited, got %d", rr.Code)
	}
	other := serve(h, http.MethodGet, "/x", func(r *http.Request) { r.RemoteAddr = "10.0.0.2:1111" })
	if other.Code != http.StatusOK {
		t.Fatalf("other clients must have their own window, got %d", other.Code)
	}
}

func TestLocalFixedWindowLimiterResetsAfterWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocalFixedWindowLimiter().(*localFixedWindowLimiter)
	l.now = func() time.Time { return now }
	policy := RateLimitPolicy{SustainedLimit: 1, SustainedWindow: time.Second}

	if d, _ := l.Allow(context.Background(), "k", policy); !d.Allowed {
		t.Fatal("expected first request allowed")
	}
	d, _ := l.Allow(context.Background(), "k", policy)
	if d.Allowed || d.RetryAfter != time.Second {
		t.Fatalf("expected denial with full retry, got %+v", d)
	}
	now = now.Add(time.Second)
	if d, _ := l.Allow(context.Background(), "k", policy); !d.Allowed {
		t.Fatalf("expected new window to allow, got %+v", d)
	}
}

func TestRateLimiterBypassSkipsLimiter(t *testing.T) {
	limiter := &recordingLimiter{}
	eval := NewRequestBypassEvaluator(RequestBypassConfig{EnableInternalProbeBypass: true}, nil)
	rl := NewDistributedRateLimiter(limiter, PerMinutePolicy(1), FailClosed, "api").WithBypass(eval)
	h := rl.Middleware()(okHandler())

	if rr := serve(h, http.MethodGet, "/health/ready", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected probe to pass, got %d", rr.Code)
	}
	if limiter.calls != 0 {
		t.Fatalf("probe should not consult limiter, calls=%d", limiter.calls)
	}
	serve(h, http.MethodGet, "/api/v1/payments/methods", nil)
	if limiter.calls != 1 {
		t.Fatalf("expected limiter call for api path, calls=%d", limiter.calls)
	}
}

func TestSubjectOrIPKeyFuncUsesSubjectWhenAccessTokenValid(t *testing.T) {
	jwtMgr := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	token, err := jwtMgr.SignAccessToken(42, 15*time.Minute)
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}

	limiter := &recordingLimiter{}
	rl := NewDistributedRateLimiterWithKey(limiter, PerMinutePolicy(10), FailClosed, "api", SubjectOrIPKeyFunc(jwtMgr))
	rr := serve(rl.Middleware()(okHandler()), http.MethodGet, "/x", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected request to pass, got %d", rr.Code)
	}
	if limiter.lastKey != "api:sub:42" {
		t.Fatalf("expected subject key, got %q", limiter.lastKey)
	}
}

func TestSubjectOrIPKeyFuncReadsAccessCookie(t *testing.T) {
	jwtMgr := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	token, err := jwtMgr.SignAccessToken(9, time.Minute)
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	limiter := &recordingLimiter{}
	rl := NewDistributedRateLimiterWithKey(limiter, PerMinutePolicy(10), FailClosed, "api", SubjectOrIPKeyFunc(jwtMgr))
	serve(rl.Middleware()(okHandler()), http.MethodGet, "/x", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: security.AccessTokenCookie, Value: token})
	})
	if limiter.lastKey != "api:sub:9" {
		t.Fatalf("expected cookie subject key, got %q", limiter.lastKey)
	}
}

func TestSubjectOrIPKeyFuncFallsBackToIPWhenTokenInvalid(t *testing.T) {
	jwtMgr := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	limiter := &recordingLimiter{}
	rl := NewDistributedRateLimiterWithKey(limiter, PerMinutePolicy(10), FailClosed, "api", SubjectOrIPKeyFunc(jwtMgr))
	rr := serve(rl.Middleware()(okHandler()), http.MethodGet, "/x", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-token")
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected request to pass, got %d", rr.Code)
	}
	if limiter.lastKey != "api:10.0.0.1" {
		t.Fatalf("expected IP key fallback, got %q", limiter.lastKey)
	}
}
