package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sandeepkv93/paygw-mollie/internal/http/handler"
	"github.com/sandeepkv93/paygw-mollie/internal/http/middleware"
	"github.com/sandeepkv93/paygw-mollie/internal/http/response"
	"github.com/sandeepkv93/paygw-mollie/internal/security"
	"github.com/sandeepkv93/paygw-mollie/internal/service"
)

const (
	PayPath     = "/payment/gateway/mollie/pay"
	APIPayments = "/api/v1/payments"
)

type Dependencies struct {
	PaymentHandler  *handler.PaymentHandler
	CallbackHandler *handler.CallbackHandler
	JWTManager      *security.JWTManager
	Logger          *slog.Logger

	IdempotencyStore service.IdempotencyStore
	IdempotencyTTL   time.Duration

	// RateLimitBackend is shared by all limiters; nil keeps counters in process.
	RateLimitBackend    middleware.Limiter
	RateLimitMode       middleware.FailureMode
	APIRateLimitRPM     int
	WebhookRateLimitRPM int
	Bypass              middleware.RequestBypassConfig

	Readiness func(ctx context.Context) error
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger(dep.Logger))
	r.Use(chimiddleware.Recoverer)

	bypass := middleware.NewRequestBypassEvaluator(dep.Bypass, dep.JWTManager)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := dep.Readiness(ctx); err != nil {
				response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies not ready", nil)
				return
			}
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	webhookLimiter := middleware.NewDistributedRateLimiter(
		dep.RateLimitBackend,
		middleware.PerMinutePolicy(dep.WebhookRateLimitRPM),
		dep.RateLimitMode,
		"webhook",
	).WithBypass(bypass)
	r.Group(func(r chi.Router) {
		r.Use(webhookLimiter.Middleware())
		r.Post(service.WebhookPath, dep.CallbackHandler.Webhook)
		r.Get(service.WebhookPath, dep.CallbackHandler.Webhook)
	})

	apiLimiter := middleware.NewDistributedRateLimiterWithKey(
		dep.RateLimitBackend,
		middleware.PerMinutePolicy(dep.APIRateLimitRPM),
		dep.RateLimitMode,
		"api",
		middleware.SubjectOrIPKeyFunc(dep.JWTManager),
	).WithBypass(bypass)
	r.Group(func(r chi.Router) {
		r.Use(apiLimiter.Middleware())
		r.Use(middleware.AuthMiddleware(dep.JWTManager))

		r.Get(PayPath, dep.PaymentHandler.PayPage)
		r.Get(service.ReturnPath, dep.CallbackHandler.Return)
		r.Get(APIPayments+"/methods", dep.PaymentHandler.Methods)
		r.With(middleware.IdempotencyMiddleware(dep.IdempotencyStore, "create_payment", dep.IdempotencyTTL)).
			Post(APIPayments, dep.PaymentHandler.CreatePayment)
	})

	return r
}
