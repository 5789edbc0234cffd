package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/paygw-mollie/internal/app"
	"github.com/sandeepkv93/paygw-mollie/internal/config"
	"github.com/sandeepkv93/paygw-mollie/internal/database"
	"github.com/sandeepkv93/paygw-mollie/internal/host"
	"github.com/sandeepkv93/paygw-mollie/internal/http/handler"
	"github.com/sandeepkv93/paygw-mollie/internal/http/middleware"
	"github.com/sandeepkv93/paygw-mollie/internal/http/router"
	"github.com/sandeepkv93/paygw-mollie/internal/mollie"
	"github.com/sandeepkv93/paygw-mollie/internal/observability"
	"github.com/sandeepkv93/paygw-mollie/internal/repository"
	"github.com/sandeepkv93/paygw-mollie/internal/security"
	"github.com/sandeepkv93/paygw-mollie/internal/service"
)

var ConfigSet = wire.NewSet(provideConfig)

var ObservabilitySet = wire.NewSet(provideLogger)

var RuntimeInfraSet = wire.NewSet(
	provideOpenDB,
	provideRedisClient,
	provideCatalog,
	host.NewGormLedger,
	provideDeliverer,
	provideMollieClient,
	provideRecordLocker,
	provideIdempotencyStore,
	provideMethodsCache,
	provideRateLimitBackend,
	wire.Bind(new(service.Ledger), new(*host.GormLedger)),
	wire.Bind(new(service.PaymentProvider), new(*mollie.Client)),
	wire.Bind(new(service.GatewayConfigResolver), new(*host.Catalog)),
	wire.Bind(new(service.PayableResolver), new(*host.Catalog)),
	wire.Bind(new(service.SuccessURLResolver), new(*host.Catalog)),
)

var RepositorySet = wire.NewSet(
	repository.NewTransactionRepository,
	repository.NewCallbackLogRepository,
)

var SecuritySet = wire.NewSet(provideJWTManager, provideCookieManager)

var ServiceSet = wire.NewSet(
	providePaymentServiceConfig,
	service.NewReconcileService,
	service.NewPaymentService,
	service.NewCallbackService,
)

var HTTPSet = wire.NewSet(
	handler.NewPaymentHandler,
	handler.NewCallbackHandler,
	wire.Bind(new(handler.PaymentServiceInterface), new(*service.PaymentService)),
	wire.Bind(new(handler.CallbackServiceInterface), new(*service.CallbackService)),
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

var OperatorSet = wire.NewSet(
	service.NewDBIdempotencyStore,
	wire.Struct(new(Operator), "*"),
)

// Operator bundles what the command line tools need to inspect and repair records
// outside the HTTP flow.
type Operator struct {
	Config       *config.Config
	Transactions repository.TransactionRepository
	Reconciler   *service.ReconcileService
	Payments     *service.PaymentService
	Idempotency  *service.DBIdempotencyStore
	MethodsCache service.MethodsCacheStore
	Ledger       *host.GormLedger
}

type MigrationRunner struct {
	db *gorm.DB
}

func NewMigrationRunner(db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

func (m *MigrationRunner) Run() error {
	return database.Migrate(m.db)
}

func provideConfig() (*config.Config, error) {
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

// provideRedisClient returns nil when Redis is disabled; every consumer falls back to its
// in-process or database variant.
func provideRedisClient(cfg *config.Config) (redis.UniversalClient, func(), error) {
	if !cfg.RedisEnabled {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func provideCatalog(cfg *config.Config) *host.Catalog {
	return host.NewCatalog(cfg.CatalogFile)
}

func provideDeliverer(cfg *config.Config, logger *slog.Logger) (service.Deliverer, func(), error) {
	if !cfg.KafkaEnabled {
		return host.NewLogDeliverer(logger), func() {}, nil
	}
	producer, err := host.NewSyncProducer(cfg.KafkaBrokers)
	if err != nil {
		return nil, nil, err
	}
	d := host.NewKafkaDeliverer(producer, cfg.KafkaDeliveryTopic)
	return d, func() { _ = d.Close() }, nil
}

func provideMollieClient(cfg *config.Config) *mollie.Client {
	return mollie.NewClient(cfg.MollieAPIBaseURL, cfg.MollieHTTPTimeout)
}

func provideRecordLocker(cfg *config.Config, client redis.UniversalClient) service.RecordLocker {
	if client == nil {
		return service.NewLocalRecordLocker()
	}
	return service.NewRedisRecordLocker(client, cfg.RedisKeyPrefix+":lock", cfg.ReconcileLockTTL)
}

func provideIdempotencyStore(cfg *config.Config, db *gorm.DB, client redis.UniversalClient) service.IdempotencyStore {
	if !cfg.IdempotencyEnabled {
		return nil
	}
	if cfg.IdempotencyRedisEnabled && client != nil {
		return service.NewRedisIdempotencyStore(client, cfg.RedisKeyPrefix+":idem")
	}
	return service.NewDBIdempotencyStore(db)
}

func provideMethodsCache(cfg *config.Config, client redis.UniversalClient) service.MethodsCacheStore {
	switch {
	case cfg.MethodsCacheTTL <= 0:
		return service.NewNoopMethodsCacheStore()
	case client != nil:
		return service.NewRedisMethodsCacheStore(client, cfg.RedisKeyPrefix+":methods")
	default:
		return service.NewInMemoryMethodsCacheStore()
	}
}

// provideRateLimitBackend returns nil without Redis so each limiter keeps its own counters.
func provideRateLimitBackend(cfg *config.Config, client redis.UniversalClient) middleware.Limiter {
	if client == nil {
		return nil
	}
	return middleware.NewRedisFixedWindowLimiter(client, cfg.RedisKeyPrefix+":rl")
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite, cfg.JWTAccessSecret)
}

func providePaymentServiceConfig(cfg *config.Config) service.PaymentServiceConfig {
	return service.PaymentServiceConfig{
		PublicBaseURL:   cfg.PublicBaseURL,
		ToolVersion:     cfg.ToolVersion,
		MethodsCacheTTL: cfg.MethodsCacheTTL,
	}
}

func provideRouterDependencies(
	paymentHandler *handler.PaymentHandler,
	callbackHandler *handler.CallbackHandler,
	jwtMgr *security.JWTManager,
	idempotency service.IdempotencyStore,
	limiter middleware.Limiter,
	db *gorm.DB,
	client redis.UniversalClient,
	logger *slog.Logger,
	cfg *config.Config,
) router.Dependencies {
	mode := middleware.FailClosed
	if cfg.RateLimitFailOpen {
		mode = middleware.FailOpen
	}
	return router.Dependencies{
		PaymentHandler:      paymentHandler,
		CallbackHandler:     callbackHandler,
		JWTManager:          jwtMgr,
		Logger:              logger,
		IdempotencyStore:    idempotency,
		IdempotencyTTL:      cfg.IdempotencyTTL,
		RateLimitBackend:    limiter,
		RateLimitMode:       mode,
		APIRateLimitRPM:     cfg.APIRateLimitPerMin,
		WebhookRateLimitRPM: cfg.WebhookRateLimitPerMin,
		Bypass: middleware.RequestBypassConfig{
			EnableInternalProbeBypass: cfg.RateLimitProbeBypass,
			EnableTrustedActorBypass:  len(cfg.RateLimitTrustedCIDRs) > 0,
			TrustedActorCIDRs:         cfg.RateLimitTrustedCIDRs,
		},
		Readiness: readinessCheck(db, client),
	}
}

func readinessCheck(db *gorm.DB, client redis.UniversalClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if db != nil {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
		}
		if client != nil {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
