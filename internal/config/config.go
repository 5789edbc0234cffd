package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string
	LogLevel string

	DatabaseURL string

	PublicBaseURL     string
	MollieAPIBaseURL  string
	MollieHTTPTimeout time.Duration
	CatalogFile       string
	ToolVersion       string

	JWTIssuer       string
	JWTAudience     string
	JWTAccessSecret string
	CookieDomain    string
	CookieSecure    bool
	CookieSameSite  string

	RedisEnabled     bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisKeyPrefix   string
	ReconcileLockTTL time.Duration

	IdempotencyEnabled      bool
	IdempotencyRedisEnabled bool
	IdempotencyTTL          time.Duration

	MethodsCacheTTL time.Duration

	WebhookRateLimitPerMin int
	APIRateLimitPerMin     int
	RateLimitFailOpen      bool
	RateLimitProbeBypass   bool
	RateLimitTrustedCIDRs  []string

	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaDeliveryTopic string
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", "info")),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		PublicBaseURL:           strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		MollieAPIBaseURL:        strings.TrimRight(getEnv("MOLLIE_API_BASE_URL", "https://api.mollie.com/v2"), "/"),
		CatalogFile:             getEnv("PAYGW_CATALOG_FILE", "catalog.yaml"),
		ToolVersion:             getEnv("PAYGW_TOOL_VERSION", "2021052500"),
		JWTIssuer:               getEnv("JWT_ISSUER", "lms-platform"),
		JWTAudience:             getEnv("JWT_AUDIENCE", "paygw-mollie"),
		JWTAccessSecret:         os.Getenv("JWT_ACCESS_SECRET"),
		CookieDomain:            os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:            getEnvBool("COOKIE_SECURE", true),
		CookieSameSite:          strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
		RedisEnabled:            getEnvBool("REDIS_ENABLED", false),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix:          getEnv("REDIS_KEY_PREFIX", "paygw"),
		IdempotencyEnabled:      getEnvBool("IDEMPOTENCY_ENABLED", true),
		IdempotencyRedisEnabled: getEnvBool("IDEMPOTENCY_REDIS_ENABLED", false),
		WebhookRateLimitPerMin:  getEnvInt("WEBHOOK_RATE_LIMIT_PER_MIN", 600),
		APIRateLimitPerMin:      getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		RateLimitFailOpen:       getEnvBool("RATE_LIMIT_FAIL_OPEN", true),
		RateLimitProbeBypass:    getEnvBool("RATE_LIMIT_PROBE_BYPASS", true),
		RateLimitTrustedCIDRs:   splitCSV(os.Getenv("RATE_LIMIT_TRUSTED_CIDRS")),
		KafkaEnabled:            getEnvBool("KAFKA_ENABLED", false),
		KafkaBrokers:            splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaDeliveryTopic:      getEnv("KAFKA_DELIVERY_TOPIC", "payment.delivered"),
	}

	timeout, err := time.ParseDuration(getEnv("MOLLIE_HTTP_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("parse MOLLIE_HTTP_TIMEOUT: %w", err)
	}
	cfg.MollieHTTPTimeout = timeout

	lockTTL, err := time.ParseDuration(getEnv("RECONCILE_LOCK_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("parse RECONCILE_LOCK_TTL: %w", err)
	}
	cfg.ReconcileLockTTL = lockTTL

	idemTTL, err := time.ParseDuration(getEnv("IDEMPOTENCY_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("parse IDEMPOTENCY_TTL: %w", err)
	}
	cfg.IdempotencyTTL = idemTTL

	methodsTTL, err := time.ParseDuration(getEnv("METHODS_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("parse METHODS_CACHE_TTL: %w", err)
	}
	cfg.MethodsCacheTTL = methodsTTL

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if u, err := url.Parse(c.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "PUBLIC_BASE_URL must be an absolute URL")
	}
	if u, err := url.Parse(c.MollieAPIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "MOLLIE_API_BASE_URL must be an absolute URL")
	}
	if c.MollieHTTPTimeout <= 0 || c.MollieHTTPTimeout > 2*time.Minute {
		errs = append(errs, "MOLLIE_HTTP_TIMEOUT must be between 1ms and 2m")
	}
	if strings.TrimSpace(c.CatalogFile) == "" {
		errs = append(errs, "PAYGW_CATALOG_FILE is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 chars")
	}
	if c.RedisEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, "REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if c.IdempotencyRedisEnabled && !c.RedisEnabled {
		errs = append(errs, "IDEMPOTENCY_REDIS_ENABLED requires REDIS_ENABLED=true")
	}
	if c.ReconcileLockTTL <= 0 {
		errs = append(errs, "RECONCILE_LOCK_TTL must be > 0")
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, "IDEMPOTENCY_TTL must be > 0")
	}
	if c.MethodsCacheTTL < 0 {
		errs = append(errs, "METHODS_CACHE_TTL must be >= 0")
	}
	if c.WebhookRateLimitPerMin <= 0 {
		errs = append(errs, "WEBHOOK_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, "KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	if c.KafkaEnabled && strings.TrimSpace(c.KafkaDeliveryTopic) == "" {
		errs = append(errs, "KAFKA_DELIVERY_TOPIC is required when KAFKA_ENABLED=true")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
