package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/tracing"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CART_HTTP_PORT" envDefault:"8003"`

	// PostgreSQL (products and tickets)
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"CART_DB_NAME" envDefault:"storefront_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis (carts)
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass     string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"0"`

	// Cart TTL in hours. Zero keeps carts until they are deleted.
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"0"`

	// Kafka
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"cart-service"`
	// How long processed event IDs are remembered for deduplication.
	EventDedupTTLHours int `env:"EVENT_DEDUP_TTL_HOURS" envDefault:"24"`

	// Checkout reconciliation
	ReconcileAttempts  int `env:"CHECKOUT_RECONCILE_ATTEMPTS" envDefault:"3"`
	ReconcileBackoffMs int `env:"CHECKOUT_RECONCILE_BACKOFF_MS" envDefault:"100"`
	// Reconciliation runs detached from the request, bounded by this deadline.
	ReconcileTimeoutMs int `env:"CHECKOUT_RECONCILE_TIMEOUT_MS" envDefault:"15000"`
	NotifyTimeoutMs    int `env:"CHECKOUT_NOTIFY_TIMEOUT_MS" envDefault:"5000"`

	// Notification service. Empty logs notifications instead of sending them.
	NotificationServiceURL string `env:"NOTIFICATION_SERVICE_URL" envDefault:""`

	// Catalog
	AvailabilityConcurrency int `env:"AVAILABILITY_CONCURRENCY" envDefault:"8"`
	ProductCacheMaxAge      int `env:"PRODUCT_CACHE_MAX_AGE_SECONDS" envDefault:"30"`

	// Per-caller rate limiting on the API (0 disables)
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`

	// Bearer token verification; empty trusts gateway identity headers
	JWTSecret string `env:"IDENTITY_JWT_SECRET"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.CartTTL < 0 {
		return fmt.Errorf("CART_TTL_HOURS must be >= 0, got %d", c.CartTTL)
	}
	if c.ReconcileAttempts < 1 {
		return fmt.Errorf("CHECKOUT_RECONCILE_ATTEMPTS must be >= 1, got %d", c.ReconcileAttempts)
	}
	if c.ReconcileBackoffMs < 0 {
		return fmt.Errorf("CHECKOUT_RECONCILE_BACKOFF_MS must be >= 0, got %d", c.ReconcileBackoffMs)
	}
	if c.ReconcileTimeoutMs <= 0 {
		return fmt.Errorf("CHECKOUT_RECONCILE_TIMEOUT_MS must be > 0, got %d", c.ReconcileTimeoutMs)
	}
	if c.NotifyTimeoutMs <= 0 {
		return fmt.Errorf("CHECKOUT_NOTIFY_TIMEOUT_MS must be > 0, got %d", c.NotifyTimeoutMs)
	}
	if c.NotificationServiceURL != "" {
		if u, err := url.Parse(c.NotificationServiceURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("NOTIFICATION_SERVICE_URL must be an absolute URL, got %q", c.NotificationServiceURL)
		}
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be >= 0")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// Postgres returns the connection pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	cfg := database.DefaultPostgresConfig()
	cfg.Host = c.PostgresHost
	cfg.Port = c.PostgresPort
	cfg.User = c.PostgresUser
	cfg.Password = c.PostgresPass
	cfg.DBName = c.PostgresDB
	cfg.SSLMode = c.PostgresSSL
	cfg.MaxConns = c.DBMaxConns
	cfg.MinConns = c.DBMinConns
	cfg.MaxConnLifetime = time.Duration(c.DBMaxConnLifetimeMins) * time.Minute
	cfg.MaxConnIdleTime = time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute
	return cfg
}

// Redis returns the Redis client settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPass,
		DB:       c.RedisDB,
		PoolSize: c.RedisPoolSize,
	}
}

// Tracing returns the OpenTelemetry settings for serviceName.
func (c *Config) Tracing(serviceName string) tracing.Config {
	cfg := tracing.DefaultConfig(serviceName)
	cfg.Environment = c.Environment
	cfg.OTLPEndpoint = c.OTELEndpoint
	cfg.SampleRate = c.OTELSampleRate
	cfg.Enabled = c.OTELEnabled
	return cfg
}

// CartTTLDuration returns the cart expiry, zero for none.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// ReconcileBackoff returns the initial reconciliation retry delay.
func (c *Config) ReconcileBackoff() time.Duration {
	return time.Duration(c.ReconcileBackoffMs) * time.Millisecond
}

// ReconcileTimeout returns the deadline for post-purchase reconciliation.
func (c *Config) ReconcileTimeout() time.Duration {
	return time.Duration(c.ReconcileTimeoutMs) * time.Millisecond
}

// NotifyTimeout returns the deadline for a purchase confirmation.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutMs) * time.Millisecond
}

// SlowQueryThreshold returns the slow query logging threshold.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
