package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8003, cfg.HTTPPort)
	assert.Equal(t, "localhost", cfg.RedisHost)
	assert.Equal(t, 0, cfg.CartTTL)
	assert.Equal(t, time.Duration(0), cfg.CartTTLDuration())
	assert.Equal(t, 3, cfg.ReconcileAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.ReconcileBackoff())
	assert.Equal(t, 15*time.Second, cfg.ReconcileTimeout())
	assert.Equal(t, 5*time.Second, cfg.NotifyTimeout())
	assert.Empty(t, cfg.NotificationServiceURL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 50.0, cfg.RateLimitRPS)
	assert.Equal(t, 100, cfg.RateLimitBurst)
}

func TestLoad_NegativeRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "-1")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_RPS")
}

func TestLoad_InvalidHTTPPort(t *testing.T) {
	t.Setenv("CART_HTTP_PORT", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_InvalidOTELSampleRate(t *testing.T) {
	t.Setenv("OTEL_SAMPLE_RATE", "2.0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
}

func TestLoad_InvalidReconcileAttempts(t *testing.T) {
	t.Setenv("CHECKOUT_RECONCILE_ATTEMPTS", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CHECKOUT_RECONCILE_ATTEMPTS")
}

func TestLoad_NonPositiveCheckoutTimeouts(t *testing.T) {
	for _, key := range []string{"CHECKOUT_RECONCILE_TIMEOUT_MS", "CHECKOUT_NOTIFY_TIMEOUT_MS"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "0")

			cfg, err := Load()

			assert.Nil(t, cfg)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_NegativeCartTTL(t *testing.T) {
	t.Setenv("CART_TTL_HOURS", "-1")

	_, err := Load()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CART_TTL_HOURS")
}

func TestLoad_RelativeNotificationURL(t *testing.T) {
	t.Setenv("NOTIFICATION_SERVICE_URL", "notification:8009")

	_, err := Load()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NOTIFICATION_SERVICE_URL")
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("CART_TTL_HOURS", "24")
	t.Setenv("REDIS_HOST", "redis.prod")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CHECKOUT_RECONCILE_BACKOFF_MS", "250")
	t.Setenv("CHECKOUT_NOTIFY_TIMEOUT_MS", "1500")
	t.Setenv("NOTIFICATION_SERVICE_URL", "http://notification:8009")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.CartTTLDuration())
	assert.Equal(t, "redis.prod:6380", cfg.Redis().Addr())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconcileBackoff())
	assert.Equal(t, 1500*time.Millisecond, cfg.NotifyTimeout())
	assert.Equal(t, "http://notification:8009", cfg.NotificationServiceURL)
}

func TestConfig_Postgres(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "pg.internal")
	t.Setenv("CART_DB_NAME", "carts")
	t.Setenv("DB_MAX_CONN_LIFETIME_MINUTES", "10")

	cfg, err := Load()
	require.NoError(t, err)

	pg := cfg.Postgres()
	assert.Equal(t, "pg.internal", pg.Host)
	assert.Equal(t, "carts", pg.DBName)
	assert.Equal(t, int32(25), pg.MaxConns)
	assert.Equal(t, 10*time.Minute, pg.MaxConnLifetime)
}

func TestConfig_Tracing(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLE_RATE", "0.25")

	cfg, err := Load()
	require.NoError(t, err)

	tc := cfg.Tracing("cart-service")
	assert.Equal(t, "cart-service", tc.ServiceName)
	assert.True(t, tc.Enabled)
	assert.Equal(t, 0.25, tc.SampleRate)
	assert.Equal(t, "development", tc.Environment)
}
