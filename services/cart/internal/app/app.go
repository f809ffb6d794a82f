package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/services/cart/internal/config"
	"github.com/utafrali/storefront/services/cart/internal/event"
	handler "github.com/utafrali/storefront/services/cart/internal/handler/http"
	"github.com/utafrali/storefront/services/cart/internal/notifier"
	"github.com/utafrali/storefront/services/cart/internal/repository/postgres"
	redisrepo "github.com/utafrali/storefront/services/cart/internal/repository/redis"
	"github.com/utafrali/storefront/services/cart/internal/service"
	"github.com/utafrali/storefront/services/cart/migrations"
)

const (
	serviceName    = "cart"
	serviceVersion = "0.1.0"
)

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	reconciliation *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracingCfg := cfg.Tracing(serviceName)
	tracingCfg.ServiceVersion = serviceVersion
	tracerShutdown, err := tracing.InitTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool (products, tickets).
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
	}

	// Initialize Redis client (carts).
	rdb, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", cfg.Redis().Addr()),
		slog.Int("db", cfg.RedisDB),
	)

	// Initialize Kafka producer with connection validation and retry.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	cartRepo := redisrepo.NewCartRepository(rdb, cfg.CartTTLDuration())
	productRepo := postgres.NewProductRepository(pool)
	ticketRepo := postgres.NewTicketRepository(pool)
	eventProducer := event.NewProducer(producer, logger)
	notify := newNotifier(cfg, logger)

	catalogService := service.NewCatalogService(productRepo, notify, logger, cfg.AvailabilityConcurrency)
	cartService := service.NewCartService(cartRepo, catalogService, eventProducer, logger)
	ticketService := service.NewTicketService(cartService, ticketRepo, logger)
	checkoutService := service.NewCheckoutService(cartService, ticketService, notify, eventProducer, logger,
		service.ReconcileConfig{
			Attempts:      cfg.ReconcileAttempts,
			Backoff:       cfg.ReconcileBackoff(),
			NotifyTimeout: cfg.NotifyTimeout(),
			Timeout:       cfg.ReconcileTimeout(),
		})

	// Kafka consumer for queued reconciliations.
	eventConsumer := event.NewConsumer(checkoutService, logger)
	idempotencyStore := pkgkafka.NewRedisIdempotencyStore(rdb, "cart:events:",
		time.Duration(cfg.EventDedupTTLHours)*time.Hour)
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)

	reconciliationConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaConsumerGroup + "-reconciliation",
		Topic:    event.TopicCartReconciliationRequired,
		MinBytes: 1,
		MaxBytes: 10e6,
	}, pkgkafka.IdempotentHandler(idempotencyStore, eventConsumer.HandleReconciliationRequired, logger), logger,
		pkgkafka.WithDeadLetter(dlq))

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	router := handler.NewRouter(handler.Handlers{
		Cart:     handler.NewCartHandler(cartService, catalogService, logger),
		Product:  handler.NewProductHandler(catalogService, logger),
		Checkout: handler.NewCheckoutHandler(checkoutService, ticketService, logger),
	}, healthHandler, logger, handler.RouterOptions{
		PprofCIDRs:         cfg.PprofAllowedCIDRs,
		CORS:               corsCfg,
		ProductCacheMaxAge: cfg.ProductCacheMaxAge,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		JWTSecret:          cfg.JWTSecret,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		rdb:            rdb,
		producer:       producer,
		dlq:            dlq,
		reconciliation: reconciliationConsumer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newNotifier returns an HTTP notifier when a notification service is
// configured and a logging notifier otherwise.
func newNotifier(cfg *config.Config, logger *slog.Logger) service.Notifier {
	if cfg.NotificationServiceURL == "" {
		logger.Info("NOTIFICATION_SERVICE_URL not set, notifications will be logged only")
		return notifier.NewLogNotifier(logger)
	}
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("notification-service"),
		logger,
	)
	return notifier.NewHTTPNotifier(client, cfg.NotificationServiceURL, logger)
}

// Run starts the HTTP server and the reconciliation consumer, then blocks
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start Kafka consumer.
	go func() {
		if err := a.reconciliation.Start(ctx); err != nil {
			errCh <- fmt.Errorf("reconciliation consumer: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumer and DLQ writer
// 4. Kafka producer
// 5. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.reconciliation.Close(); err != nil {
		a.logger.Error("reconciliation consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.dlq.Close(); err != nil {
		a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s with ±25% jitter between them).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	const attempts = 3
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if lastErr = producer.Ping(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		base := time.Duration(1<<uint(attempt)) * time.Second
		jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
		wait := base + jitter
		logger.Warn("kafka producer ping failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", attempts),
			slog.Duration("backoff", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("kafka producer ping failed after %d attempts: %w", attempts, lastErr)
}
