package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/config"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/event"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/gateway"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/gateway/mercadopago"
	mockgw "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/gateway/mock"
	handler "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/handler/http"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/identity"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/repository/postgres"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/service"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/migrations"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/database"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/health"
	pkgkafka "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/kafka"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/middleware"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/tracing"
)

// App wires together all dependencies and runs the order engine.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	relay          *pkgkafka.Consumer
	expiry         *service.ExpiryService
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, handler.ServiceName)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

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
	txManager := database.NewTxManager(pool)
	inventoryRepo := postgres.NewInventoryRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	webhookRepo := postgres.NewWebhookEventRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	gw, verifier := newGateway(cfg, logger)
	logger.Info("payment gateway selected", slog.String("provider", gw.Name()))

	orderService := service.NewOrderService(txManager, inventoryRepo, orderRepo, eventProducer, logger)
	settlementService := service.NewSettlementService(txManager, orderRepo, inventoryRepo, eventProducer, logger)
	reconciler := service.NewReconciler(verifier, gw, webhookRepo, orderRepo, settlementService, logger)
	checkoutService := service.NewCheckoutService(orderRepo, gw, logger)

	var expiry *service.ExpiryService
	if ttl := cfg.PendingOrderTTL(); ttl > 0 {
		expiry = service.NewExpiryService(orderRepo, settlementService, ttl, logger)
		logger.Info("pending order expiry enabled", slog.Duration("ttl", ttl))
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	var (
		redisClient *redis.Client
		relay       *pkgkafka.Consumer
	)
	if cfg.NotificationRelayEnabled {
		store, client := newIdempotencyStore(ctx, cfg, logger)
		redisClient = client
		if client != nil {
			healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			})
		}
		relay = event.NewRelayConsumer(pkgkafka.ConsumerConfig{
			Brokers:   cfg.KafkaBrokers,
			GroupID:   event.RelayConsumerGroup,
			Topic:     cfg.NotificationRelayTopic,
			MinBytes:  1,
			MaxBytes:  10e6,
			EnableDLQ: true,
		}, reconciler, store, logger)
		logger.Info("notification relay enabled", slog.String("topic", cfg.NotificationRelayTopic))
	}

	userVerifier := newIdentityVerifier(cfg, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(handler.RouterConfig{
		Orders:           orderService,
		Settlement:       settlementService,
		Checkout:         checkoutService,
		Reconciler:       reconciler,
		Verifier:         userVerifier,
		Health:           healthHandler,
		Logger:           logger,
		CORS:             corsCfg,
		PprofCIDRs:       cfg.PprofAllowedCIDRs,
		EnableSimulation: cfg.SimulationEnabled(),
		WebhookRPS:       cfg.WebhookRateLimitRPS,
		WebhookBurst:     cfg.WebhookRateLimitBurst,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		relay:          relay,
		expiry:         expiry,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newGateway selects the payment provider adapter and its signature verifier.
func newGateway(cfg *config.Config, logger *slog.Logger) (gateway.Gateway, gateway.NotificationVerifier) {
	base := strings.TrimRight(cfg.PublicBaseURL, "/")

	if cfg.PaymentProvider == config.ProviderMercadoPago {
		client := mercadopago.NewClient(cfg.MPAccessToken, mercadopago.Config{
			BaseURL:         cfg.MPBaseURL,
			NotificationURL: base + "/api/v1/webhooks/payments",
			ReturnURL:       base + "/orders",
		}, logger)
		verifier := mercadopago.NewSignatureVerifier(cfg.MPWebhookSecret)
		verifier.MaxAge = time.Duration(cfg.MPSignatureMaxAgeSeconds) * time.Second
		return client, verifier
	}

	return mockgw.NewGateway(base), mockgw.NewVerifier(cfg.MPWebhookSecret)
}

// newIdentityVerifier returns the JWT verifier, or in development without a
// secret a static verifier with one customer and one admin token.
func newIdentityVerifier(cfg *config.Config, logger *slog.Logger) identity.Verifier {
	if cfg.JWTSecret != "" {
		return identity.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	}
	logger.Warn("JWT_SECRET not set, accepting development tokens only")
	return identity.NewStaticVerifier(map[string]identity.Identity{
		"dev-customer": {SubjectID: "dev-customer", Email: "customer@localhost", Role: identity.RoleCustomer},
		"dev-admin":    {SubjectID: "dev-admin", Email: "admin@localhost", Role: identity.RoleAdmin},
	})
}

// newIdempotencyStore returns the Redis-backed relay store, or an in-memory
// one when Redis cannot be reached.
func newIdempotencyStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pkgkafka.IdempotencyStore, *redis.Client) {
	client, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn("redis unavailable, relay deduplication falls back to memory",
			slog.String("error", err.Error()),
		)
		if client != nil {
			_ = client.Close()
		}
		return pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL()), nil
	}
	logger.Info("connected to Redis", slog.String("host", cfg.RedisHost), slog.Int("port", cfg.RedisPort))
	return pkgkafka.NewRedisIdempotencyStore(client, cfg.IdempotencyTTL()), client
}

// Run starts the HTTP server, the relay consumer and the expiry sweeper,
// then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.relay != nil {
		go func() {
			if err := a.relay.Start(ctx); err != nil {
				errCh <- fmt.Errorf("notification relay consumer: %w", err)
			}
		}()
	}

	if a.expiry != nil {
		go a.expiry.Run(ctx, a.cfg.ExpirySweepInterval())
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Relay consumer
// 4. Kafka producer
// 5. Redis client
// 6. PostgreSQL pool
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

	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.logger.Error("relay consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry pings the producer up to 3 times with 1s/2s backoff
// and ±25% jitter.
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := producer.Ping(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
