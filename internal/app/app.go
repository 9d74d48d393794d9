// Package app wires together all dependencies and runs the storefront backend.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/marcus-menezes/starstore-backend/internal/catalog"
	"github.com/marcus-menezes/starstore-backend/internal/config"
	"github.com/marcus-menezes/starstore-backend/internal/domain"
	"github.com/marcus-menezes/starstore-backend/internal/event"
	handler "github.com/marcus-menezes/starstore-backend/internal/handler/http"
	pgrepo "github.com/marcus-menezes/starstore-backend/internal/repository/postgres"
	redisrepo "github.com/marcus-menezes/starstore-backend/internal/repository/redis"
	"github.com/marcus-menezes/starstore-backend/internal/service"
	"github.com/marcus-menezes/starstore-backend/internal/store"
	"github.com/marcus-menezes/starstore-backend/migrations"
	"github.com/marcus-menezes/starstore-backend/pkg/database"
	"github.com/marcus-menezes/starstore-backend/pkg/health"
	"github.com/marcus-menezes/starstore-backend/pkg/httpclient"
	pkgkafka "github.com/marcus-menezes/starstore-backend/pkg/kafka"
	"github.com/marcus-menezes/starstore-backend/pkg/tracing"
)

// App holds the storefront's long-lived resources.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Tracing.
	traceCfg := tracing.DefaultConfig("starstore-backend")
	traceCfg.Environment = cfg.Environment
	traceCfg.OTLPEndpoint = cfg.TracingEndpoint
	traceCfg.Enabled = cfg.TracingEnabled
	tracerShutdown, err := tracing.InitTracer(ctx, traceCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Redis holds the persisted cart snapshots.
	rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

	// Postgres holds placed orders.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// Kafka producer for domain events.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Upstream catalog client behind a circuit breaker.
	baseClient := httpclient.New(httpclient.DefaultConfig())
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, httpclient.DefaultCircuitBreakerConfig("catalog"), logger)
	catalogClient := catalog.New(catalog.Config{
		BaseURL:  cfg.CatalogBaseURL,
		CacheTTL: cfg.CatalogCacheTTL,
	}, cbClient, logger)

	// Build the dependency graph.
	eventProducer := event.NewProducer(producer, logger)
	snapshots := redisrepo.NewSnapshotStore(rdb, time.Duration(cfg.SnapshotTTL)*time.Hour)
	stores := store.NewManager(func(sessionID string, items []domain.CartItem) {
		service.ObserveCartChange(domain.ItemCount(items))
	})
	syncer := service.NewSyncer(stores, snapshots, eventProducer, logger)
	cartService := service.NewCartService(stores, snapshots, eventProducer, logger)
	orderRepo := pgrepo.NewOrderRepository(pool)
	orderService := service.NewOrderService(stores, orderRepo, snapshots, eventProducer, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	router := handler.NewRouter(handler.RouterConfig{
		CartService:   cartService,
		OrderService:  orderService,
		Syncer:        syncer,
		Catalog:       catalogClient,
		HealthHandler: healthHandler,
		JWTSecret:     []byte(cfg.JWTSecret),
		PprofCIDRs:    cfg.PprofCIDRs,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		pool:           pool,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	a.pool.Close()

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
