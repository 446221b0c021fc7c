package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/bleu-ims/stockledger/internal/app"
	"github.com/bleu-ims/stockledger/internal/identity"
	"github.com/bleu-ims/stockledger/internal/observability"
	"github.com/bleu-ims/stockledger/internal/platform/cache"
	"github.com/bleu-ims/stockledger/internal/platform/db"
	"github.com/bleu-ims/stockledger/internal/platform/events"
	"github.com/bleu-ims/stockledger/internal/platform/tracing"
	"github.com/bleu-ims/stockledger/internal/rbac"
	"github.com/bleu-ims/stockledger/internal/shared"
	"github.com/bleu-ims/stockledger/internal/stock"
	"github.com/bleu-ims/stockledger/jobs"
)

var version = "dev"

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.OTelEndpoint,
		Insecure:       !cfg.IsProduction(),
	})
	if err != nil {
		logger.Error("init tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLifetime})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	hooks := stock.Hooks{
		Metrics: stock.NewMetrics(metrics.Registerer()),
		Logger:  logger,
	}
	if cfg.StatusCacheTTL > 0 {
		hooks.Cache = stock.NewCache(redisClient, cfg.StatusCacheTTL)
	}
	if cfg.KafkaEnabled() {
		publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("kafka close", slog.Any("error", err))
			}
		}()
		hooks.Publisher = publisher
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	hooks.Alerts = jobClient

	stockRepo := stock.NewRepository(dbpool)
	stockService := stock.NewService(
		stockRepo,
		shared.NewAuditLogger(dbpool),
		shared.NewIdempotencyStore(dbpool),
		stock.ServiceConfig{AllowNegativeStock: cfg.LedgerAllowNegativeStock, HookTimeout: cfg.LedgerHookTimeout},
		hooks,
	)

	identityClient := identity.NewClient(cfg.IdentityURL, cfg.IdentityTimeout, logger)
	rbacMiddleware := rbac.Middleware{Resolver: identityClient, Logger: logger}
	stockHandler := stock.NewHandler(logger, stockService, rbacMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		StockHandler:   stockHandler,
		JobHandler:     jobs.NewHandler(inspector, logger),
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
		Ready: map[string]app.Pinger{
			"postgres": dbpool,
			"redis":    redisPinger{client: redisClient},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("version", version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
