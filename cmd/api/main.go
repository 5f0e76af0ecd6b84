package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/maintenance-dispatch/internal/api/http"
	"github.com/spec-kit/maintenance-dispatch/internal/api/http/handlers"
	"github.com/spec-kit/maintenance-dispatch/internal/auth"
	"github.com/spec-kit/maintenance-dispatch/internal/config"
	"github.com/spec-kit/maintenance-dispatch/internal/engine"
	"github.com/spec-kit/maintenance-dispatch/internal/events"
	"github.com/spec-kit/maintenance-dispatch/internal/observability"
	"github.com/spec-kit/maintenance-dispatch/internal/persistence"
	"github.com/spec-kit/maintenance-dispatch/internal/repository"
	"github.com/spec-kit/maintenance-dispatch/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	// Without a pool the engine runs detached: operations confirm locally
	// and no snapshot refresh is scheduled.
	var requestStore repository.RequestStore
	var technicianStore repository.TechnicianStore
	if pool := pg.PoolHandle(); pool != nil {
		requestStore = repository.NewRequestStore(pool)
		technicianStore = repository.NewTechnicianStore(pool)
	}

	dispatcher := events.NewInMemoryDispatcher()
	events.NewRedisBridge(redis.Client, cfg.Redis.EventChannel, logger).Register(dispatcher)

	metrics := observability.NewMetrics()
	dispatchEngine := engine.New(engine.Dependencies{
		Store:      requestStore,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})

	notifier := worker.NewNotifier(dispatcher, logger, cfg.Notification)
	notifier.RegisterHandlers()

	if requestStore != nil && technicianStore != nil {
		syncWorker := worker.NewSyncWorker(dispatchEngine, requestStore, technicianStore, cfg.Sync.RefreshSchedule, logger)
		if err := syncWorker.RefreshOnce(ctx); err != nil {
			logger.Warn("initial snapshot load failed; starting with empty collections", zap.Error(err))
		}
		if err := syncWorker.Start(); err != nil {
			logger.Fatal("failed to start sync worker", zap.Error(err))
		}
		defer syncWorker.Stop()
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewMiddleware(tokens)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Requests:       handlers.NewRequestsHandler(dispatchEngine),
		Dispatch:       handlers.NewDispatchHandler(dispatchEngine),
		Views:          handlers.NewViewsHandler(dispatchEngine),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
