package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ledgerdesk/ledgerdesk/internal/access"
	httptransport "github.com/ledgerdesk/ledgerdesk/internal/api/http"
	"github.com/ledgerdesk/ledgerdesk/internal/api/http/handlers"
	"github.com/ledgerdesk/ledgerdesk/internal/auth"
	"github.com/ledgerdesk/ledgerdesk/internal/clock"
	"github.com/ledgerdesk/ledgerdesk/internal/config"
	"github.com/ledgerdesk/ledgerdesk/internal/contentstore"
	"github.com/ledgerdesk/ledgerdesk/internal/directory"
	"github.com/ledgerdesk/ledgerdesk/internal/events"
	"github.com/ledgerdesk/ledgerdesk/internal/ledger"
	"github.com/ledgerdesk/ledgerdesk/internal/observability"
	"github.com/ledgerdesk/ledgerdesk/internal/persistence"
	"github.com/ledgerdesk/ledgerdesk/internal/reconcile"
	"github.com/ledgerdesk/ledgerdesk/internal/service"
	"github.com/ledgerdesk/ledgerdesk/internal/worker"
	"github.com/ledgerdesk/ledgerdesk/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.NewSystem()
	metrics := observability.NewMetrics()
	probes := map[string]handlers.Pinger{}

	var gateway ledger.Gateway
	switch cfg.Ledger.Backend {
	case config.LedgerBackendPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		gateway = ledger.NewPostgres(pg.PoolHandle(), logger)
		probes["postgres"] = pg
	default:
		gateway = ledger.NewMemory(ledger.WithMemoryClock(clk), ledger.WithMemoryLogger(logger))
		logger.Warn("using in-memory ledger; state is lost on restart")
	}
	gateway = ledger.NewRetrying(gateway, cfg.Ledger.RetryAttempts, 100*time.Millisecond, clk, logger)

	var remote contentstore.Remote
	switch {
	case cfg.Content.RemoteURL != "":
		remote = contentstore.NewHTTPRemote(cfg.Content.RemoteURL, nil)
		logger.Info("content store", zap.String("remote", cfg.Content.RemoteURL))
	case cfg.Content.Backend == "memory":
		remote = contentstore.NewMemoryRemote()
		logger.Warn("using in-memory content store")
	default:
		redis := persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		remote = contentstore.NewRedisRemote(redis.Client)
		probes["redis"] = redis
	}
	content, err := contentstore.NewClient(remote, cfg.Content.CacheEntries,
		contentstore.WithClock(clk),
		contentstore.WithLogger(logger),
		contentstore.WithNegativeTTL(cfg.Content.NegativeTTL()),
		contentstore.WithPutRetries(cfg.Content.PutRetries, 200*time.Millisecond))
	if err != nil {
		logger.Fatal("failed to init content store", zap.Error(err))
	}

	roles, err := access.LoadRoleDirectory(cfg.Access.RolesFile, cfg.Access.ManagersFile, logger)
	if err != nil {
		logger.Fatal("failed to load roles", zap.Error(err))
	}
	policy := access.NewPolicy(cfg.Access.SelfAssign)

	dispatcher := events.NewInMemoryDispatcher()
	notifications := worker.StartNotificationWorker(ctx, dispatcher,
		service.NewNotificationService(dispatcher, logger, cfg.Notify), 256, logger)

	dir := directory.New()
	reconciler := reconcile.New(gateway, content, dir,
		reconcile.WithDispatcher(dispatcher),
		reconcile.WithMetrics(metrics),
		reconcile.WithLogger(logger),
		reconcile.WithLabeler(reconcile.RoleLabeler(roles)),
		reconcile.WithClock(clk))

	ticketService := service.NewTicketService(service.TicketDependencies{
		Gateway:    gateway,
		Content:    content,
		Reconciler: reconciler,
		Directory:  dir,
		Engine:     workflow.NewEngine(policy, gateway, metrics, logger),
		Policy:     policy,
		Roles:      roles,
		Dispatcher: dispatcher,
		Clock:      clk,
		Logger:     logger,
	})

	syncWorker := worker.NewSyncWorker(gateway, reconciler, cfg.Ledger.SyncInterval(), clk, logger)
	go syncWorker.Run(ctx)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, probes, metrics),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Admin:          handlers.NewAdminHandler(ticketService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, roles),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.ShutdownWithTimeout(10 * time.Second)
	cancel()
	<-notifications.Done()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
