package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/ledgerdesk/ledgerdesk/internal/api/http"
	"github.com/ledgerdesk/ledgerdesk/internal/api/http/handlers"
	"github.com/ledgerdesk/ledgerdesk/internal/config"
	"github.com/ledgerdesk/ledgerdesk/internal/contentstore"
	"github.com/ledgerdesk/ledgerdesk/internal/observability"
	"github.com/ledgerdesk/ledgerdesk/internal/persistence"
)

// maxBodyBytes caps a single upload.
const maxBodyBytes = 32 << 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	addr := pflag.String("addr", ":8090", "listen address")
	pflag.StringVar(&cfg.Redis.Addr, "redis-addr", cfg.Redis.Addr, "redis address")
	pflag.IntVar(&cfg.Redis.DB, "redis-db", cfg.Redis.DB, "redis database")
	memory := pflag.Bool("memory", false, "keep blobs in process memory instead of redis")
	pflag.StringVar(&cfg.Logger.Level, "log-level", cfg.Logger.Level, "log level")
	pflag.Parse()

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	var remote contentstore.Remote
	probes := map[string]handlers.Pinger{}
	if *memory {
		remote = contentstore.NewMemoryRemote()
	} else {
		redis := persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		remote = contentstore.NewRedisRemote(redis.Client)
		probes["redis"] = redis
	}

	app := fiber.New(fiber.Config{AppName: "blobstore", BodyLimit: maxBodyBytes})
	httptransport.RegisterMiddlewares(app, logger, nil, 10*time.Second)
	httptransport.RegisterBlobRoutes(app,
		handlers.NewHealthHandler("blobstore", cfg.App.Version, probes, nil),
		handlers.NewBlobsHandler(remote))

	go func() {
		if err := app.Listen(*addr); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
	_ = app.ShutdownWithTimeout(5 * time.Second)
}
