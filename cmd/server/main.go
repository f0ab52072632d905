package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/oggyb/muzz-social/internal/app"
	"github.com/oggyb/muzz-social/internal/cache"
	"github.com/oggyb/muzz-social/internal/config"
	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/logger"
	"github.com/oggyb/muzz-social/internal/notify"
	"github.com/oggyb/muzz-social/internal/server"
	"github.com/oggyb/muzz-social/internal/service"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}

	appCtx := app.New(cfg, database, redisCache, notify.NewRedisPublisher(redisCache), log)
	appCtx.Dispatcher.Start()
	defer appCtx.Dispatcher.Stop()

	svcs := service.New(appCtx)

	if cfg.App.ENV == "development" {
		ids, err := db.SeedTestData(database)
		if err != nil {
			log.Error("failed to seed", "err", err)
		}
		for _, id := range ids {
			svcs.Reconciler.ScheduleProfile(id)
			svcs.Match.ScheduleReconcile(id)
		}
	}

	httpHandler := server.NewHTTPHandler(server.HTTPDeps{
		Logger:     logger.Service(log, "http"),
		Subscriber: notify.NewSubscriber(redisCache, log),
		Checks: map[string]server.HealthCheck{
			"redis": redisCache.Ping,
			"db": func(ctx context.Context) error {
				sqlDB, err := database.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartGRPCServer(gctx, cfg, logger.Service(log, "grpc"), svcs.Registrars()...)
	})
	g.Go(func() error {
		return server.StartHTTPServer(gctx, cfg, log, httpHandler)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "err", err)
	}
}
