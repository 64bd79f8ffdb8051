package main

import (
	"context"
	"errors"
	"os"
	"syscall"

	"messenger/internal/app/registry"
	"messenger/internal/app/server"
	"messenger/internal/app/server/handlers"
	"messenger/internal/app/worker"
	"messenger/internal/config"
	"messenger/internal/core/contracts"
	"messenger/internal/core/services"
	"messenger/internal/platform/logger"
	"messenger/internal/platform/telemetry"
	"messenger/internal/plugins/postgres"
	redisPlugin "messenger/internal/plugins/redis"
	"messenger/pkg/logging"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Config
	cfg := config.Load()

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("main - start - starting application")
	if cfg.Auth.JWTSecret == "" {
		log.Error("main - config - JWT_SECRET is not set")
		os.Exit(1)
	}

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("main - telemetry - init failed", logging.Err(err))
		otelShutdown = func(context.Context) error { return nil }
	}

	// Infra
	pdb, err := postgres.New(ctx, *cfg.Postgres)
	if err != nil {
		log.Error("main - postgres - connection failed", logging.Err(err))
		os.Exit(1)
	}
	log.Info("main - postgres - connected")
	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(ctx, pdb); err != nil {
			log.Error("main - postgres - migrate failed", logging.Err(err))
			os.Exit(1)
		}
	}
	rdb, err := redisPlugin.NewRedisClient(ctx, *cfg.Redis)
	if err != nil {
		log.Error("main - redis - connection failed", "url", cfg.Redis.URL, logging.Err(err))
		os.Exit(1)
	}
	log.Info("main - redis - connected")

	// Adapters
	chatRepo := postgres.NewChatRepo(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	txManager := postgres.NewTxManager(pdb)
	presStore := redisPlugin.NewRedisPresenceStore(rdb)
	msgQueue := redisPlugin.NewRedisMessageQueue(rdb, cfg.Queue.DefaultTTL)
	draftStore := redisPlugin.NewRedisDraftStore(rdb, cfg.Drafts.TTL)

	// Core services
	presence := services.NewPresenceRegistry(log, presStore, cfg.Presence.ConnectionTTL)
	hub := registry.NewRegistry(log, presence)
	broadcaster := services.NewBroadcaster(log, hub, msgQueue)
	draftSvc := services.NewDraftService(log, chatRepo, draftStore, broadcaster)
	msgSvc := services.NewMessageService(log, chatRepo, msgRepo, broadcaster, draftSvc, txManager, cfg.Queue.DefaultTTL)
	managerSvc := services.NewManagerService(log, hub, broadcaster, chatRepo, msgSvc)
	draftSyncSvc := services.NewDraftSyncService(log, chatRepo, draftSvc, hub)
	tokenSvc := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	// Server
	srv := server.NewServer(log, cfg.Service.Name, cfg.Service.Addr, tokenSvc,
		handlers.NewWSHandler(log, *cfg.WebSocket, tokenSvc, managerSvc, draftSyncSvc),
		handlers.NewRESTHandler(log, msgSvc, draftSvc),
		handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			"postgres": pdb.PingContext,
		}),
	)
	presenceWorker := worker.NewPresenceWorker(log, hub, presence, cfg.Presence.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error { return presenceWorker.Run(gctx) })
	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("main - run group - stopped", logging.Err(err))
			// route fatal errors through the same shutdown path as a signal
			if p, perr := os.FindProcess(os.Getpid()); perr == nil {
				_ = p.Signal(syscall.SIGTERM)
			}
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.Shutdown.Timeout,
		map[string]gfshutdown.Operation{
			"messenger": func(shutdownCtx context.Context) error {
				log.Info("main - shutdown - draining")
				var errs error
				errs = errors.Join(errs, srv.Shutdown(shutdownCtx))
				hub.CloseAll(contracts.CloseGoingAway, "Server shutting down")
				cancel()
				errs = errors.Join(errs, rdb.Close())
				errs = errors.Join(errs, pdb.Close())
				errs = errors.Join(errs, otelShutdown(shutdownCtx)) // flush traces last
				return errs
			},
		},
	)
	exitCode := <-wait
	log.Info("main - shutdown - exited", "code", exitCode)
	os.Exit(exitCode)
}
