package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/cheese-relay/internal/config"
	"github.com/park285/cheese-relay/internal/coordinator"
	"github.com/park285/cheese-relay/internal/msgcat"
	"github.com/park285/cheese-relay/internal/obslog"
	"github.com/park285/cheese-relay/internal/results"
	"github.com/park285/cheese-relay/internal/wsserver"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("relay_catalog_error", zap.String("dir", cfg.MessagesDir), zap.Error(err))
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Result sinks are optional; each one is enabled by its URL.
	var (
		sinks   []results.Sink
		archive *results.RedisArchive
		repo    *results.Repository
		srvOpts []wsserver.Option
	)
	if cfg.RedisURL != "" {
		archive, err = results.OpenRedisArchive(rootCtx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("relay_redis_error", zap.Error(err))
		}
		sinks = append(sinks, archive)
		srvOpts = append(srvOpts, wsserver.WithArchive(archive))
	}
	if cfg.DatabaseURL != "" {
		repo, err = results.NewRepository(rootCtx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("relay_postgres_error", zap.Error(err))
		}
		if err := repo.EnsureSchema(rootCtx); err != nil {
			logger.Fatal("relay_postgres_schema_error", zap.Error(err))
		}
		sinks = append(sinks, repo)
	}
	if cfg.ResultWebhookURL != "" {
		sinks = append(sinks, results.NewWebhook(cfg.ResultWebhookURL))
	}
	dispatcher := results.NewDispatcher(256, sinks...)
	dispatcher.Start()

	hub := wsserver.NewHub()
	coord := coordinator.New(hub,
		coordinator.WithCatalog(catalog),
		coordinator.WithResults(dispatcher),
		coordinator.WithValidation(cfg.ValidateMoves),
		coordinator.WithTimeControls(cfg.TimeControls),
		coordinator.WithStallThreshold(cfg.StallThreshold),
		coordinator.WithNameMax(cfg.NameMax),
		coordinator.WithChatMax(cfg.ChatMax),
		coordinator.WithRetention(cfg.SessionRetention),
	)
	runner := coordinator.NewRunner(coord, 0)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = runner.Run(loopCtx)
	}()
	if cfg.SessionRetention > 0 {
		go runner.SweepEvery(loopCtx, cfg.SweepInterval)
	}

	srv := wsserver.New(runner, hub, wsserver.Options{
		Addr:           cfg.Addr(),
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.SendBuffer,
		ReadTimeout:    cfg.ReadTimeout,
		PingInterval:   cfg.PingInterval,
	}, srvOpts...)

	logger.Info("relay_start",
		zap.String("addr", cfg.Addr()),
		zap.Ints("time_controls", cfg.TimeControls),
		zap.Duration("stall_threshold", cfg.StallThreshold),
		zap.Bool("validate_moves", cfg.ValidateMoves),
		zap.Int("result_sinks", dispatcher.Sinks()),
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case <-rootCtx.Done():
		logger.Info("relay_signal")
	case err := <-serveErr:
		if err != nil {
			logger.Error("relay_http_error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("relay_shutdown_error", zap.Error(err))
	}
	// drain disconnects queued by the closing sockets
	if err := runner.Query(shutdownCtx, func() {}); err != nil {
		logger.Warn("relay_drain_error", zap.Error(err))
	}
	stopLoop()
	<-loopDone

	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("relay_results_flush_error", zap.Error(err))
	}
	if archive != nil {
		_ = archive.Close()
	}
	if repo != nil {
		_ = repo.Close()
	}
	logger.Info("relay_stop")
}
