package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"playerfeed/internal/api"
	"playerfeed/internal/config"
	"playerfeed/internal/engine"
	"playerfeed/internal/metrics"
	"playerfeed/internal/store"
	"playerfeed/internal/stream"
	ws "playerfeed/internal/websocket"
	"playerfeed/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	rdb, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("connected to Redis")

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	m := metrics.New(hub.ClientCount)

	breaker := engine.NewCircuitBreaker(rdb, logger)
	limiter := engine.NewRateLimiter(rdb, logger)
	retries := engine.NewRetryQueue(rdb)

	deliverer := worker.NewDeliverer(pgStore, retries, breaker, limiter, m, logger, cfg.DeliveryTimeout)
	pool := worker.NewPool(cfg.MaxConcurrentDeliveries, deliverer, logger)
	pool.Start(ctx)

	dispatcher := engine.NewDispatcher(pgStore, pool, hub, m, logger, cfg.RetryMaxAttempts)
	consumer := stream.NewConsumer(rdb, cfg.EventChannel, pgStore, dispatcher, m, logger)
	poller := worker.NewRetryPoller(rdb, pool, logger)
	publisher := stream.NewPublisher(rdb, cfg.EventChannel)

	router := api.NewRouter(pgStore, retries, breaker, hub, publisher, m.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Losing the event source is the one fatal error in the pipeline:
	// it takes the whole group down and the process exits non-zero.
	g.Go(func() error {
		return consumer.Run(gctx)
	})

	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	pool.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exiting with error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
