package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"pagepress/internal/config"
	"pagepress/internal/metrics"
	"pagepress/internal/pkg/logger"
	"pagepress/internal/pkg/shutdown"
	"pagepress/internal/repositories"
	"pagepress/internal/storage"
	"pagepress/internal/worker"
	"pagepress/internal/worker/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "pagepress-worker",
		AddSource:   cfg.Log.AddSource,
	})

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.HTTP.ShutdownTimeout)

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)
	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	m := metrics.New()
	metricsSrv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Worker.MetricsPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	shutdownMgr.Register("metrics-server", metricsSrv.Shutdown)
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err.Error())
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	shutdownMgr.Register("sweeper", func(ctx context.Context) error {
		cancel()
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		defer close(stopped)
		log.Info("PagePress sweeper started",
			"queue", cfg.Redis.SweepQueue,
			"provider", sp.Provider(),
		)
		err := worker.Run(runCtx, worker.Deps{
			Queue:   queue.NewRedisQueue(rdb, cfg.Redis.SweepQueue),
			Storage: sp,
			Records: repositories.NewRecordRepository(pool),
			Metrics: m,
			Log:     log,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("sweeper stopped", "error", err.Error())
		}
	}()

	shutdownMgr.Wait()
}
