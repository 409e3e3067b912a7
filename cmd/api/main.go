package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"pagepress/internal/adapters/browser/browserless"
	"pagepress/internal/auth"
	"pagepress/internal/config"
	"pagepress/internal/export"
	"pagepress/internal/httpapi"
	"pagepress/internal/httpapi/handlers"
	"pagepress/internal/metrics"
	"pagepress/internal/pkg/logger"
	"pagepress/internal/pkg/shutdown"
	"pagepress/internal/render"
	"pagepress/internal/repositories"
	"pagepress/internal/storage"
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
		ServiceName: "pagepress-api",
		AddSource:   cfg.Log.AddSource,
	})

	if err := cfg.Validate(); err != nil {
		log.LogFatal("invalid configuration", err)
	}

	log.Info("starting PagePress API",
		"version", "0.1.0",
		"storage_provider", cfg.Storage.Provider,
	)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.HTTP.ShutdownTimeout)

	// Connect to PostgreSQL
	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)

	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}
	if cfg.Database.Migrate {
		if err := repositories.Migrate(ctx, pool); err != nil {
			log.LogFatal("failed to apply schema", err)
		}
	}
	log.Info("PostgreSQL connected")

	// Connect to Redis
	log.Info("connecting to Redis")
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
	log.Info("Redis connected")

	// Initialize storage provider
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	browserURL, err := cfg.Browser.BrowserURL()
	if err != nil {
		log.LogFatal("invalid browser endpoint", err)
	}

	m := metrics.New()
	users := repositories.NewUserRepository(pool)
	records := repositories.NewRecordRepository(pool)
	sessions := auth.NewSessionStore(rdb, cfg.Auth.SessionTTL)

	renderer := render.NewService(render.Deps{
		Backend: browserless.New(browserURL, log),
		Storage: sp,
		Records: records,
		Orphans: queue.NewRedisQueue(rdb, cfg.Redis.SweepQueue),
		Metrics: m,
		Log:     log,
		Options: render.Options{
			NavigationTimeout: cfg.Render.NavigationTimeout,
			SettleTimeout:     cfg.Render.SettleTimeout,
			SettleInterval:    cfg.Render.SettleInterval,
			JobTimeout:        cfg.Render.JobTimeout,
			ChunkSize:         cfg.Render.ChunkSize,
		},
	})

	router := httpapi.NewRouter(httpapi.Deps{
		HTTP:      cfg.HTTP,
		RateLimit: cfg.RateLimit,
		Handlers: handlers.New(handlers.Deps{
			DB:       pool,
			RDB:      rdb,
			SP:       sp,
			Renderer: renderer,
			Records:  records,
			Exporter: export.NewService(records, cfg.HTTP.PublicBaseURL, log),
			Log:      log,
		}),
		Auth:    auth.NewHandler(auth.NewGoogleProvider(cfg.Auth), sessions, users, cfg.Auth, log),
		Gate:    auth.NewGate(sessions, users, cfg.Auth.CookieName, log),
		Metrics: m.Handler(),
		Log:     log,
	})

	// WriteTimeout stays unset: a render response streams for as long
	// as the job runs, which RENDER_JOB_TIMEOUT already bounds.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.HTTP.Port,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}
