// Package main is the entrypoint for the AuralForge API server.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"github.com/prometheus/client_golang/prometheus"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/cache"
	"github.com/auralforge/auralforge/internal/config"
	"github.com/auralforge/auralforge/internal/handler"
	"github.com/auralforge/auralforge/internal/metrics"
	"github.com/auralforge/auralforge/internal/middleware"
	"github.com/auralforge/auralforge/internal/platform"
	"github.com/auralforge/auralforge/internal/queue"
	"github.com/auralforge/auralforge/internal/repository"
	"github.com/auralforge/auralforge/internal/server"
	"github.com/auralforge/auralforge/internal/service"
	"github.com/auralforge/auralforge/internal/storage"
	"github.com/auralforge/auralforge/internal/tracing"
	"github.com/auralforge/auralforge/internal/webhook"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := platform.NewLogger(cfg)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Otel, "auralforge-api", logger)
	if err != nil {
		logger.Error("failed to set up tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", platform.SanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", platform.RedactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Notification rows are read through database/sql like the worker writes them.
	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database handle", slog.String("error", platform.SanitizeError(err, cfg.DatabaseURL)))
		os.Exit(1)
	}
	defer sqlDB.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", platform.SanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", platform.RedactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")
	cacheClient := cache.New(redisClient)

	store, err := storage.New(ctx, cfg.S3, logger)
	if err != nil {
		logger.Error("failed to initialize object storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.S3.CreateBucket {
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Error("failed to ensure bucket", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheus(registry)

	producer := queue.NewProducer(redisClient, logger)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)

	accounts := service.NewAccountService(repo, tokens, logger)
	projects := service.NewProjectService(repo)
	apiKeys := service.NewAPIKeyService(repo, cacheClient, logger)
	jobs := service.NewJobService(repo, producer, store, recorder, logger, service.JobServiceOptions{
		Validation: webhook.ValidationOptions{AllowInsecure: cfg.WebhookAllowInsecure},
	})

	handlers := server.Handlers{
		Root:     handler.New(),
		Health:   handler.NewHealthHandler(repo, cacheClient, store),
		Metrics:  handler.NewMetricsHandler(registry),
		Auth:     handler.NewAuthHandler(accounts, logger),
		Billing:  handler.NewBillingHandler(accounts, logger),
		Projects: handler.NewProjectHandler(projects, logger),
		APIKeys:  handler.NewAPIKeyHandler(apiKeys, logger),
		Jobs:     handler.NewJobHandler(jobs, logger),
		Webhooks: handler.NewWebhookHandler(jobs, webhook.NewRepository(sqlDB), cfg.WebhookSigningSecret, logger),
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	router := server.NewRouter(handlers, server.RouterConfig{
		Logger:   logger,
		Recorder: recorder,
		Sessions: accounts,
		Keys:     apiKeys,
		RateLimit: middleware.RateLimitConfig{
			Logger:      logger,
			Limiter:     cacheClient,
			Enabled:     cfg.RateLimitEnabled,
			PerMinute:   cfg.RateLimitPerMinute,
			Burst:       cfg.RateLimitBurst,
			IPPerSecond: cfg.AuthRateLimitRPS,
			IPBurst:     cfg.AuthRateLimitBurst,
		},
		Security: middleware.SecurityConfig{
			IsDevelopment:      cfg.IsDevelopment(),
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		CORS: corsCfg,
	})

	srv := server.New(
		router,
		cfg.APIPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)
	srv.OnShutdown("tracing", shutdownTracing)

	logger.Info("starting server",
		"port", cfg.APIPort,
		"public_base_url", cfg.PublicBaseURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
