// Package main is the entrypoint for the AuralForge queue worker. It runs
// the consumer pool, the enqueue reconciler and the callback delivery loop,
// and serves /metrics on WORKER_METRICS_PORT.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"github.com/prometheus/client_golang/prometheus"

	"github.com/auralforge/auralforge/internal/cache"
	"github.com/auralforge/auralforge/internal/config"
	"github.com/auralforge/auralforge/internal/handler"
	"github.com/auralforge/auralforge/internal/metrics"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/platform"
	"github.com/auralforge/auralforge/internal/queue"
	"github.com/auralforge/auralforge/internal/repository"
	"github.com/auralforge/auralforge/internal/server"
	"github.com/auralforge/auralforge/internal/storage"
	"github.com/auralforge/auralforge/internal/tracing"
	"github.com/auralforge/auralforge/internal/webhook"
	"github.com/auralforge/auralforge/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := platform.NewLogger(cfg).With("service", "worker")

	shutdownTracing, err := tracing.Setup(ctx, cfg.Otel, "auralforge-worker", logger)
	if err != nil {
		logger.Error("failed to set up tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", platform.SanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", platform.RedactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()

	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database handle", slog.String("error", platform.SanitizeError(err, cfg.DatabaseURL)))
		os.Exit(1)
	}
	defer sqlDB.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to Redis",
			slog.String("error", platform.SanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", platform.RedactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer redisClient.Close()

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

	for _, q := range cfg.WorkerQueues {
		if err := queue.EnsureGroup(ctx, redisClient, q); err != nil {
			logger.Error("failed to create consumer group", slog.String("queue", q), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	notifications := webhook.NewRepository(sqlDB)
	dispatcher := worker.NewDispatcher(repo, map[model.JobType]worker.Processor{
		model.JobTypeTTS:     &worker.TTSProcessor{Store: store},
		model.JobTypeSTT:     worker.STTProcessor{},
		model.JobTypeCloning: &worker.CloningProcessor{Voices: repo},
	}, webhook.NewPublisher(notifications, cfg.PublicBaseURL, logger), logger)

	pool := worker.NewPool(redisClient, dispatcher, worker.PoolConfig{
		Queues:      cfg.WorkerQueues,
		Concurrency: cfg.WorkerConcurrency,
		Consumer: queue.ConsumerOptions{
			MaxAttempts: cfg.QueueMaxAttempts,
			JobTimeout:  cfg.JobTimeout,
			ClaimIdle:   cfg.QueueClaimIdle,
		},
	}, logger, recorder)

	reconciler := worker.NewReconciler(repo, queue.NewProducer(redisClient, logger), cfg.ReconcileGrace, cfg.ReconcileStaleAfter, logger)

	delivery := webhook.NewWorker(notifications, cfg.WebhookSigningSecret, logger, recorder, webhook.WorkerOptions{
		Validation: webhook.ValidationOptions{AllowInsecure: cfg.WebhookAllowInsecure},
	})
	if cfg.WebhookSigningSecret == "" {
		logger.Warn("WEBHOOK_SIGNING_SECRET is empty; callbacks are sent unsigned")
	}

	health := handler.NewHealthHandler(repo, cache.New(redisClient), store)
	mux := chi.NewRouter()
	mux.Method("GET", "/metrics", handler.NewMetricsHandler(registry))
	mux.Get("/healthz", health.Healthz)
	mux.Get("/readyz", health.Readyz)

	srv := server.New(mux, cfg.MetricsPort, cfg.ReadTimeout, cfg.WriteTimeout, cfg.ShutdownTimeout, logger)
	srv.OnShutdown("tracing", shutdownTracing)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Registered before the pool so it stops after it: deliveries keep flowing while the
	// pool drains.
	var deliveryWG sync.WaitGroup
	deliveryWG.Add(1)
	go func() {
		defer deliveryWG.Done()
		if err := delivery.Run(runCtx); err != nil {
			logger.Error("webhook worker stopped", slog.String("error", err.Error()))
		}
	}()
	srv.OnShutdown("webhook-worker", func(ctx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() {
			deliveryWG.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err := reconciler.Start(cfg.ReconcileSchedule); err != nil {
		logger.Error("failed to start reconciler", slog.String("error", err.Error()))
		os.Exit(1)
	}
	srv.OnShutdown("reconciler", reconciler.Shutdown)

	pool.Start(runCtx)
	srv.OnShutdown("worker-pool", pool.Shutdown)

	logger.Info("worker started",
		"queues", cfg.WorkerQueues,
		"consumers", pool.Size(),
		"metrics_port", cfg.MetricsPort,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}
}
