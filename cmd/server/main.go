// Package main is the entrypoint for the genforge API server and worker pool.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/kiranshivaraju/genforge/internal/api"
	"github.com/kiranshivaraju/genforge/internal/api/handler"
	mw "github.com/kiranshivaraju/genforge/internal/api/middleware"
	"github.com/kiranshivaraju/genforge/internal/api/response"
	"github.com/kiranshivaraju/genforge/internal/artifact"
	"github.com/kiranshivaraju/genforge/internal/cache"
	"github.com/kiranshivaraju/genforge/internal/config"
	"github.com/kiranshivaraju/genforge/internal/metrics"
	"github.com/kiranshivaraju/genforge/internal/orchestrator"
	"github.com/kiranshivaraju/genforge/internal/provider/llm"
	"github.com/kiranshivaraju/genforge/internal/provider/wavespeed"
	"github.com/kiranshivaraju/genforge/internal/queue"
	"github.com/kiranshivaraju/genforge/internal/storage"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/internal/workflow"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"worker_concurrency", cfg.Worker.Concurrency,
		"download_failure_policy", cfg.Artifacts.FailurePolicy,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Task queue on the same Redis
	redisOpt, err := asynq.ParseRedisURI(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url for queue: %w", err)
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	// 6. Object storage for provider inputs
	uploader, err := storage.NewMinioUploader(cfg.Storage)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure storage bucket: %w", err)
	}
	slog.Info("object storage ready", "bucket", cfg.Storage.Bucket)

	// 7. Workflows
	policy, err := artifact.ParsePolicy(cfg.Artifacts.FailurePolicy)
	if err != nil {
		return fmt.Errorf("parse download policy: %w", err)
	}
	materializer := artifact.NewMaterializer(cfg.Artifacts.DataDir,
		&http.Client{Timeout: cfg.Artifacts.DownloadTimeout}, policy)

	prompts, err := workflow.DefaultPrompts()
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	registry := workflow.NewDefaultRegistry(workflow.Deps{
		LLM:               llm.NewClient(cfg.LLM),
		Media:             wavespeed.NewClient(cfg.Wavespeed),
		Uploader:          uploader,
		Artifacts:         materializer,
		Prompts:           prompts,
		UploadConcurrency: cfg.Storage.UploadConcurrency,
	})
	slog.Info("workflows registered", "tool_types", registry.ToolTypes())

	// 8. Orchestration
	pgStore := store.NewPostgresStore(pool)
	m := metrics.New()

	producer := queue.NewProducer(queueClient, cfg.Worker)
	inflight := queue.NewInFlight(redisCache, cfg.Worker.InFlightTTL, cfg.Worker.HeartbeatInterval)

	dispatcher := orchestrator.NewDispatcher(registry, pgStore, redisCache, producer, m,
		filepath.Join(materializer.Root(), "uploads"))
	runner := orchestrator.NewRunner(registry, pgStore, redisCache, inflight, m, cfg.Worker.TaskTimeout)
	reaper := queue.NewReaper(pgStore, producer, inflight, inspector, m, cfg.Worker)
	tasks := orchestrator.NewTaskReader(pgStore, redisCache)

	// 9. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler:  healthHandler(pgStore, redisCache, uploader),
		MetricsHandler: m.Handler(),

		CreateToolTask: handler.NewCreateToolTaskHandler(dispatcher),
		TaskStatus:     handler.NewTaskStatusHandler(tasks),
		TaskResult:     handler.NewTaskResultHandler(tasks),

		ListHistory:   handler.NewListHistoryHandler(pgStore),
		GetHistory:    handler.NewGetHistoryHandler(pgStore),
		DeleteHistory: handler.NewDeleteHistoryHandler(pgStore),
		ReuseHistory:  handler.NewReuseHistoryHandler(pgStore),

		DataDir:        cfg.Artifacts.DataDir,
		TrustedProxies: cfg.Server.TrustedProxies,
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server, worker pool and reaper
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	worker := queue.NewServer(redisOpt, cfg.Worker)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := worker.Start(queue.NewServeMux(runner)); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		slog.Info("worker pool started", "queue", producer.Queue(), "concurrency", cfg.Worker.Concurrency)
		<-gctx.Done()
		worker.Shutdown()
		slog.Info("worker pool stopped")
		return nil
	})

	g.Go(func() error {
		return reaper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database, cache and object storage connectivity.
func healthHandler(db, c, objects pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"storage":  "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := objects.Ping(r.Context()); err != nil {
			checks["storage"] = "degraded"
		}

		for _, status := range checks {
			if status != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
