package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canvas-studio/engine/internal/metrics"
	"github.com/canvas-studio/engine/internal/queue/tasks"
	"github.com/canvas-studio/engine/internal/repository"
	"github.com/canvas-studio/engine/internal/services"
	"github.com/canvas-studio/engine/pkg/config"
	"github.com/canvas-studio/engine/pkg/database"
	"github.com/canvas-studio/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	_ = rdb.Close()

	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, cfg.AppEnv)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}

	collector := metrics.NewCollector("canvas_worker")
	handler := tasks.NewCleanupTaskHandler(services.NewCanvasService(repository.NewCanvasRepository(db)), collector)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeCanvasCleanup, handler.HandleCleanup)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		asynq.Config{
			Concurrency: cfg.AsynqConcurrency,
			Queues:      map[string]int{"maintenance": 3, "default": 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Warn("task failed", zap.String("type", task.Type()), zap.ByteString("payload", task.Payload()), zap.Error(err))
			}),
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
	)
	if err := srv.Start(mux); err != nil {
		log.Fatal("asynq worker failed to start", zap.Error(err))
	}
	log.Info("asynq worker started", zap.Int("concurrency", cfg.AsynqConcurrency))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.WorkerMetricsAddr != "" {
		ms := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: collector.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		// Lets in-flight tasks finish within ShutdownTimeout.
		srv.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", zap.Error(err))
	}
}
