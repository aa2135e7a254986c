package main

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/canvas-studio/engine/internal/autosave"
	"github.com/canvas-studio/engine/internal/queue/tasks"
	"github.com/canvas-studio/engine/internal/repository"
	"github.com/canvas-studio/engine/internal/services"
	"github.com/canvas-studio/engine/internal/store"
	"github.com/canvas-studio/engine/internal/store/sqlite"
	"github.com/canvas-studio/engine/pkg/config"
	"github.com/canvas-studio/engine/pkg/database"
	"github.com/canvas-studio/engine/pkg/logger"
)

// openStore returns the selected backend and a func releasing it.
func openStore(ctx context.Context, g *globalFlags, cfg *config.Config) (store.Store, func(), error) {
	switch g.backend {
	case "memory":
		return store.NewMemory(), func() {}, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, g.dbPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "http":
		c := store.NewHTTPClient(store.HTTPClientConfig{
			BaseURL: g.baseURL,
			OwnerID: g.ownerID,
			Timeout: cfg.SaveTimeout,
			Logger:  logger.L(),
		})
		return c, func() {}, nil
	case "postgres":
		db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, cfg.AppEnv)
		if err != nil {
			return nil, nil, err
		}
		release := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return services.NewCanvasService(repository.NewCanvasRepository(db)), release, nil
	default:
		return nil, nil, fail("unknown store %q", g.backend)
	}
}

// cleaner returns the duplicate cleanup hook for CLEANUP_MODE. Queue mode
// hands the work to the worker through asynq.
func cleaner(st store.Store, cfg *config.Config) (autosave.Cleaner, func(), error) {
	if cfg.CleanupMode != "queue" {
		return store.RetentionCleaner{Store: st}, func() {}, nil
	}
	if cfg.RedisAddr == "" {
		return nil, nil, fail("CLEANUP_MODE=queue requires REDIS_ADDR")
	}
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	return tasks.NewCleanupEnqueuer(client, "maintenance"), func() { _ = client.Close() }, nil
}
