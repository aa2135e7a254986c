package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/canvas-studio/engine/pkg/config"
	"github.com/canvas-studio/engine/pkg/database"
	"github.com/canvas-studio/engine/pkg/logger"
)

func main() {
	check := flag.Bool("check", false, "report missing tables without changing the schema")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall migration timeout")
	flag.Parse()

	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, cfg.AppEnv)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	db = db.WithContext(ctx)

	if *check {
		missing := missingTables(db)
		if len(missing) > 0 {
			log.Error("schema is behind", zap.Strings("missing_tables", missing))
			logger.Sync()
			os.Exit(1)
		}
		log.Info("schema is up to date")
		return
	}

	if err := runMigrations(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	log.Info("migrations completed")
}
