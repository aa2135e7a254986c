package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/canvas-studio/engine/pkg/logger"
)

// Pool sizes the database/sql pool behind gorm.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// DefaultPool suits one API process serving autosave traffic.
var DefaultPool = Pool{MaxOpen: 25, MaxIdle: 10, MaxLifetime: 5 * time.Minute}

// SlowQuery is the duration above which queries are logged at warn level.
const SlowQuery = 200 * time.Millisecond

// OpenPostgres connects with retries, applies DefaultPool and pings.
// Outside production every query is traced at debug level.
func OpenPostgres(ctx context.Context, dsn, appEnv string) (*gorm.DB, error) {
	gl := &gormZap{log: logger.L().With(zap.String("component", "gorm")), level: gormlogger.Warn, slow: SlowQuery}
	if appEnv == "development" || appEnv == "test" {
		gl.level = gormlogger.Info
	}

	var db *gorm.DB
	err := retry(ctx, backoff{attempts: 6, base: 500 * time.Millisecond, max: 5 * time.Second}, func() error {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl, TranslateError: true})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(DefaultPool.MaxOpen)
	sqlDB.SetMaxIdleConns(DefaultPool.MaxIdle)
	sqlDB.SetConnMaxLifetime(DefaultPool.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

func (b backoff) delay(attempt int) time.Duration {
	d := b.base << attempt
	if d <= 0 || d > b.max {
		return b.max
	}
	return d
}

// retry calls fn until it succeeds, attempts run out or ctx ends.
func retry(ctx context.Context, b backoff, fn func() error) error {
	var err error
	for attempt := 0; attempt < b.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		logger.L().Warn("database connect failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
		if attempt == b.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(b.delay(attempt)):
		}
	}
	return err
}

// gormZap routes gorm's logger through zap.
type gormZap struct {
	log   *zap.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func (l *gormZap) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *gormZap) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Sugar().Infof(msg, args...)
	}
}

func (l *gormZap) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Sugar().Warnf(msg, args...)
	}
}

func (l *gormZap) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Sugar().Errorf(msg, args...)
	}
}

func (l *gormZap) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level == gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.log.Error("query failed", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed), zap.Error(err))
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Debug("query", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	}
}
