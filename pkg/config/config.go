package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"omitempty,url|uri"`

	RedisAddr     string `mapstructure:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	AsynqConcurrency  int    `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`
	WorkerMetricsAddr string `mapstructure:"WORKER_METRICS_ADDR" validate:"omitempty,hostname_port"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`

	// Editor session
	SaveDebounce      time.Duration `mapstructure:"SAVE_DEBOUNCE" validate:"gt=0"`
	SaveTimeout       time.Duration `mapstructure:"SAVE_TIMEOUT" validate:"gt=0"`
	LabelTick         time.Duration `mapstructure:"LABEL_TICK" validate:"gt=0"`
	DefaultCanvasName string        `mapstructure:"DEFAULT_CANVAS_NAME" validate:"required,max=200"`
	CleanupMode       string        `mapstructure:"CLEANUP_MODE" validate:"required,oneof=inline queue"`

	ThumbnailWidth  int `mapstructure:"THUMBNAIL_WIDTH" validate:"gte=16,lte=2048"`
	ThumbnailHeight int `mapstructure:"THUMBNAIL_HEIGHT" validate:"gte=16,lte=2048"`
	ParticleFPS     int `mapstructure:"PARTICLE_FPS" validate:"gte=1,lte=240"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST" validate:"gte=1"`

	// CORSOrigins is a comma-separated allow list; empty allows any origin.
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`
}

// Origins splits CORSOrigins into trimmed, non-empty entries.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var defaults = map[string]any{
	"APP_ENV":             "development",
	"HTTP_ADDR":           "0.0.0.0:8080",
	"SHUTDOWN_TIMEOUT":    "15s",
	"LOG_LEVEL":           "info",
	"LOG_FORMAT":          "json",
	"ASYNQ_CONCURRENCY":   10,
	"GOMAXPROCS":          0,
	"SAVE_DEBOUNCE":       "2s",
	"SAVE_TIMEOUT":        "15s",
	"LABEL_TICK":          "30s",
	"DEFAULT_CANVAS_NAME": "Untitled Canvas",
	"CLEANUP_MODE":        "inline",
	"THUMBNAIL_WIDTH":     320,
	"THUMBNAIL_HEIGHT":    180,
	"PARTICLE_FPS":        60,
	"RATE_LIMIT_RPS":      10,
	"RATE_LIMIT_BURST":    20,
}

// Load reads .env files, an optional config.yaml and the environment, in
// increasing precedence, then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	// Unmarshal only sees env vars viper knows about.
	for _, key := range envKeys() {
		_ = v.BindEnv(key)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}
	return &c, nil
}

func envKeys() []string {
	t := reflect.TypeFor[Config]()
	keys := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		if k := t.Field(i).Tag.Get("mapstructure"); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}
