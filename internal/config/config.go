package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the server configuration, read from the environment.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `envconfig:"ADDR" default:":8000"`

	// LogLevel selects the slog level: debug, info, warn or error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// AllowedOrigin restricts websocket and CORS origins. "*" allows all,
	// which is the development default.
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"*"`

	// SendQueueSize bounds each participant's outbound message queue.
	SendQueueSize int `envconfig:"SEND_QUEUE_SIZE" default:"256"`

	// ShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// Load reads configuration from the environment, with an optional .env
// file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// NewLogger builds the process logger for the configured level.
func NewLogger(cfg *Config) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.LogLevel {
	case "dev", "development", "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error", "production", "prod":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	return slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	), nil
}
