package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds client configuration.
type Config struct {
	Backend    string
	SQLitePath string

	PGHost     string
	PGPort     int
	PGUser     string
	PGPassword string

	// Empty RedisAddr or NATSURL turns the feature off.
	RedisAddr     string
	RedisPassword string
	NATSURL       string

	JWTSecret       string
	SessionFile     string
	LogLevel        string
	FeedConcurrency int
}

// Load reads .env files (if present) and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		err := godotenv.Load(file)
		if err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "loading env file failed, path=%s", file)
		}
	}

	cfg := &Config{
		Backend:       getEnv("MINIX_BACKEND", BackendSQLite),
		SQLitePath:    getEnv("MINIX_SQLITE_PATH", filepath.Join(dataDir(), "minix.db")),
		PGHost:        getEnv("MINIX_PG_HOST", "localhost"),
		PGUser:        getEnv("MINIX_PG_USER", "postgres"),
		PGPassword:    getEnv("MINIX_PG_PASSWORD", "password"),
		RedisAddr:     os.Getenv("MINIX_REDIS_ADDR"),
		RedisPassword: os.Getenv("MINIX_REDIS_PASSWORD"),
		NATSURL:       os.Getenv("MINIX_NATS_URL"),
		JWTSecret:     getEnv("MINIX_JWT_SECRET", "minix-dev-secret"),
		SessionFile:   getEnv("MINIX_SESSION_FILE", filepath.Join(dataDir(), "session")),
		LogLevel:      strings.ToUpper(getEnv("MINIX_LOG_LEVEL", "INFO")),
	}

	var err error
	if cfg.PGPort, err = getIntEnv("MINIX_PG_PORT", 5432); err != nil {
		return nil, err
	}
	if cfg.FeedConcurrency, err = getIntEnv("MINIX_FEED_CONCURRENCY", 8); err != nil {
		return nil, err
	}

	if cfg.Backend != BackendSQLite && cfg.Backend != BackendPostgres {
		return nil, errors.Errorf("MINIX_BACKEND must be %q or %q, got %q", BackendSQLite, BackendPostgres, cfg.Backend)
	}
	if cfg.FeedConcurrency < 1 {
		return nil, errors.Errorf("MINIX_FEED_CONCURRENCY must be positive, got %d", cfg.FeedConcurrency)
	}

	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "%s was not a number", key)
	}
	return parsed, nil
}

func dataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "minix")
	}
	return ".minix"
}
