package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Lock backends supported by LOCK_BACKEND.
const (
	LockBackendPostgres = "postgres"
	LockBackendMemory   = "memory"
)

// reservedDBConns are kept free for HTTP handlers and the scheduler.
const reservedDBConns = 5

// Config holds process settings read from the environment.
type Config struct {
	DatabaseURL string
	DBMaxConns  int
	Port        string
	JWTSecret   string

	LogLevel  string
	LogFormat string

	RedisURL string

	DiscordBotToken  string
	DiscordAPIURL    string
	DiscordRateLimit float64

	WorkerConcurrency int
	PollInterval      time.Duration
	MaxGrantAttempts  int
	LockBackend       string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		Port:            getEnv("APP_PORT", "8080"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "auto"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DiscordBotToken: os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordAPIURL:   getEnv("DISCORD_API_URL", "https://discord.com/api/v10"),
		LockBackend:     strings.ToLower(getEnv("LOCK_BACKEND", LockBackendPostgres)),
	}

	var err error
	if cfg.DiscordRateLimit, err = getFloat("DISCORD_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.DBMaxConns, err = getInt("DB_MAX_CONNS", 25); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = getInt("WORKER_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if cfg.MaxGrantAttempts, err = getInt("GRANT_MAX_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("QUEUE_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be greater than 0")
	}
	if c.MaxGrantAttempts <= 0 {
		return fmt.Errorf("GRANT_MAX_ATTEMPTS must be greater than 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("QUEUE_POLL_INTERVAL must be positive")
	}
	switch c.LockBackend {
	case LockBackendPostgres, LockBackendMemory:
	default:
		return fmt.Errorf("LOCK_BACKEND must be %q or %q, got %q", LockBackendPostgres, LockBackendMemory, c.LockBackend)
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be greater than 0")
	}
	// An advisory lock pins one connection per running job and the job
	// needs a second one for its queries.
	if c.LockBackend == LockBackendPostgres {
		if need := 2*c.WorkerConcurrency + reservedDBConns; c.DBMaxConns < need {
			return fmt.Errorf("DB_MAX_CONNS must be at least %d for WORKER_CONCURRENCY=%d with postgres locks, got %d",
				need, c.WorkerConcurrency, c.DBMaxConns)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
