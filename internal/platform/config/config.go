package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv             string `env:"APP_ENV" default:"development"`
	Port               string `env:"PORT" default:"8080"`
	APIBaseURL         string `env:"API_BASE_URL" default:"http://localhost:8000"`
	SessionSecret      string `env:"SESSION_SECRET"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
	RedisURL           string `env:"REDIS_URL"`
	LogLevel           string `env:"LOG_LEVEL" default:"info"`
	LogFormat          string `env:"LOG_FORMAT" default:"text"`

	APITimeout       time.Duration `env:"API_TIMEOUT" default:"10s"`
	SessionMaxAge    time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days
	WorkspaceIdleTTL time.Duration `env:"WORKSPACE_IDLE_TTL" default:"30m"`
	CategoryCacheTTL time.Duration `env:"CATEGORY_CACHE_TTL" default:"5m"`

	PageSize       int     `env:"PAGE_SIZE" default:"10"`
	LoginRateLimit float64 `env:"LOGIN_RATE_LIMIT" default:"1"`
	LoginRateBurst int     `env:"LOGIN_RATE_BURST" default:"5"`
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}
	if cfg.IsProduction() && len(cfg.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters in production")
	}

	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", cfg.APIBaseURL)
	}

	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	} else if cfg.IsProduction() && cfg.RedisURL != "" {
		return errors.New("TOKEN_ENCRYPTION_KEY is required in production when REDIS_URL is set")
	}

	if cfg.PageSize < 1 || cfg.PageSize > 100 {
		return fmt.Errorf("PAGE_SIZE must be between 1 and 100, got %d", cfg.PageSize)
	}
	if cfg.LoginRateLimit <= 0 || cfg.LoginRateBurst < 1 {
		return errors.New("LOGIN_RATE_LIMIT must be > 0 and LOGIN_RATE_BURST >= 1")
	}
	if cfg.APITimeout <= 0 {
		return errors.New("API_TIMEOUT must be positive")
	}
	if cfg.WorkspaceIdleTTL <= 0 || cfg.CategoryCacheTTL <= 0 || cfg.SessionMaxAge <= 0 {
		return errors.New("SESSION_MAX_AGE, WORKSPACE_IDLE_TTL and CATEGORY_CACHE_TTL must be positive")
	}

	return nil
}
