package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/clientstate"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/httpserver"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/redis"
	"github.com/sarah-ghe/Job-Tracker/internal/app"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/config"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/crypto"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/logging"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/retry"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/version"
)

func runGracefulShutdown(srv *httpserver.Server, registry *app.Registry) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		registry.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	policy := retry.StartupPolicy()
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis not reachable yet, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	client, err := retry.Do(ctx, policy, retry.Always, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, m)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupCrypto(cfg *config.Config) crypto.Service {
	svc, err := crypto.New(cfg.TokenEncryptionKey)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}
	return svc
}

// probeAPI waits for the job API at startup. An unreachable API is logged, not fatal.
func probeAPI(client *api.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := retry.DoVoid(ctx, retry.StartupPolicy(), retry.Always, client.Ping)
	if err != nil {
		slog.Warn("Job API not reachable at startup", "error", err)
		return
	}
	slog.Info("Job API reachable")
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "api", cfg.APIBaseURL)

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)

	httpClient := &http.Client{Timeout: cfg.APITimeout}
	healthChecks := []httpserver.HealthCheck{}

	var provider clientstate.Provider
	if cfg.RedisURL != "" {
		redisClient := setupRedis(cfg, metrics.NewRedisMetrics(reg))
		defer func() { _ = redisClient.Close() }()

		provider = clientstate.NewRedisProvider(redisClient, setupCrypto(cfg), cfg.SessionMaxAge)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	} else {
		slog.Warn("REDIS_URL not set, client state is kept in memory and lost on restart")
		provider = clientstate.NewMemoryProvider(clock, cfg.SessionMaxAge)
	}

	registry := app.NewRegistry(
		app.RegistryConfig{
			APIBaseURL: cfg.APIBaseURL,
			HTTPClient: httpClient,
			UserAgent:  version.UserAgent(),
			PageSize:   cfg.PageSize,
			IdleTTL:    cfg.WorkspaceIdleTTL,
		},
		provider,
		clock,
		app.RegistryMetrics{
			Workspaces: metrics.NewWorkspaceMetrics(reg),
			API:        metrics.NewAPIMetrics(reg),
			Session:    metrics.NewSessionMetrics(reg),
			Collection: metrics.NewCollectionMetrics(reg),
		},
	)

	// Categories are public, so one unauthenticated client serves every workspace.
	publicAPI := api.New(cfg.APIBaseURL, nil,
		api.WithHTTPClient(httpClient),
		api.WithUserAgent(version.UserAgent()),
	)
	probeAPI(publicAPI)
	healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "job-api", Check: publicAPI.Ping})

	categories := app.NewCategoryCache(publicAPI, clock, cfg.CategoryCacheTTL, metrics.NewCacheMetrics(reg))

	srv, err := httpserver.NewServer(cfg, registry, categories,
		httpserver.WithHealthChecks(healthChecks...),
		httpserver.WithMetrics(httpMetrics, metrics.Handler(reg)),
	)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, registry)

	slog.Info("Server starting", "port", cfg.Port, "version", version.Get().Version)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
