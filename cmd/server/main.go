// Package main is the entrypoint for the Tempoboard API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tempoboard/tempoboard/internal/api"
	"github.com/tempoboard/tempoboard/internal/api/handler"
	mw "github.com/tempoboard/tempoboard/internal/api/middleware"
	"github.com/tempoboard/tempoboard/internal/api/response"
	"github.com/tempoboard/tempoboard/internal/broadcast"
	"github.com/tempoboard/tempoboard/internal/cache"
	"github.com/tempoboard/tempoboard/internal/config"
	"github.com/tempoboard/tempoboard/internal/queue"
	"github.com/tempoboard/tempoboard/internal/settings"
	"github.com/tempoboard/tempoboard/internal/store"
	"github.com/tempoboard/tempoboard/internal/ws"
)

const (
	shutdownTimeout = 30 * time.Second
	purgeInterval   = 10 * time.Minute
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache (rate limiting)
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and ephemeral snapshot store
	pgStore := store.NewPostgresStore(pool)

	snapshots, err := queue.NewRedisStore(cfg.Redis.URL, pgStore)
	if err != nil {
		return fmt.Errorf("create snapshot store: %w", err)
	}
	defer snapshots.Close()

	// 6. Create broadcaster; writes go through the async wrapper so a slow
	// Redis never stalls a settings or queue write.
	redisBroadcaster, err := broadcast.NewRedisBroadcaster(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create broadcaster: %w", err)
	}
	defer redisBroadcaster.Close()

	asyncBroadcaster := broadcast.NewAsyncBroadcaster(redisBroadcaster,
		cfg.Broadcast.QueueSize, cfg.Broadcast.PublishTimeout)
	defer asyncBroadcaster.Close()

	// 7. Services
	settingsSvc := settings.NewService(pgStore, asyncBroadcaster)
	liveHandler := ws.NewLiveHandler(redisBroadcaster, settingsSvc, snapshots)

	// 8. Background sweep for snapshots whose embedded expiry outlived the
	// Redis TTL (tier changed between write and read).
	go purgeLoop(ctx, snapshots)

	// 9. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		GetSettingsHandler:   handler.NewGetSettingsHandler(settingsSvc),
		PatchSettingsHandler: handler.NewPatchSettingsHandler(settingsSvc),
		DriftHandler:         handler.NewDriftHandler(settingsSvc),
		CapabilitiesHandler:  handler.NewCapabilitiesHandler(settingsSvc),

		GetQueueHandler:   handler.NewGetQueueHandler(snapshots),
		PutQueueHandler:   handler.NewPutQueueHandler(snapshots),
		PurgeQueueHandler: handler.NewPurgeQueueHandler(snapshots),

		LiveHandler: func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := mw.GetTenantID(r)
			if !ok {
				response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
				return
			}
			liveHandler.Serve(w, r, tenantID)
		},

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),

		ChangeTierHandler:    handler.NewChangeTierHandler(settingsSvc),
		ResetSettingsHandler: handler.NewResetSettingsHandler(settingsSvc),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func purgeLoop(ctx context.Context, snapshots *queue.RedisStore) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := snapshots.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("snapshot purge failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired snapshots purged", "count", n)
			}
		}
	}
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
