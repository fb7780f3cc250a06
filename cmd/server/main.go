// Package main is the entrypoint for the PixelFix API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/pixelfix/internal/api"
	"github.com/kiranshivaraju/pixelfix/internal/api/handler"
	mw "github.com/kiranshivaraju/pixelfix/internal/api/middleware"
	"github.com/kiranshivaraju/pixelfix/internal/api/response"
	"github.com/kiranshivaraju/pixelfix/internal/cache"
	"github.com/kiranshivaraju/pixelfix/internal/config"
	"github.com/kiranshivaraju/pixelfix/internal/enhance"
	"github.com/kiranshivaraju/pixelfix/internal/fetch"
	"github.com/kiranshivaraju/pixelfix/internal/provider"
	"github.com/kiranshivaraju/pixelfix/internal/storage"
	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

const (
	shutdownTimeout = 30 * time.Second
	// writeTimeout covers a chained request: two stages of polling plus the
	// final download.
	writeTimeout = 5 * time.Minute
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
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))
	slog.Info("config loaded", "provider", cfg.Enhance.Provider, "mode", cfg.Enhance.Mode, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Create enhancement provider
	p, err := provider.New(cfg.Enhance)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	slog.Info("provider initialized", "provider", p.Name())

	// 3. Prepare scratch directories
	scratch := storage.NewScratch(cfg.Storage.UploadDir, cfg.Storage.OutputDir)
	for _, dir := range []string{scratch.UploadDir(), scratch.OutputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	deps := api.Dependencies{
		HealthHandler: healthHandler(),
		IndexHandler:  handler.NewIndexHandler(cfg.Storage.StaticDir),
		StaticHandler: handler.NewStaticHandler("/static/", cfg.Storage.StaticDir),
	}

	// 4. Optional Redis cache for rate limiting and progress
	var progress enhance.ProgressSink
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")

		progress = redisCache
		deps.ProgressHandler = handler.NewProgressHandler(redisCache)
		if cfg.Limits.RateLimitPerMinute > 0 {
			deps.RateLimit = mw.NewRateLimit(redisCache, cfg.Limits.RateLimitPerMinute)
		}
	} else {
		slog.Info("redis not configured, rate limiting and progress disabled")
	}

	// 5. Build the pipeline
	downloader := fetch.NewDownloader(cfg.Enhance.RemoteTimeout, cfg.Limits.MaxOutputBytes)
	svc := enhance.NewService(p, scratch, downloader, progress, models.Mode(cfg.Enhance.Mode))
	deps.EnhanceHandler = handler.NewEnhanceHandler(svc, cfg.Limits.MaxUploadBytes)

	router := api.NewRouter(deps)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, srv, ln, shutdownTimeout)
}

// serve runs srv on ln until ctx is done and then drains it. Requests run on
// their own base context, which is cancelled only when the drain exceeds
// drainTimeout.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, drainTimeout time.Duration) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv.BaseContext = func(net.Listener) context.Context { return baseCtx }

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Cancel in-flight enhancements (remote calls, poll sleeps) and drop
		// whatever connections remain.
		cancelBase()
		_ = srv.Close()
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler reports liveness only.
func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]string{
			"status":  "ok",
			"message": "PixelFix backend is running",
		})
	}
}
