package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/subtuna/engagehub/internal/engage"
	"github.com/subtuna/engagehub/internal/generate"
	"github.com/subtuna/engagehub/internal/llm"
	"github.com/subtuna/engagehub/internal/runlock"
	"github.com/subtuna/engagehub/internal/store"
	"github.com/subtuna/engagehub/pkg/config"
)

// lockTTL caps how long a crashed batch invocation can block its successor.
const lockTTL = 2 * time.Minute

func main() {
	godotenv.Load() //nolint:errcheck

	// --- Config ---
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	initLogger(cfg.Log.Level)
	slog.Info("config loaded", "port", cfg.Server.Port, "profiles", len(cfg.Engage.Profiles))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Database ---
	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		slog.Error("failed to create db pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	st, err := store.New(ctx, pool)
	if err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}

	// --- Redis ---
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to ping redis", "error", err)
		os.Exit(1)
	}
	slog.Info("redis connected")

	// --- Router ---
	r := newRouter(st, rdb, cfg)

	// --- HTTP Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // a batch run blocks for up to ~7s per agent on LLM retries
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		cancel()
	}()

	slog.Info("server starting", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func newRouter(st *store.Store, rdb *redis.Client, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	// --- Engagement ---
	llmClient := llm.NewOpenAIClient(cfg.LLM)
	gen := generate.New(llmClient, st, cfg.LLM)
	locker := runlock.New(rdb, lockTTL)

	// Health check, including the last completed run per profile.
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		lastRuns := make(map[string]string, len(cfg.Engage.Profiles))
		for name := range cfg.Engage.Profiles {
			at, err := locker.LastRun(req.Context(), name)
			if err != nil || at.IsZero() {
				lastRuns[name] = ""
				continue
			}
			lastRuns[name] = at.Format(time.RFC3339)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "last_runs": lastRuns}) //nolint:errcheck
	})

	engines := make(map[string]*engage.Engine, len(cfg.Engage.Profiles))
	for name, profile := range cfg.Engage.Profiles {
		engines[name] = engage.NewEngine(st, gen, profile, generate.GlobalRand())
	}

	h := engage.NewHandler(engines, locker, st, cfg.LLM.APIKey != "")
	r.Mount("/", h.Routes())

	return r
}

func initLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
