// HintTutor - hint-by-hint tutoring server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/hint-tutor/internal/api"
	"github.com/ashureev/hint-tutor/internal/completion"
	"github.com/ashureev/hint-tutor/internal/config"
	"github.com/ashureev/hint-tutor/internal/hint"
	"github.com/ashureev/hint-tutor/internal/metrics"
	"github.com/ashureev/hint-tutor/internal/middleware"
	"github.com/ashureev/hint-tutor/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	for _, w := range cfg.Warnings() {
		slog.Warn("Configuration warning", "warning", w)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"model", cfg.LLM.Model,
		"llm_timeout", cfg.LLM.Timeout,
		"hint_cap", cfg.Session.HintCap,
	)

	// Initialize dependencies.
	client, err := completion.NewOpenAI(completion.OpenAIConfig{
		APIURL:  cfg.LLM.APIURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize completion client", "error", err)
		os.Exit(1)
	}

	sessions := store.NewMemory()
	m := metrics.New()
	m.TrackActiveSessions(sessions.Len)

	opts := hint.Options{
		HintCap:     cfg.Session.HintCap,
		Timeout:     cfg.LLM.Timeout,
		Temperature: &cfg.LLM.Temperature,
		Observer:    m,
		Logger:      logger,
	}

	var archive *store.SQLiteArchive
	if cfg.ArchiveEnabled() {
		archive, err = store.NewSQLiteArchive(cfg.Archive.DBPath)
		if err != nil {
			slog.Error("Failed to initialize archive", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := archive.Close(); closeErr != nil {
				slog.Error("Failed to close archive", "error", closeErr)
			}
		}()
		opts.Archive = archive
		slog.Info("Archive connected", "path", cfg.Archive.DBPath)
	}

	svc := hint.NewService(client, sessions, opts)

	// Initialize handlers.
	sessionHandler := api.NewSessionHandler(svc)
	var healthHandler *api.HealthHandler
	if archive != nil {
		healthHandler = api.NewHealthHandler(svc.ActiveSessions, archive)
	} else {
		healthHandler = api.NewHealthHandler(svc.ActiveSessions, nil)
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", m.Handler())
	sessionHandler.RegisterRoutes(r)

	// Create server. Writes must outlive the slowest completion call.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background workers.
	store.StartTTLWorker(ctx, sessions, cfg.Session.IdleTTL, m.SessionsExpired)
	if archive != nil {
		store.StartArchivePruner(ctx, archive, cfg.Archive.Retention)
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully", "active_sessions", svc.ActiveSessions())
}
