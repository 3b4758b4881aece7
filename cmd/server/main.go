// Dishari - bilingual learning assistant server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/tahmidanik/dishari/internal/actions"
	"github.com/tahmidanik/dishari/internal/agent"
	"github.com/tahmidanik/dishari/internal/api"
	"github.com/tahmidanik/dishari/internal/chatlog"
	"github.com/tahmidanik/dishari/internal/config"
	"github.com/tahmidanik/dishari/internal/identity"
	"github.com/tahmidanik/dishari/internal/middleware"
	"github.com/tahmidanik/dishari/internal/model"
	"github.com/tahmidanik/dishari/internal/orchestrator"
	"github.com/tahmidanik/dishari/internal/store"
	"github.com/tahmidanik/dishari/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	modelClient, err := model.NewGemini(context.Background(), model.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize model client", "error", err)
		os.Exit(1)
	}

	// One orchestrator per process, passed to handlers explicitly.
	registry := agent.DefaultRegistry(modelClient)
	router := agent.NewModelRouter(modelClient, logger)
	orch := orchestrator.New(router, registry, actions.NewExtractor(), orchestrator.Config{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		ChunkSize:           cfg.ChunkSize,
		ChunkDelay:          cfg.ChunkDelay,
	}, logger)
	slog.Info("Orchestrator ready", "agents", registry.Tags())

	turnlog, err := chatlog.NewLogger(chatlog.Config{
		Enabled:   cfg.ChatLog.Enabled,
		Dir:       cfg.ChatLog.Dir,
		QueueSize: cfg.ChatLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize chat logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := turnlog.Close(); closeErr != nil {
			slog.Warn("Failed to close chat logger", "error", closeErr)
		}
	}()

	// Initialize handlers.
	chatHandler := api.NewChatHandler(orch, repo, turnlog, cfg)
	healthHandler := api.NewHealthHandler(repo, cfg)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{cfg.FrontendURL}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Routes.
	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)
	r.Get("/ws/chat", chatHandler.HandleWS)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartCleanupWorker(ctx, repo, cfg.ConversationTTL)

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

	slog.Info("Server stopped successfully")
}
