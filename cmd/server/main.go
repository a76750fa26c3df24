package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumenweb/contactsync/internal/config"
	"github.com/lumenweb/contactsync/internal/db"
	"github.com/lumenweb/contactsync/internal/export"
	"github.com/lumenweb/contactsync/internal/hubspot"
	"github.com/lumenweb/contactsync/internal/intake"
	"github.com/lumenweb/contactsync/internal/middleware"
	"github.com/lumenweb/contactsync/internal/repository"
	"github.com/lumenweb/contactsync/internal/retry"
	syncpkg "github.com/lumenweb/contactsync/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Str("app", "contactsync").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Create repositories
	submissionRepo := repository.NewSubmissionRepository(conn.Pool)
	attemptRepo := repository.NewSyncAttemptRepository(conn.Pool)
	statsRepo := repository.NewStatsRepository(conn.Pool)

	// Create the CRM client behind the retry executor
	executor := retry.NewExecutor(logger.With().Str("component", "retry").Logger())
	crm := hubspot.NewClient(hubspot.Config{
		APIKey:       cfg.HubSpot.APIKey,
		BaseURL:      cfg.HubSpot.BaseURL,
		ListID:       cfg.HubSpot.ListID,
		DealPipeline: cfg.HubSpot.DealPipeline,
		DealStage:    cfg.HubSpot.DealStage,
		Policy: retry.Policy{
			MaxAttempts:    cfg.HubSpot.MaxAttempts,
			AttemptTimeout: cfg.HubSpot.AttemptTimeout,
			InitialBackoff: cfg.HubSpot.InitialBackoff,
		},
	}, executor, logger.With().Str("component", "hubspot").Logger())

	// Create the sync orchestrator and start its worker pool
	orchestrator := syncpkg.NewOrchestrator(
		crm,
		submissionRepo,
		attemptRepo,
		statsRepo,
		logger.With().Str("component", "sync").Logger(),
		syncpkg.WithQueueSize(cfg.Sync.QueueSize),
		syncpkg.WithWorkers(cfg.Sync.Workers),
	)
	orchestrator.Start(ctx)

	// HTTP surface
	intakeHandler := intake.NewHandler(
		submissionRepo,
		statsRepo,
		orchestrator,
		intake.PingFunc(conn.Pool.Ping),
		crm,
		logger.With().Str("component", "intake").Logger(),
	)
	exportHandler := export.NewHTTPHandler(export.NewService(submissionRepo, statsRepo))

	router := chi.NewRouter()
	router.Use(middleware.RequestLogger(logger.With().Str("component", "http").Logger()))
	router.Post("/contact", intakeHandler.SubmitContact)
	router.Get("/contact", intakeHandler.Status)
	router.Get("/integration/test", intakeHandler.IntegrationTest)
	router.Post("/integration/test", intakeHandler.IntegrationTest)
	router.Get("/admin/export", exportHandler.Export)
	router.Get("/admin/stats", exportHandler.Stats)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting contact sync server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	cancel()
	orchestrator.Stop()
	logger.Info().Msg("server exited")
}
