package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mpaulsen/trustgate/internal/background"
	"github.com/mpaulsen/trustgate/internal/config"
	"github.com/mpaulsen/trustgate/internal/database"
	"github.com/mpaulsen/trustgate/internal/handlers"
	"github.com/mpaulsen/trustgate/internal/lockout"
	"github.com/mpaulsen/trustgate/internal/metrics"
	middlewareCustom "github.com/mpaulsen/trustgate/internal/middleware"
	"github.com/mpaulsen/trustgate/internal/ratelimit"
	"github.com/mpaulsen/trustgate/internal/repositories"
	"github.com/mpaulsen/trustgate/internal/routes"
	"github.com/mpaulsen/trustgate/internal/services"
	pkghttp "github.com/mpaulsen/trustgate/pkg/http"
	pkglogger "github.com/mpaulsen/trustgate/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	credentialRepo := repositories.NewCredentialRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	authEventRepo := repositories.NewAuthEventRepository(db)

	// In-memory trust primitives
	tracker := lockout.NewTracker(cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutWindow)
	limiter := ratelimit.NewLimiter(cfg.Auth.RateLimit, cfg.Auth.RateLimitWindow)

	// Initialize services
	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(authEventRepo, auditLogger, logger)
	credentialService := services.NewCredentialService(credentialRepo, cfg.Auth.AdminUsername, cfg.Auth.MinPasswordLength, logger)
	sessionService := services.NewSessionService(sessionRepo, cfg.Auth.SessionTimeout, auditService, logger)
	trustService := services.NewTrustService(credentialService, sessionService, tracker, limiter, auditService, logger)

	// Background session sweeper
	sweeper := background.NewSweeper(sessionService, auditService, logger, cfg.Auth.SweepInterval, cfg.Auth.AuditRetention)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(trustService, ipConfig)
	adminHandler := handlers.NewAdminHandler(trustService, limiter)
	auditHandler := handlers.NewAuditHandler(auditService)

	// Prometheus collectors
	metrics.Init()

	// Setup router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(metrics.Instrument)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, adminHandler, auditHandler, trustService, cfg.Auth.AdminUsername)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Prometheus scrape endpoint
	router.Handle("/metrics", metrics.Handler())

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go sweeper.Start(sweepCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
