package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/welldanyogia/presence-stream/internal/api"
	"github.com/welldanyogia/presence-stream/internal/auth"
	"github.com/welldanyogia/presence-stream/internal/config"
	"github.com/welldanyogia/presence-stream/internal/health"
	"github.com/welldanyogia/presence-stream/internal/logger"
	"github.com/welldanyogia/presence-stream/internal/metrics"
	authmw "github.com/welldanyogia/presence-stream/internal/middleware"
	"github.com/welldanyogia/presence-stream/internal/presence"
	"github.com/welldanyogia/presence-stream/internal/repository"
	"github.com/welldanyogia/presence-stream/internal/sse"
)

// Version is set at build time
var Version = "dev"

func main() {
	// Load configuration
	cfg := config.Load()
	log := logger.New(logger.DefaultConfig())
	slog.SetDefault(log)

	// Validate required configuration
	if cfg.JWT.AccessSecret == "" {
		log.Error("JWT_ACCESS_SECRET environment variable is required")
		os.Exit(1)
	}

	// Setup database connection
	dbPool, err := setupDatabase(cfg, log)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// sqlx shares the pgx pool through the database/sql bridge
	sqlDB := stdlib.OpenDBFromPool(dbPool)
	defer sqlDB.Close()
	db := sqlx.NewDb(sqlDB, "pgx")

	dbStats := metrics.NewDBStatsCollector(dbPool, sqlDB, log)
	dbStats.Start(15 * time.Second)
	defer dbStats.Stop()

	// Initialize repositories
	userRepo := repository.NewUserRepo(db)
	sessionRepo := repository.NewSessionRepository(dbPool)

	// Initialize services
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:      cfg.JWT.AccessSecret,
		AccessTokenExpiry: cfg.JWT.AccessTokenExpiry,
		Issuer:            cfg.JWT.Issuer,
	})

	presenceConfig := presence.DefaultConfig()
	presenceConfig.HeartbeatInterval = cfg.Presence.HeartbeatInterval
	presenceConfig.Snapshot.Timeout = cfg.Presence.SnapshotTimeout
	directory := presence.NewDirectory(presenceConfig, userRepo, log)

	// Initialize handlers
	streamHandler := sse.NewHandler(sse.Config{RetryInterval: cfg.Presence.RetryInterval}, directory, tokenService, log)
	presenceHandler := api.NewPresenceHandler(userRepo, sessionRepo, directory, log)
	healthHandler := health.NewHandler(health.Config{
		DB:      dbPool,
		Streams: directory,
		Version: Version,
	})

	// Initialize middleware
	authMiddleware := authmw.NewAuthMiddleware(tokenService)

	// Setup router
	r := chi.NewRouter()

	// Global middleware. No global Timeout: streams stay open for the
	// lifetime of the client.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(authmw.StructuredLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID", "Cache-Control"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)

	r.Handle("/metrics", metrics.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		sse.RegisterRoutes(r, streamHandler, authmw.SubscribeRateLimit(cfg.Presence.SubscribeRate))

		authenticated := func(next http.Handler) http.Handler {
			return middleware.Timeout(30 * time.Second)(authMiddleware.Authenticate(next))
		}
		api.RegisterRoutes(r, presenceHandler, authenticated)
	})

	// Create server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("Starting server", "addr", addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Streams never finish on their own, so they are closed before the
	// server waits for in-flight requests.
	if err := directory.Shutdown(ctx); err != nil {
		log.Warn("Presence directory did not stop cleanly", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited")
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Configure pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Set pool configuration
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	// Create pool
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	// Test connection
	if err := metrics.PingDatabase(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Connected to database",
		"db_name", cfg.Database.DBName,
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
	)
	return pool, nil
}
