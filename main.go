package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"clicktrack/internal/config"
	"clicktrack/internal/container"
	"clicktrack/internal/handler"
	"clicktrack/internal/middleware"
	"clicktrack/internal/service/auth"
	"clicktrack/pkg/errors"
	"clicktrack/pkg/logger"
)

// Resources holds all resources that need cleanup
type Resources struct {
	container *container.Container
	server    *http.Server
	log       *logger.Logger
	mu        sync.Mutex
	closed    bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	if hub := r.container.Services.Hub; hub != nil {
		r.log.Info("Stopping hub forwarder...")
		if err := hub.Stop(ctx); err != nil {
			r.log.WithError(err).Error("Failed to stop hub forwarder")
			errs = append(errs, fmt.Errorf("hub forwarder shutdown: %w", err))
		}
	}

	// Close Redis and database connections
	r.container.Close()
	r.log.Info("Connections closed")

	if len(errs) > 0 {
		r.log.WithField("error_count", len(errs)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errs), errs)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"version":     cfg.ServiceVersion,
	}).Info("Starting clicktrack server")

	ctx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	// Create dependency injection container
	c, err := container.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	if hub := c.Services.Hub; hub != nil {
		if err := hub.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start hub forwarder")
		}
	}

	// Create HTTP server
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        setupRouter(c),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Create resources manager for cleanup
	resources := &Resources{
		container: c,
		server:    server,
		log:       log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()
	services := c.Services

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type", "Authorization",
			auth.HeaderAuthToken, auth.HeaderLegacyAuthToken, handler.NonceHeader,
		},
		ExposedHeaders: []string{
			middleware.RequestIDHeader,
			middleware.HeaderRateLimitLimit, middleware.HeaderRateLimitRemaining, middleware.HeaderRateLimitReset,
			"Retry-After", "X-Cursor-Semantics", "X-Service-Version",
		},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	r.Use(middleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	info := handler.ServiceInfo{
		Version:          cfg.ServiceVersion,
		SiteURL:          cfg.SiteURL,
		CursorTTLSeconds: cfg.CursorTTLSeconds,
	}

	healthHandler := handler.NewHealthHandler(c)
	eventsHandler := handler.NewEventsHandler(services.Query, services.Ingest, c.Nonces, cfg.ServiceVersion, cfg.IsProduction(), log.Named("events"))
	pingHandler := handler.NewPingHandler(services.Settings, services.Query.Limits(), info, log.Named("ping"))
	adminHandler := handler.NewAdminHandler(services.Settings, c.Tokens, services.Stats, info, log.Named("admin"))
	adminMiddleware := middleware.NewAdminMiddleware(cfg.AdminJWTSecret, cfg.AdminAllowedIPs, log)

	limit := func(route string) func(http.Handler) http.Handler {
		return middleware.RateLimit(services.Limiter, services.Settings, route, log.Named("ratelimit"))
	}

	// Health check (no auth required)
	r.Get("/health", healthHandler.Check)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireHTTPS(cfg.IsProduction()))

		// Read API, token authenticated then rate limited
		r.Group(func(r chi.Router) {
			r.Use(middleware.TokenAuth(c.Tokens, log.Named("token")))

			r.With(limit("/events")).Get("/events", eventsHandler.List)
			r.With(limit("/clicks")).Get("/clicks", eventsHandler.ListLegacy)
			r.With(limit("/ping")).Get("/ping", pingHandler.Ping)
		})

		// Write API, protected by the session-bound nonce
		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionIdentity(c.Sessions))

			r.Get("/events/nonce", eventsHandler.Nonce)
			r.Post("/events", eventsHandler.Record)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminMiddleware.RequireAdmin)

			r.Post("/token/rotate", adminHandler.RotateToken)
			r.Post("/token/retain-legacy", adminHandler.RetainLegacy)
			r.Get("/token/export", adminHandler.ExportToken)
			r.Put("/destination", adminHandler.SetDestination)
			r.Get("/stats", adminHandler.Stats)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteJSON(w, errors.NewNotFoundError("Endpoint not found"), middleware.GetRequestID(r.Context()))
	})

	log.Info("Router configured successfully")
	return r
}
