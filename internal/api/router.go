// Package api wires together all HTTP routes of the policy tracker.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated so that load balancers
//     and orchestrators can probe the process.
//   - Everything under /api requires a resolved tenant (JWT, API key, or the
//     X-Company-ID header in development) and is recorded by the audit trail.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/rs/cors"

	"github.com/policytracker/policy-tracker/internal/api/tracker"
	"github.com/policytracker/policy-tracker/internal/audit"
	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
	"github.com/policytracker/policy-tracker/internal/jobs"
	"github.com/policytracker/policy-tracker/internal/middleware"
	"github.com/policytracker/policy-tracker/internal/storage"

	// Import storage backends to register them
	_ "github.com/policytracker/policy-tracker/internal/storage/azure"
	_ "github.com/policytracker/policy-tracker/internal/storage/gcs"
	_ "github.com/policytracker/policy-tracker/internal/storage/local"
	_ "github.com/policytracker/policy-tracker/internal/storage/s3"
)

// Version is reported by /version and the CLI; it is overridden at build time
// with -ldflags "-X github.com/policytracker/policy-tracker/internal/api.Version=...".
var Version = "0.1.0"

// readinessProbePath is a sentinel object that never exists; Exists() on it
// exercises credentials and connectivity without creating state.
const readinessProbePath = ".readiness-probe"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	escalator   *jobs.OverdueEscalator
	reminders   *jobs.ReminderNotifier
	periodic    *jobs.PeriodicScheduler
	stopLimiter func()
	shipper     *audit.MultiShipper
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	if bg == nil {
		return
	}
	slog.Info("stopping background services")
	if bg.escalator != nil {
		bg.escalator.Stop()
	}
	if bg.reminders != nil {
		bg.reminders.Stop()
	}
	if bg.periodic != nil {
		bg.periodic.Stop()
	}
	if bg.stopLimiter != nil {
		bg.stopLimiter()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router and starts the background
// jobs enabled in cfg.
func NewRouter(cfg *config.Config, db *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	store, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	if p, ok := store.(storage.Provisioner); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := p.Provision(ctx)
		cancel()
		if err != nil {
			return nil, nil, err
		}
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	bg := &BackgroundServices{}

	multiShipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, err
	}
	// A nil *MultiShipper must not become a non-nil interface value.
	var shipper audit.Shipper
	if multiShipper != nil {
		shipper = multiShipper
		bg.shipper = multiShipper
	}

	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	ackRepo := repositories.NewAcknowledgementRepository(db)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.SecurityHeadersConfigFor(cfg.Security.TLS)))

	if cfg.Security.RateLimiting.Enabled {
		limiter, stop, err := middleware.NewLimiter(cfg.Security.RateLimiting)
		if err != nil {
			bg.Shutdown()
			return nil, nil, err
		}
		bg.stopLimiter = stop
		router.Use(middleware.RateLimitMiddleware(limiter))
	}

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, store))
	router.GET("/version", versionHandler())

	apiGroup := router.Group("/api")
	apiGroup.Use(middleware.TenantMiddleware(&cfg.Auth, apiKeyRepo))
	apiGroup.Use(middleware.AuditMiddleware(auditRepo, shipper, &cfg.Audit))
	tracker.New(cfg, db, store).Register(apiGroup)

	bg.escalator = jobs.NewOverdueEscalator(ackRepo, cfg.Compliance.Escalation)
	bg.escalator.Start(context.Background())
	bg.reminders = jobs.NewReminderNotifier(ackRepo, nil, &cfg.Notifications)
	bg.reminders.Start(context.Background())
	bg.periodic = jobs.NewPeriodicScheduler(ackRepo, cfg.Compliance.Periodic, cfg.Compliance.DefaultDueDays)
	bg.periodic.Start(context.Background())

	return router, bg, nil
}

// WithCORS wraps h with the configured CORS policy. With no allowed origins
// configured h is returned unchanged.
func WithCORS(cfg config.CORSConfig, h http.Handler) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		return h
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", middleware.CompanyHeader}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   methods,
		AllowedHeaders:   headers,
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           3600,
	}).Handler(h)
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and the evidence storage backend.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a readiness gate fails when evidence archiving would error.
func readinessHandler(db *sqlx.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if _, err := store.Exists(c.Request.Context(), readinessProbePath); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api"
// @Router       /version [get]
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": Version,
			"api":     "v1",
		})
	}
}
