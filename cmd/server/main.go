// Package main is the entry point for the policy tracker server binary.
// It dispatches its subcommands (serve, migrate, version, token, apikey) via a
// switch on os.Args so the binary's full CLI surface is readable in one place.
// The serve command runs migrations on startup so freshly deployed containers
// never need a separate migration step.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- pprof only listens on the internal profiling port.
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/policytracker/policy-tracker/internal/api"
	"github.com/policytracker/policy-tracker/internal/api/tracker"
	"github.com/policytracker/policy-tracker/internal/auth"
	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
	"github.com/policytracker/policy-tracker/internal/telemetry"
)

const usage = `usage: policy-tracker <command>

commands:
  serve                          run the HTTP API (default)
  migrate <up|down>              apply or roll back schema migrations
  version                        print the version
  token <companyID> [subject]    mint a JWT for a company
  apikey <companyID> <name>      create an API key for a company`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run(args []string) error {
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}
	if command == "version" {
		fmt.Printf("Policy Tracker v%s\n", api.Version)
		return nil
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "serve":
		return serve(cfg, configPath)
	case "migrate":
		if len(args) < 2 {
			return errors.New("usage: migrate <up|down>")
		}
		return runMigrations(cfg, args[1])
	case "token":
		return mintToken(cfg, args[1:])
	case "apikey":
		return createAPIKey(cfg, args[1:])
	default:
		return fmt.Errorf("unknown command: %s\n%s", command, usage)
	}
}

func serve(cfg *config.Config, configPath string) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Fails outside development when no secret is configured.
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	slog.Info("connected to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port, "name", cfg.Database.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.StartDBStatsCollector(ctx, database)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}

	// Only the log level is applied live; everything else needs a restart.
	if err := config.Watch(configPath, func(next *config.Config) {
		telemetry.SetLogLevel(next.Logging.Level)
	}); err != nil {
		slog.Warn("config watch disabled", "error", err)
	}

	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		startSideServer("metrics", fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort), mux)
	}
	if cfg.Telemetry.Profiling.Enabled {
		// net/http/pprof registers on http.DefaultServeMux at init time.
		startSideServer("pprof", fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port), http.DefaultServeMux)
	}

	router, bgServices, err := api.NewRouter(cfg, sqlx.NewDb(database, "postgres"))
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Server.GetAddress(),
		Handler:           api.WithCORS(cfg.Security.CORS, router),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", server.Addr,
			"base_url", cfg.Server.BaseURL,
			"storage_backend", cfg.Storage.DefaultBackend,
			"tls", cfg.Security.TLS.Enabled)
		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		bgServices.Shutdown()
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		bgServices.Shutdown()
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// In-flight requests are drained; now stop the jobs.
	bgServices.Shutdown()
	slog.Info("server stopped gracefully")
	return nil
}

// startSideServer serves handler on an internal port, off the public API
// listener and its middleware.
func startSideServer(name, addr string, handler http.Handler) {
	go func() {
		slog.Info("starting "+name+" server", "addr", addr)
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(name+" server error", "error", err)
		}
	}()
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}

func parseCompanyID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid company id %q", raw)
	}
	return id, nil
}

// mintToken prints a signed JWT. Useful for local development and for
// service accounts that cannot hold an API key.
func mintToken(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: token <companyID> [subject]")
	}
	companyID, err := parseCompanyID(args[0])
	if err != nil {
		return err
	}
	subject := "cli"
	if len(args) > 1 {
		subject = args[1]
	}
	ttl := cfg.Auth.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := auth.GenerateJWT(companyID, subject, cfg.Auth.JWTIssuer, ttl)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	fmt.Println(token)
	return nil
}

func createAPIKey(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: apikey <companyID> <name>")
	}
	companyID, err := parseCompanyID(args[0])
	if err != nil {
		return err
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := repositories.NewAPIKeyRepository(sqlx.NewDb(database, "postgres"))
	raw, key, err := tracker.IssueAPIKey(context.Background(), repo, cfg.Auth.APIKeys.Prefix, companyID, args[1], nil)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	slog.Info("api key created", "id", key.ID, "company_id", companyID, "prefix", key.KeyPrefix)
	// The raw key is shown once and never stored.
	fmt.Println(raw)
	return nil
}
