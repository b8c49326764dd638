package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/sso-registry/sso/internal/api"
	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/auth/oauth2"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/crypto"
	"github.com/sso-registry/sso/internal/db"
	"github.com/sso-registry/sso/internal/email"
	"github.com/sso-registry/sso/internal/jobs"
	"github.com/sso-registry/sso/internal/middleware"
	"github.com/sso-registry/sso/internal/safego"
	"github.com/sso-registry/sso/internal/services"
	"github.com/sso-registry/sso/internal/storage"
	"github.com/sso-registry/sso/internal/telemetry"

	_ "github.com/sso-registry/sso/internal/storage/postgres"
	_ "github.com/sso-registry/sso/internal/storage/sqlite"
)

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

// pooled is implemented by storage drivers backed by a database/sql pool.
type pooled interface {
	DB() *sqlx.DB
}

// sqlDB returns the pool behind driver, or nil for drivers without one.
func sqlDB(driver storage.Driver) *sql.DB {
	if p, ok := driver.(pooled); ok {
		return p.DB().DB
	}
	return nil
}

func serve(cfg *config.Config) error {
	// Initialise the logger first so everything below uses the configured
	// format and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer driver.Close()
	slog.Info("connected to database", "driver", cfg.Database.Driver)

	if database := sqlDB(driver); database != nil {
		telemetry.StartDBStatsCollector(ctx, database, 30*time.Second)
		logMigrationVersion(database, cfg.Database.Driver)
	}

	providers, err := oauth2.NewProviders(&cfg.Providers)
	if err != nil {
		return fmt.Errorf("failed to configure oauth2 providers: %w", err)
	}
	var csrf *crypto.Cipher
	if cfg.Auth.CsrfEncryptionKey != "" {
		if csrf, err = crypto.NewCsrfCipher(cfg.Auth.CsrfEncryptionKey); err != nil {
			return fmt.Errorf("failed to create csrf cipher: %w", err)
		}
	}

	shipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return fmt.Errorf("failed to configure audit shippers: %w", err)
	}
	defer func() {
		if err := shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}()
	var store storage.Driver = driver
	if shipper.Len() > 0 {
		store = audit.NewShippingDriver(driver, shipper)
		slog.Info("audit shipping enabled", "destinations", shipper.Len())
	}

	identity := services.NewIdentity(
		store,
		&cfg.Auth,
		auth.NewPasswordMetaChecker(&cfg.PwnedPasswords),
		providers,
		csrf,
		email.NewSender(&cfg.SMTP),
	)

	var limiter middleware.Limiter
	if cfg.Security.RateLimiting.Enabled {
		if limiter, err = middleware.NewLimiter(cfg.Security.RateLimiting); err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		defer limiter.Close()
	}

	router, err := api.NewRouter(cfg, identity, limiter)
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	retention := jobs.NewAuditRetentionJob(driver, &cfg.Audit)
	csrfSweep := jobs.NewCsrfSweepJob(driver, &cfg.Audit)
	safego.Go("audit-retention", func() { retention.Start(ctx) })
	safego.Go("csrf-sweep", func() { csrfSweep.Start(ctx) })

	// Metrics are served on their own port so the scrape path stays off the
	// public ingress and outside the rate limiter.
	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      telemetry.NewMetricsMux(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		safego.Go("metrics-server", func() {
			slog.Info("starting metrics server", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr, "base_url", cfg.Server.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	retention.Stop()
	csrfSweep.Stop()
	cancel()

	slog.Info("server stopped gracefully")
	return nil
}

func logMigrationVersion(database *sql.DB, dialect string) {
	v, dirty, err := db.GetMigrationVersion(database, dialect)
	if err != nil {
		slog.Warn("failed to get migration version", "error", err)
		return
	}
	slog.Info("database schema version", "version", v, "dirty", dirty)
}
