// Package main is the entrypoint for the slawatch server. It serves the SLA
// dashboard API and runs the periodic SLA monitor.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MacJediWizard/slawatch/internal/api"
	"github.com/MacJediWizard/slawatch/internal/config"
	"github.com/MacJediWizard/slawatch/internal/db"
	"github.com/MacJediWizard/slawatch/internal/metrics"
	"github.com/MacJediWizard/slawatch/internal/monitoring"
	"github.com/MacJediWizard/slawatch/internal/notifications"
	"github.com/MacJediWizard/slawatch/internal/sla"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadMonitorConfig()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if !cfg.IsProduction() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Str("env", string(cfg.Environment)).
		Msg("Starting slawatch server")

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics, err := metrics.NewPrometheusMetrics(reg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register metrics")
		return 1
	}

	engine := sla.NewEngine(sla.Stores{
		Policies: database,
		Threads:  database,
		Coverage: database,
	}, sla.SystemClock(), logger)

	sinks := notifications.MultiSink{notifications.NewLogSink(logger)}
	if cfg.WebhookURL != "" {
		webhook, err := notifications.NewWebhookSink(notifications.WebhookConfig{
			URL:        cfg.WebhookURL,
			Secret:     cfg.WebhookSecret,
			Timeout:    cfg.WebhookTimeout,
			MaxRetries: cfg.WebhookRetries,
		}, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid webhook configuration")
			return 1
		}
		sinks = append(sinks, webhook)
	}

	monitor := monitoring.NewSLAMonitor(engine, database, sinks, promMetrics, monitoring.ConfigFrom(cfg), logger)
	if err := monitor.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to start SLA monitor")
		return 1
	}

	router := api.NewRouter(engine, database, reg, logger)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("HTTP server error")
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		exitCode = 1
	}

	select {
	case <-monitor.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("SLA scan still running at shutdown deadline")
	}

	logger.Info().Msg("Server stopped")
	return exitCode
}
