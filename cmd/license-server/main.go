// Package main is the entrypoint for the license server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/min-zu/license-server-sub000/internal/api"
	"github.com/min-zu/license-server-sub000/internal/config"
	"github.com/min-zu/license-server-sub000/internal/db"
	"github.com/min-zu/license-server-sub000/internal/license"
	"github.com/min-zu/license-server-sub000/internal/maintenance"
	"github.com/min-zu/license-server-sub000/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting license server")

	cfg := config.LoadServerConfig()

	if cfg.DatabaseURL == "" {
		logger.Error().Msg("DATABASE_URL environment variable is required")
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

	genCfg, err := config.LoadGeneratorConfig(cfg.GeneratorConfigPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load generator configuration")
		return 1
	}

	runner := license.NewExecRunner(time.Duration(genCfg.TimeoutSeconds)*time.Second, logger)
	generator, err := license.NewGenerator(genCfg, runner, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize key generator")
		return 1
	}

	engine := license.NewEngine(database, generator, logger)

	prom, err := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register metrics")
		return 1
	}

	routerCfg := api.Config{
		Environment:      cfg.Environment,
		AllowedOrigins:   cfg.CORSOrigins,
		CheckInRateLimit: int64(cfg.CheckInRateLimit),
		AdminRateLimit:   int64(cfg.AdminRateLimit),
		Version:          Version,
		Commit:           Commit,
		BuildDate:        BuildDate,
	}

	router, err := api.NewRouter(routerCfg, database, engine, prom, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	if cfg.SweepEnabled {
		sweeper := maintenance.NewSweeper(database, cfg.ExpirySweepSchedule, cfg.ReauthRetentionDays, logger)
		if err := sweeper.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start maintenance sweeper")
		}
		defer sweeper.Stop()
	} else {
		logger.Info().Msg("Maintenance sweep disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), time.Duration(cfg.ShutdownGraceSeconds)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}
