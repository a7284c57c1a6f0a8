// Package api provides the HTTP API for the license server.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/min-zu/license-server-sub000/internal/api/handlers"
	"github.com/min-zu/license-server-sub000/internal/api/middleware"
	"github.com/min-zu/license-server-sub000/internal/auth"
	"github.com/min-zu/license-server-sub000/internal/config"
	"github.com/min-zu/license-server-sub000/internal/db"
	"github.com/min-zu/license-server-sub000/internal/license"
	"github.com/min-zu/license-server-sub000/internal/metrics"
	"github.com/rs/zerolog"
)

// Config holds configuration for the API router.
type Config struct {
	// Environment controls CORS strictness.
	Environment config.Environment
	// AllowedOrigins for CORS. Empty means all origins allowed in dev mode.
	AllowedOrigins []string
	// CheckInRateLimit is the number of device check-ins allowed per minute.
	CheckInRateLimit int64
	// AdminRateLimit is the number of admin API requests allowed per minute.
	AdminRateLimit int64
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Environment:      config.EnvDevelopment,
		AllowedOrigins:   []string{},
		CheckInRateLimit: 600,
		AdminRateLimit:   300,
		Version:          "dev",
		Commit:           "unknown",
		BuildDate:        "unknown",
	}
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(
	cfg Config,
	database *db.DB,
	engine *license.Engine,
	prom *metrics.PrometheusMetrics,
	logger zerolog.Logger,
) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment))

	// Public device endpoint with its own rate budget.
	checkinLimiter, err := middleware.NewRateLimiter(cfg.CheckInRateLimit, "1m")
	if err != nil {
		return nil, err
	}
	checkinHandler := handlers.NewCheckinHandler(engine, prom, logger)
	r.Engine.GET("/checkin", checkinLimiter, checkinHandler.CheckIn)

	// Unauthenticated operational endpoints.
	handlers.NewHealthHandler(database, logger).RegisterPublicRoutes(r.Engine)
	handlers.NewVersionHandler(cfg.Version, cfg.Commit, cfg.BuildDate, logger).RegisterPublicRoutes(r.Engine)
	handlers.NewMetricsHandler(prom, database, logger).RegisterPublicRoutes(r.Engine)

	// Admin API behind API key auth and a separate rate budget.
	adminLimiter, err := middleware.NewRateLimiter(cfg.AdminRateLimit, "1m")
	if err != nil {
		return nil, err
	}
	validator := auth.NewAPIKeyValidator(database, logger)

	v1 := r.Engine.Group("/api/v1")
	v1.Use(adminLimiter)
	v1.Use(middleware.AdminKeyMiddleware(validator, logger))
	{
		handlers.NewLicensesHandler(database, logger).RegisterRoutes(v1)
		handlers.NewAdminKeysHandler(database, logger).RegisterRoutes(v1)
	}

	return r, nil
}
