// Package config provides configuration management for the license server.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment          Environment
	ListenAddr           string   // HTTP listen address (default: :8080)
	DatabaseURL          string   // Postgres connection string
	CORSOrigins          []string // allowed CORS origins, comma separated in CORS_ORIGINS
	AdminRateLimit       int      // admin API requests per minute (default: 300)
	CheckInRateLimit     int      // device check-in requests per minute (default: 600)
	GeneratorConfigPath  string   // path to the generator YAML config, empty for defaults
	ReauthRetentionDays  int      // audit rows older than this are swept; 0 keeps them forever (default: 365)
	ExpirySweepSchedule  string   // cron schedule for the expiry sweep (default: hourly)
	SweepEnabled         bool     // run the periodic maintenance sweep (default: true)
	ShutdownGraceSeconds int      // graceful shutdown window (default: 15)
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	var origins []string
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}

	// 0 keeps audit rows forever; negative values are invalid.
	retentionDays := getEnvInt("REAUTH_RETENTION_DAYS", 365)
	if retentionDays < 0 {
		retentionDays = 365
	}

	sweepSchedule := os.Getenv("EXPIRY_SWEEP_SCHEDULE")
	if sweepSchedule == "" {
		sweepSchedule = "@hourly"
	}

	return ServerConfig{
		Environment:          env,
		ListenAddr:           listenAddr,
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		CORSOrigins:          origins,
		AdminRateLimit:       getEnvInt("ADMIN_RATE_LIMIT", 300),
		CheckInRateLimit:     getEnvInt("CHECKIN_RATE_LIMIT", 600),
		GeneratorConfigPath:  os.Getenv("GENERATOR_CONFIG_PATH"),
		ReauthRetentionDays:  retentionDays,
		ExpirySweepSchedule:  sweepSchedule,
		SweepEnabled:         getEnvBool("EXPIRY_SWEEP_ENABLED", true),
		ShutdownGraceSeconds: getEnvInt("SHUTDOWN_GRACE_SECONDS", 15),
	}
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
