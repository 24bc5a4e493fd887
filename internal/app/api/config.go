package api

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"

	"github.com/Apurer/tableside/internal/platform/database"
)

// Config carries environment-driven settings for the tableside processes.
type Config struct {
	Port              string
	StoreDriver       string
	StoreDSN          string
	StoreTimeout      time.Duration
	ReconcileInterval time.Duration
	JWTSecret         string
	AllowedOrigins    []string
	TemporalAddress   string
	TemporalNamespace string
	TemporalDisabled  bool
}

// LoadConfig reads environment variables, applies defaults, and validates basic constraints.
// A .env file in the working directory is loaded first when present; real environment
// variables win over it.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:              envDefault("PORT", "8080"),
		StoreDriver:       strings.ToLower(envDefault("STORE_DRIVER", database.DriverSQLite)),
		StoreDSN:          envDefault("STORE_DSN", "tableside.db"),
		StoreTimeout:      5 * time.Second,
		ReconcileInterval: time.Minute,
		JWTSecret:         strings.TrimSpace(os.Getenv("JWT_SECRET")),
		AllowedOrigins:    splitList(os.Getenv("ALLOWED_ORIGINS")),
		TemporalAddress:   envDefault("TEMPORAL_ADDRESS", client.DefaultHostPort),
		TemporalNamespace: envDefault("TEMPORAL_NAMESPACE", client.DefaultNamespace),
		TemporalDisabled:  isTruthy(os.Getenv("TEMPORAL_DISABLED")),
	}
	switch cfg.StoreDriver {
	case database.DriverSQLite, database.DriverPostgres, database.DriverMySQL, database.DriverMemory:
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER must be one of sqlite, postgres, mysql, memory")
	}
	if raw := strings.TrimSpace(os.Getenv("STORE_TIMEOUT_MS")); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return Config{}, fmt.Errorf("STORE_TIMEOUT_MS must be a positive integer")
		}
		cfg.StoreTimeout = time.Duration(ms) * time.Millisecond
	}
	if raw := strings.TrimSpace(os.Getenv("RECONCILE_INTERVAL_SECONDS")); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("RECONCILE_INTERVAL_SECONDS must be a positive integer")
		}
		cfg.ReconcileInterval = time.Duration(seconds) * time.Second
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func isTruthy(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value == "1" || value == "true" || value == "yes"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
