// Package config loads runtime configuration from the environment. Every
// variable has a default suitable for local development; production deploys
// override via RATEWATCH_* env vars.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// ListenAddr is the HTTP bind address for the API server.
	ListenAddr string

	// DBDriver selects the storage backend: memory, sqlite, postgres or
	// postgrespool.
	DBDriver string
	DBDSN    string

	// ScanWorkers bounds concurrent hotel lookups per scan session.
	ScanWorkers int
	// ScanInterval is the default cadence of the scheduled worker; the
	// scan_interval setting in storage overrides it at runtime.
	ScanInterval time.Duration

	// AuthEnabled toggles token authentication on the API.
	AuthEnabled bool
	// AdminUser/AdminPassword bootstrap the first admin account when the
	// user table is empty.
	AdminUser     string
	AdminPassword string

	// AlertWebhookURL receives pool-exhaustion and scan-failure alerts;
	// AlertWebhookKind selects the payload shape (slack, discord,
	// generic).
	AlertWebhookURL  string
	AlertWebhookKind string

	// SerpApiQuota / MakcorpsQuota are the per-key monthly quotas used
	// when seeding provider configuration.
	SerpApiQuota  int
	MakcorpsQuota int
}

func Load() Config {
	return Config{
		ListenAddr:       getenv("RATEWATCH_LISTEN", ":8080"),
		DBDriver:         getenv("RATEWATCH_DB_DRIVER", "sqlite"),
		DBDSN:            getenv("RATEWATCH_DB_DSN", "ratewatch.db"),
		ScanWorkers:      getenvInt("RATEWATCH_SCAN_WORKERS", 5),
		ScanInterval:     getenvDuration("RATEWATCH_SCAN_INTERVAL", 6*time.Hour),
		AuthEnabled:      getenvBool("RATEWATCH_AUTH_ENABLED", true),
		AdminUser:        getenv("RATEWATCH_ADMIN_USER", "admin"),
		AdminPassword:    os.Getenv("RATEWATCH_ADMIN_PASSWORD"),
		AlertWebhookURL:  os.Getenv("RATEWATCH_ALERT_WEBHOOK_URL"),
		AlertWebhookKind: getenv("RATEWATCH_ALERT_WEBHOOK_KIND", "generic"),
		SerpApiQuota:     getenvInt("RATEWATCH_SERPAPI_QUOTA", 250),
		MakcorpsQuota:    getenvInt("RATEWATCH_MAKCORPS_QUOTA", 1000),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
