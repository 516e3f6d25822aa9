// Package config loads relay server configuration from the environment.
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay server.
type Config struct {
	Port   string
	Env    string
	DBPath string

	// AllowedOrigins restricts WebSocket upgrades; empty means any origin
	// (development behavior).
	AllowedOrigins []string

	// HistoryRingSize bounds the in-memory change history retained per
	// workspace hub. The full log lives in SQLite.
	HistoryRingSize int
}

// Load reads configuration from environment variables. In development it
// loads from a .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DBPath:          getEnv("DB_PATH", "data/collab.db"),
		HistoryRingSize: 500,
	}

	if origins := os.Getenv("WS_ALLOWED_ORIGINS"); origins != "" {
		for _, entry := range strings.Split(origins, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, entry)
			}
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
