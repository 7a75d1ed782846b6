// Package config loads server configuration from the environment.
// A .env file in the working directory is honored when present.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port   string
	DBPath string

	// Logging
	LogLevel  string
	LogFormat string // json, console
}

// Load reads configuration from the environment with sensible defaults.
func Load() *Config {
	// Best effort: a missing .env is not an error.
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", "8080"),
		DBPath:    getEnv("DB_PATH", "documents.db"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
