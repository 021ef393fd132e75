package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"

	"coedit/pkg/logger"
)

// Config holds the process startup configuration. Everything comes from
// the environment; there is no other CLI surface.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string
	// DatabaseURL is the Postgres connection string. When empty the
	// server falls back to the in-memory document store.
	DatabaseURL string
}

// Load reads configuration from a .env file if present, falling back to
// OS environment variables.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	cfg := Config{
		Addr:        strings.TrimSpace(os.Getenv("ADDR")),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return cfg
}
