// Package config loads client configuration from the environment, with an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/nstepura/examly/internal/storage"
)

// Config carries everything the client binary needs to start.
type Config struct {
	APIURL      string        // backend base URL
	DBPath      string        // local sqlite database
	HTTPTimeout time.Duration // per-request timeout
	LogPath     string        // zap output; keeps the terminal clean
}

// Defaults applied when neither env nor flags provide a value.
const (
	defaultAPIURL  = "http://localhost:8000/api"
	defaultTimeout = 30 * time.Second
)

// Load reads EXAMLY_* variables, loading a .env file first if one exists.
func Load() (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:      defaultAPIURL,
		DBPath:      storage.DefaultPath(),
		HTTPTimeout: defaultTimeout,
		LogPath:     "examly.log",
	}
	if v := os.Getenv("EXAMLY_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("EXAMLY_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("EXAMLY_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv("EXAMLY_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse EXAMLY_HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	return cfg, nil
}
