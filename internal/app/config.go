// Package app assembles the forecasting engine from environment
// configuration. The API server and the snapshot worker share it so both
// read history and models the same way.
package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// History backends.
const (
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// ErrUnknownBackend is returned for an unsupported HISTORY_BACKEND.
var ErrUnknownBackend = errors.New("unknown history backend")

// Config holds engine configuration.
type Config struct {
	// Location is the forecast zone name.
	// Default: Asia/Phnom_Penh
	Location string

	// HistoryBackend is csv, postgres or memory.
	// Default: csv when HistoryCSVPath is set, memory otherwise
	HistoryBackend string

	// HistoryCSVPath is an OpenAQ export. With the postgres backend it is
	// imported once at startup when set.
	HistoryCSVPath string

	// HistoryWindow limits aggregation to recent readings. Zero uses all.
	HistoryWindow time.Duration

	// HistoryCacheTTL is how long aggregates are cached.
	// Default: 15 minutes
	HistoryCacheTTL time.Duration

	// ModelBundlePath or ModelBundleURL locate the trained model. Neither
	// set means formula only.
	ModelBundlePath string
	ModelBundleURL  string
}

// ConfigFromEnv reads engine settings from the environment.
func ConfigFromEnv() Config {
	cfg := Config{
		Location:        getEnvOrDefault("FORECAST_LOCATION", "Asia/Phnom_Penh"),
		HistoryBackend:  strings.ToLower(os.Getenv("HISTORY_BACKEND")),
		HistoryCSVPath:  os.Getenv("HISTORY_CSV_PATH"),
		ModelBundlePath: os.Getenv("MODEL_BUNDLE_PATH"),
		ModelBundleURL:  os.Getenv("MODEL_BUNDLE_URL"),
	}
	if d, err := time.ParseDuration(os.Getenv("HISTORY_WINDOW")); err == nil {
		cfg.HistoryWindow = d
	}
	if d, err := time.ParseDuration(os.Getenv("HISTORY_CACHE_TTL")); err == nil {
		cfg.HistoryCacheTTL = d
	}
	return cfg
}

func (c Config) backend() (string, error) {
	switch c.HistoryBackend {
	case "":
		if c.HistoryCSVPath != "" {
			return BackendCSV, nil
		}
		return BackendMemory, nil
	case BackendCSV:
		if c.HistoryCSVPath == "" {
			return "", fmt.Errorf("%w: csv backend needs HISTORY_CSV_PATH", ErrUnknownBackend)
		}
		return BackendCSV, nil
	case BackendPostgres, BackendMemory:
		return c.HistoryBackend, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, c.HistoryBackend)
	}
}

// LoadDotEnv loads environment files, .env by default, without overriding
// variables already set. Missing files are not an error; unreadable or
// malformed ones are.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
