// Package worker runs background forecast jobs for aqicast. The main job
// publishes a static forecast document that dashboards can serve without
// calling the API.
package worker

import (
	"os"
	"strconv"
	"time"
)

// Coordinates is the sensor position reported in snapshot metadata.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// SnapshotConfig holds configuration for the snapshot job.
type SnapshotConfig struct {
	// Path is where the document is written.
	// Default: forecast.json
	Path string

	// Interval between scheduled runs.
	// Default: 1 hour
	Interval time.Duration

	// Timeout bounds one run.
	// Default: 2 minutes
	Timeout time.Duration

	// HourlyPoints is the number of hourly predictions, starting now.
	// Default: 24
	HourlyPoints int

	// DailyPoints is the number of daily predictions, starting today.
	// Default: 7
	DailyPoints int

	// DailyHour is the local hour at which daily predictions are made.
	// Default: 12 (a zero config is replaced by DefaultSnapshotConfig)
	DailyHour int

	// Seed fixes the noise of every section. Zero draws a fresh seed per run.
	Seed uint64

	// LocationName and Coordinates describe the sensor.
	LocationName string
	Coordinates  Coordinates
}

// DefaultSnapshotConfig returns the default snapshot configuration.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		Path:         "forecast.json",
		Interval:     time.Hour,
		Timeout:      2 * time.Minute,
		HourlyPoints: 24,
		DailyPoints:  7,
		DailyHour:    12,
		LocationName: "Phnom Penh, Cambodia",
		Coordinates:  Coordinates{Latitude: 11.598675, Longitude: 104.8013326},
	}
}

// SnapshotConfigFromEnv overlays SNAPSHOT_* environment variables on the
// defaults.
func SnapshotConfigFromEnv() SnapshotConfig {
	cfg := DefaultSnapshotConfig()
	cfg.Path = getEnvOrDefault("SNAPSHOT_PATH", cfg.Path)
	cfg.LocationName = getEnvOrDefault("SNAPSHOT_LOCATION_NAME", cfg.LocationName)

	if d, err := time.ParseDuration(os.Getenv("SNAPSHOT_INTERVAL")); err == nil && d > 0 {
		cfg.Interval = d
	}
	if d, err := time.ParseDuration(os.Getenv("SNAPSHOT_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	if n, err := strconv.Atoi(os.Getenv("SNAPSHOT_HOURLY_POINTS")); err == nil && n > 0 {
		cfg.HourlyPoints = n
	}
	if n, err := strconv.Atoi(os.Getenv("SNAPSHOT_DAILY_POINTS")); err == nil && n > 0 {
		cfg.DailyPoints = n
	}
	if seed, err := strconv.ParseUint(os.Getenv("SNAPSHOT_SEED"), 10, 64); err == nil {
		cfg.Seed = seed
	}
	if lat, err := strconv.ParseFloat(os.Getenv("SNAPSHOT_LATITUDE"), 64); err == nil {
		cfg.Coordinates.Latitude = lat
	}
	if lon, err := strconv.ParseFloat(os.Getenv("SNAPSHOT_LONGITUDE"), 64); err == nil {
		cfg.Coordinates.Longitude = lon
	}
	return cfg
}

func (c SnapshotConfig) withDefaults() SnapshotConfig {
	def := DefaultSnapshotConfig()
	if c == (SnapshotConfig{}) {
		return def
	}
	if c.Path == "" {
		c.Path = def.Path
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.HourlyPoints <= 0 {
		c.HourlyPoints = def.HourlyPoints
	}
	if c.DailyPoints <= 0 {
		c.DailyPoints = def.DailyPoints
	}
	if c.DailyHour < 0 || c.DailyHour > 23 {
		c.DailyHour = def.DailyHour
	}
	return c
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
