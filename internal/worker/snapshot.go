package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aqicast/aqicast/internal/forecast"
)

// ErrNoForecaster is returned when a job is run without a forecast source.
var ErrNoForecaster = errors.New("snapshot job has no forecast source")

// ForecastSource produces the predictions a snapshot is built from.
// *forecast.Service implements it.
type ForecastSource interface {
	Now() time.Time
	Location() *time.Location
	Current(ctx context.Context, rng *rand.Rand) (forecast.Prediction, error)
	Range(ctx context.Context, start, end time.Time, cadence forecast.Cadence, rng *rand.Rand) ([]forecast.Prediction, error)
}

// SnapshotJob builds and publishes the static forecast document.
type SnapshotJob struct {
	config    SnapshotConfig
	forecasts ForecastSource
	bundles   forecast.BundleSource
	logger    zerolog.Logger

	// run serializes writers of the same path.
	run sync.Mutex

	metrics *SnapshotMetrics
}

// SnapshotMetrics tracks snapshot job statistics.
type SnapshotMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration

	// Last outcome
	LastSnapshotID string
	LastError      string
}

// SnapshotJobConfig holds configuration for creating a SnapshotJob.
type SnapshotJobConfig struct {
	Config    SnapshotConfig
	Forecasts ForecastSource

	// Bundles names the active model in metadata. Optional.
	Bundles forecast.BundleSource

	Logger zerolog.Logger
}

// NewSnapshotJob creates a new snapshot job.
func NewSnapshotJob(cfg SnapshotJobConfig) *SnapshotJob {
	return &SnapshotJob{
		config:    cfg.Config.withDefaults(),
		forecasts: cfg.Forecasts,
		bundles:   cfg.Bundles,
		logger:    cfg.Logger,
		metrics:   &SnapshotMetrics{},
	}
}

// Config returns the effective configuration.
func (j *SnapshotJob) Config() SnapshotConfig {
	return j.config
}

// SnapshotResult contains the result of one run.
type SnapshotResult struct {
	SnapshotID string
	Path       string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Bytes      int
	Document   *Document
}

// Run builds the document and writes it to the configured path.
func (j *SnapshotJob) Run(ctx context.Context) (*SnapshotResult, error) {
	j.run.Lock()
	defer j.run.Unlock()

	startTime := time.Now()
	result := &SnapshotResult{
		SnapshotID: uuid.NewString(),
		Path:       j.config.Path,
		StartTime:  startTime,
	}

	logger := j.logger.With().Str("snapshot_id", result.SnapshotID).Logger()
	logger.Info().Str("path", j.config.Path).Msg("starting forecast snapshot job")

	runCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	doc, err := j.Build(runCtx, result.SnapshotID)
	if err == nil {
		var data []byte
		data, err = json.MarshalIndent(doc, "", "  ")
		if err == nil {
			err = writeFileAtomic(j.config.Path, data)
			result.Bytes = len(data)
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)
	result.Document = doc
	j.updateMetrics(result, err)

	if err != nil {
		logger.Error().Err(err).Dur("duration", result.Duration).Msg("forecast snapshot job failed")
		return result, err
	}

	logger.Info().
		Dur("duration", result.Duration).
		Int("bytes", result.Bytes).
		Int("hourly", len(doc.Forecasts.Hourly)).
		Int("daily", len(doc.Forecasts.Daily)).
		Float64("current_aqi", doc.Current.AQI).
		Msg("forecast snapshot job completed")

	return result, nil
}

// Build assembles the document without writing it. Each section draws from
// its own random source derived from the run seed.
func (j *SnapshotJob) Build(ctx context.Context, snapshotID string) (*Document, error) {
	if j.forecasts == nil {
		return nil, ErrNoForecaster
	}

	seed := j.config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	now := j.forecasts.Now()
	loc := j.forecasts.Location()

	doc := &Document{
		Metadata: DocumentMetadata{
			APIVersion:  DocumentVersion,
			SnapshotID:  snapshotID,
			GeneratedAt: now,
			ModelType:   j.modelType(),
			Location:    j.config.LocationName,
			Coordinates: CoordinatesDoc{
				Latitude:  j.config.Coordinates.Latitude,
				Longitude: j.config.Coordinates.Longitude,
			},
			Timezone:    loc.String(),
			Seed:        seed,
			Description: "Air quality forecast generated from historical sensor aggregates",
		},
		AQIReference:   aqiReference(),
		ParametersInfo: parametersInfo,
	}

	hourlyStart := now
	hourlyEnd := hourlyStart.Add(time.Duration(j.config.HourlyPoints-1) * time.Hour)

	y, m, d := now.Date()
	dailyStart := time.Date(y, m, d, j.config.DailyHour, 0, 0, 0, loc)
	dailyEnd := dailyStart.Add(time.Duration(j.config.DailyPoints-1) * 24 * time.Hour)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		current, err := j.forecasts.Current(gctx, forecast.NewRand(seed))
		if err != nil {
			return fmt.Errorf("current: %w", err)
		}
		doc.Current = toCurrent(current)
		return nil
	})

	g.Go(func() error {
		predictions, err := j.forecasts.Range(gctx, hourlyStart, hourlyEnd, forecast.CadenceHourly, forecast.NewRand(seed+1))
		if err != nil {
			return fmt.Errorf("hourly: %w", err)
		}
		doc.Forecasts.Hourly = toEntries(predictions)
		doc.Summaries.Hourly = toSummary(forecast.Summarize(predictions))
		return nil
	})

	g.Go(func() error {
		predictions, err := j.forecasts.Range(gctx, dailyStart, dailyEnd, forecast.CadenceDaily, forecast.NewRand(seed+2))
		if err != nil {
			return fmt.Errorf("daily: %w", err)
		}
		doc.Forecasts.Daily = toEntries(predictions)
		doc.Summaries.Daily = toSummary(forecast.Summarize(predictions))
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (j *SnapshotJob) modelType() string {
	if j.bundles != nil {
		if bundle := j.bundles.Current(); bundle != nil {
			return bundle.ModelName
		}
	}
	return forecast.ProvenanceFormula.Description()
}

// writeFileAtomic replaces path with data so readers never observe a partial
// document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { //nolint:gosec // the snapshot is public
		return fmt.Errorf("chmod snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (j *SnapshotJob) updateMetrics(result *SnapshotResult, err error) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	if err != nil {
		j.metrics.FailedRuns++
		j.metrics.LastError = err.Error()
	} else {
		j.metrics.SuccessfulRuns++
		j.metrics.LastSnapshotID = result.SnapshotID
		j.metrics.LastError = ""
	}
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *SnapshotJob) GetMetrics() SnapshotMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return SnapshotMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		SuccessfulRuns:  j.metrics.SuccessfulRuns,
		FailedRuns:      j.metrics.FailedRuns,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		TotalDuration:   j.metrics.TotalDuration,
		LastSnapshotID:  j.metrics.LastSnapshotID,
		LastError:       j.metrics.LastError,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *SnapshotJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"successful_runs":   m.SuccessfulRuns,
		"failed_runs":       m.FailedRuns,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
		"last_snapshot_id":  m.LastSnapshotID,
		"last_error":        m.LastError,
	}
}

// Schedule runs the job immediately and then every configured interval until
// ctx is cancelled. Failed runs are logged and retried on the next tick.
func (j *SnapshotJob) Schedule(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	_, _ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("snapshot schedule stopped")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
