package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqicast/aqicast/internal/forecast"
	"github.com/aqicast/aqicast/internal/model"
	"github.com/aqicast/aqicast/internal/worker"
)

var ict = time.FixedZone("ICT", 7*3600)

func fixedService() *forecast.Service {
	return forecast.NewService(forecast.ServiceConfig{
		Location: ict,
		Logger:   zerolog.Nop(),
		Now: func() time.Time {
			return time.Date(2025, 3, 1, 8, 0, 0, 0, ict)
		},
	})
}

func newJob(t *testing.T, src worker.ForecastSource, seed uint64) (*worker.SnapshotJob, string) {
	t.Helper()
	cfg := worker.DefaultSnapshotConfig()
	cfg.Path = filepath.Join(t.TempDir(), "forecast.json")
	cfg.Seed = seed
	return worker.NewSnapshotJob(worker.SnapshotJobConfig{
		Config:    cfg,
		Forecasts: src,
		Logger:    zerolog.Nop(),
	}), cfg.Path
}

func TestDefaultSnapshotConfig(t *testing.T) {
	cfg := worker.DefaultSnapshotConfig()

	assert.Equal(t, "forecast.json", cfg.Path)
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, 24, cfg.HourlyPoints)
	assert.Equal(t, 7, cfg.DailyPoints)
	assert.Equal(t, 12, cfg.DailyHour)
	assert.Zero(t, cfg.Seed)
	assert.InDelta(t, 11.598675, cfg.Coordinates.Latitude, 1e-9)
}

func TestSnapshotConfigFromEnv(t *testing.T) {
	t.Setenv("SNAPSHOT_PATH", "/srv/www/forecast.json")
	t.Setenv("SNAPSHOT_INTERVAL", "15m")
	t.Setenv("SNAPSHOT_HOURLY_POINTS", "48")
	t.Setenv("SNAPSHOT_SEED", "42")
	t.Setenv("SNAPSHOT_DAILY_POINTS", "not-a-number")

	cfg := worker.SnapshotConfigFromEnv()
	assert.Equal(t, "/srv/www/forecast.json", cfg.Path)
	assert.Equal(t, 15*time.Minute, cfg.Interval)
	assert.Equal(t, 48, cfg.HourlyPoints)
	assert.Equal(t, 7, cfg.DailyPoints)
	assert.Equal(t, uint64(42), cfg.Seed)
}

func TestNewSnapshotJob_ZeroConfigUsesDefaults(t *testing.T) {
	job := worker.NewSnapshotJob(worker.SnapshotJobConfig{Logger: zerolog.Nop()})
	assert.Equal(t, worker.DefaultSnapshotConfig(), job.Config())
}

func TestSnapshotJob_RunWritesDocument(t *testing.T) {
	job, path := newJob(t, fixedService(), 7)

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, result.SnapshotID)
	assert.Positive(t, result.Bytes)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"metadata", "current", "forecasts", "summaries", "aqi_reference", "parameters_info"} {
		assert.Contains(t, doc, key)
	}

	var decoded worker.Document
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, result.SnapshotID, decoded.Metadata.SnapshotID)
	assert.Equal(t, uint64(7), decoded.Metadata.Seed)
	assert.Equal(t, "EPA Calculation", decoded.Metadata.ModelType)
	assert.Equal(t, "ICT", decoded.Metadata.Timezone)

	assert.Equal(t, string(forecast.ProvenanceFormula), decoded.Current.Method)

	hourly := decoded.Forecasts.Hourly
	require.Len(t, hourly, 24)
	assert.True(t, hourly[0].Datetime.Equal(time.Date(2025, 3, 1, 8, 0, 0, 0, ict)))
	assert.Equal(t, 8, hourly[0].TemporalInfo.Hour)
	assert.True(t, hourly[0].TemporalInfo.IsWeekend, "2025-03-01 is a Saturday")

	daily := decoded.Forecasts.Daily
	require.Len(t, daily, 7)
	for i, entry := range daily {
		assert.Equal(t, 12, entry.TemporalInfo.Hour, "daily point %d", i)
	}
	assert.Equal(t, 5, daily[0].TemporalInfo.DayOfWeek)

	assert.Equal(t, 24, decoded.Summaries.Hourly.Count)
	assert.Equal(t, 7, decoded.Summaries.Daily.Count)
	require.NotNil(t, decoded.Summaries.Daily.PeakAt)

	good, ok := decoded.AQIReference["Good"]
	require.True(t, ok)
	assert.Equal(t, 0, good.Min)
	assert.Equal(t, 50, good.Max)
	assert.Len(t, decoded.AQIReference, 6)
	assert.Contains(t, decoded.ParametersInfo, "pm25")

	m := job.GetMetrics()
	assert.Equal(t, int64(1), m.TotalRuns)
	assert.Equal(t, int64(1), m.SuccessfulRuns)
	assert.Equal(t, result.SnapshotID, m.LastSnapshotID)

	// No temporary files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSnapshotJob_SeedIsDeterministic(t *testing.T) {
	job, _ := newJob(t, fixedService(), 99)

	first, err := job.Build(context.Background(), "a")
	require.NoError(t, err)
	second, err := job.Build(context.Background(), "b")
	require.NoError(t, err)

	assert.Equal(t, first.Forecasts, second.Forecasts)
	assert.Equal(t, first.Current, second.Current)
}

func TestSnapshotJob_RandomSeedIsRecorded(t *testing.T) {
	job, _ := newJob(t, fixedService(), 0)

	doc, err := job.Build(context.Background(), "x")
	require.NoError(t, err)
	assert.NotZero(t, doc.Metadata.Seed)
}

func TestSnapshotJob_ModelTypeFromBundle(t *testing.T) {
	holder := model.NewHolder(zerolog.Nop())
	holder.Set(&model.Bundle{ModelName: "Random Forest"})

	job := worker.NewSnapshotJob(worker.SnapshotJobConfig{
		Forecasts: fixedService(),
		Bundles:   holder,
		Logger:    zerolog.Nop(),
	})
	doc, err := job.Build(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "Random Forest", doc.Metadata.ModelType)
}

type failingSource struct {
	*forecast.Service
	calls atomic.Int32
}

func (f *failingSource) Range(_ context.Context, _, _ time.Time, _ forecast.Cadence, _ *rand.Rand) ([]forecast.Prediction, error) {
	f.calls.Add(1)
	return nil, errors.New("history backend down")
}

func TestSnapshotJob_FailureKeepsPreviousDocument(t *testing.T) {
	job, path := newJob(t, fixedService(), 1)
	_, err := job.Run(context.Background())
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	src := &failingSource{Service: fixedService()}
	cfg := job.Config()
	failing := worker.NewSnapshotJob(worker.SnapshotJobConfig{Config: cfg, Forecasts: src, Logger: zerolog.Nop()})

	_, err = failing.Run(context.Background())
	require.Error(t, err)
	assert.Positive(t, src.calls.Load())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	m := failing.GetMetrics()
	assert.Equal(t, int64(1), m.FailedRuns)
	assert.Contains(t, m.LastError, "history backend down")
	assert.Equal(t, int64(1), failing.MetricsSnapshot()["failed_runs"])
}

func TestSnapshotJob_NoForecaster(t *testing.T) {
	job, _ := newJob(t, nil, 1)
	_, err := job.Run(context.Background())
	assert.ErrorIs(t, err, worker.ErrNoForecaster)
}

func TestSnapshotJob_UltrafineDefaultWithoutHistory(t *testing.T) {
	job, _ := newJob(t, fixedService(), 3)
	doc, err := job.Build(context.Background(), "x")
	require.NoError(t, err)

	// Without history the synthesizer still produces an ultrafine default.
	require.NotNil(t, doc.Current.Parameters.Ultrafine)
	assert.Positive(t, *doc.Current.Parameters.Ultrafine)
}
