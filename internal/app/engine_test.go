package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqicast/aqicast/internal/app"
	"github.com/aqicast/aqicast/internal/forecast"
)

const export = `location_id,sensors_id,location,datetimeUtc,datetimeLocal,timezone,latitude,longitude,parameter,units,value
1,11,Phnom Penh,2024-03-01T01:00:00Z,2024-03-01T08:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,pm1,µg/m³,14.0
1,12,Phnom Penh,2024-03-01T01:00:00Z,2024-03-01T08:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,pm25,µg/m³,20.0
1,13,Phnom Penh,2024-03-01T01:00:00Z,2024-03-01T08:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,temperature,c,29.5
1,14,Phnom Penh,2024-03-01T01:00:00Z,2024-03-01T08:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,relativehumidity,%,70
`

const artifact = `{
	"model_name": "Linear Regression",
	"feature_columns": ["pm25"],
	"model": {"kind": "linear_regression", "intercept": 1, "coefficients": [2]}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("FORECAST_LOCATION", "")
	t.Setenv("HISTORY_BACKEND", "Postgres")
	t.Setenv("HISTORY_CACHE_TTL", "5m")
	t.Setenv("MODEL_BUNDLE_URL", "https://models.example.com/aqi.json")

	cfg := app.ConfigFromEnv()
	assert.Equal(t, "Asia/Phnom_Penh", cfg.Location)
	assert.Equal(t, app.BackendPostgres, cfg.HistoryBackend)
	assert.Equal(t, "5m0s", cfg.HistoryCacheTTL.String())
	assert.Equal(t, "https://models.example.com/aqi.json", cfg.ModelBundleURL)
}

func TestNew_CSVHistoryAndFileModel(t *testing.T) {
	ctx := context.Background()
	engine, err := app.New(ctx, app.Config{
		Location:        "Asia/Phnom_Penh",
		HistoryCSVPath:  writeFile(t, "history.csv", export),
		ModelBundlePath: writeFile(t, "model.json", artifact),
	}, app.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer engine.Close()

	assert.Equal(t, "Asia/Phnom_Penh", engine.Location.String())
	assert.Equal(t, 1, engine.History.CacheStatus().ReadingCount)
	require.NotNil(t, engine.Models.Current())
	assert.Equal(t, "Linear Regression", engine.Models.Current().ModelName)
	assert.Contains(t, engine.Breakers.Names(), app.BreakerModelInference)

	current, err := engine.Forecasts.Current(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, forecast.ProvenanceModel, current.Provenance)
	assert.Equal(t, engine.Location, current.Timestamp.Location())
}

func TestNew_UTCHistoryConvertedToForecastZone(t *testing.T) {
	csv := writeFile(t, "utc.csv", `datetimeUtc,parameter,value
2024-03-01 01:00:00,pm1,14
2024-03-01 01:00:00,pm25,20
2024-03-01 01:00:00,temperature,29.5
2024-03-01 01:00:00,relativehumidity,70
`)
	engine, err := app.New(context.Background(), app.Config{
		Location:       "Asia/Phnom_Penh",
		HistoryCSVPath: csv,
	}, app.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer engine.Close()

	snapshot, err := engine.History.GetSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Readings, 1)
	ts := snapshot.Readings[0].Timestamp
	assert.Equal(t, "Asia/Phnom_Penh", ts.Location().String())
	assert.Equal(t, 8, ts.Hour())
}

func TestNew_MissingModelFallsBackToFormula(t *testing.T) {
	engine, err := app.New(context.Background(), app.Config{
		Location:        "UTC",
		ModelBundlePath: filepath.Join(t.TempDir(), "absent.json"),
	}, app.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer engine.Close()

	assert.Nil(t, engine.Models.Current())
	assert.Error(t, engine.Reload(context.Background()))

	current, err := engine.Forecasts.Current(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, forecast.ProvenanceFormula, current.Provenance)
}

func TestNew_HTTPModelRegistersFetchBreaker(t *testing.T) {
	engine, err := app.New(context.Background(), app.Config{
		Location:       "UTC",
		ModelBundleURL: "http://127.0.0.1:1/model.json",
	}, app.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer engine.Close()

	assert.Contains(t, engine.Breakers.Names(), app.BreakerModelFetch)
	assert.Nil(t, engine.Models.Current())
}

func TestNew_ConfigErrors(t *testing.T) {
	_, err := app.New(context.Background(), app.Config{Location: "Mars/Olympus"}, app.Options{Logger: zerolog.Nop()})
	assert.Error(t, err)

	_, err = app.New(context.Background(), app.Config{Location: "UTC", HistoryBackend: "sqlite"}, app.Options{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, app.ErrUnknownBackend)

	_, err = app.New(context.Background(), app.Config{Location: "UTC", HistoryBackend: app.BackendCSV}, app.Options{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, app.ErrUnknownBackend)
}

func TestLoadDotEnv(t *testing.T) {
	t.Cleanup(func() { _ = os.Unsetenv("AQICAST_DOTENV_VALUE") })

	dir := t.TempDir()
	assert.NoError(t, app.LoadDotEnv(filepath.Join(dir, "missing.env")))

	valid := writeFile(t, "valid.env", "AQICAST_DOTENV_VALUE=loaded\n")
	require.NoError(t, app.LoadDotEnv(valid))
	assert.Equal(t, "loaded", os.Getenv("AQICAST_DOTENV_VALUE"))

	malformed := writeFile(t, "malformed.env", "AQICAST_DOTENV_BROKEN=\"unterminated\n")
	err := app.LoadDotEnv(malformed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), malformed)

	// A directory exists but cannot be read as a file.
	assert.Error(t, app.LoadDotEnv(dir))
}
