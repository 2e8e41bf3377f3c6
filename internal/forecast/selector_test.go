package forecast_test

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/aqicast/aqicast/internal/airquality"
	"github.com/aqicast/aqicast/internal/forecast"
	"github.com/aqicast/aqicast/internal/history"
	"github.com/aqicast/aqicast/internal/model"
	"github.com/aqicast/aqicast/internal/resilience"
)

var allFeatures = []string{
	"pm1", "pm25", "temperature", "humidity", "ultrafine_particles",
	"hour", "day_of_week", "month", "is_weekend",
}

// recordingRegressor returns a fixed value and remembers its input.
type recordingRegressor struct {
	value float64
	err   error
	calls atomic.Int32
	last  []float64
}

func (r *recordingRegressor) Predict(x []float64) (float64, error) {
	r.calls.Add(1)
	r.last = append([]float64(nil), x...)
	return r.value, r.err
}

type panickingRegressor struct{}

func (panickingRegressor) Predict([]float64) (float64, error) {
	panic("index out of range")
}

type fixedSource struct {
	bundle *model.Bundle
}

func (f fixedSource) Current() *model.Bundle { return f.bundle }

func sampleReading() history.Reading {
	return history.Reading{
		// Saturday 15:00
		Timestamp:   time.Date(2024, 6, 15, 15, 0, 0, 0, time.UTC),
		PM1:         18.2,
		PM25:        25.5,
		Temperature: 30.5,
		Humidity:    65,
		Ultrafine:   1700,
	}
}

func formula(t *testing.T, r history.Reading) airquality.Result {
	t.Helper()
	res, err := airquality.Convert(r.PM25,
		airquality.WithPM1(r.PM1),
		airquality.WithTemperature(r.Temperature),
		airquality.WithHumidity(r.Humidity),
	)
	require.NoError(t, err)
	return res
}

func TestSelector_NoBundleUsesFormula(t *testing.T) {
	selector := forecast.NewSelector(forecast.SelectorConfig{Logger: zerolog.Nop()})
	r := sampleReading()

	out, err := selector.Predict(r)
	require.NoError(t, err)
	assert.Equal(t, forecast.ProvenanceFormula, out.Provenance)
	assert.Equal(t, formula(t, r), out.Result)
	assert.Equal(t, airquality.CategoryModerate, out.Result.Category)
}

func TestSelector_ModelPrediction(t *testing.T) {
	reg := &recordingRegressor{value: 87.46}
	bundle := &model.Bundle{Regressor: reg, FeatureNames: allFeatures, ModelName: "Random Forest"}
	selector := forecast.NewSelector(forecast.SelectorConfig{
		Models: fixedSource{bundle: bundle},
		Logger: zerolog.Nop(),
	})

	out, err := selector.Predict(sampleReading())
	require.NoError(t, err)
	assert.Equal(t, forecast.ProvenanceModel, out.Provenance)
	assert.Equal(t, "Random Forest", out.ModelName)
	assert.Equal(t, 87.5, out.Result.AQI)
	assert.Equal(t, airquality.CategoryModerate, out.Result.Category)
	assert.Equal(t, "#FFFF00", out.Result.Color)

	assert.Equal(t, []float64{18.2, 25.5, 30.5, 65, 1700, 15, 5, 6, 1}, reg.last)
}

func TestSelector_FeatureOrderFollowsBundle(t *testing.T) {
	stats := history.NewStats([]history.Reading{
		{Timestamp: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), PM1: 1, PM25: 2, Temperature: 3, Humidity: 4, Ultrafine: 1200},
	})
	selector := forecast.NewSelector(forecast.SelectorConfig{Stats: stats, Logger: zerolog.Nop()})

	r := sampleReading()
	r.Ultrafine = 0
	x := selector.Features(r, []string{"month", "ultrafine_particles", "days_from_start", "pm25", "wind_speed"})
	assert.Equal(t, []float64{6, 1200, 14, 25.5, 0}, x)
}

func TestSelector_ScalesLinearModels(t *testing.T) {
	reg := &recordingRegressor{value: 42}
	bundle := &model.Bundle{
		Regressor:    reg,
		Scaler:       &model.StandardScaler{Mean: []float64{20}, Scale: []float64{5}},
		FeatureNames: []string{"pm25"},
		ModelName:    "Linear Regression",
	}
	selector := forecast.NewSelector(forecast.SelectorConfig{Logger: zerolog.Nop()})

	_, err := selector.PredictWith(sampleReading(), bundle)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, reg.last[0], 1e-9)

	// Tree models ignore a bundled scaler.
	bundle.ModelName = "Gradient Boosting"
	_, err = selector.PredictWith(sampleReading(), bundle)
	require.NoError(t, err)
	assert.Equal(t, 25.5, reg.last[0])
}

func TestSelector_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name      string
		regressor model.Regressor
	}{
		{"error", model.FailingRegressor{}},
		{"panic", panickingRegressor{}},
		{"nan", &recordingRegressor{value: math.NaN()}},
		{"inf", &recordingRegressor{value: math.Inf(1)}},
		{"wrong width", &model.LinearRegressor{Coefficients: []float64{1, 2}}},
	}

	r := sampleReading()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle := &model.Bundle{Regressor: tt.regressor, FeatureNames: allFeatures, ModelName: "broken"}
			selector := forecast.NewSelector(forecast.SelectorConfig{Logger: zerolog.Nop()})

			out, err := selector.PredictWith(r, bundle)
			require.NoError(t, err)
			assert.Equal(t, forecast.ProvenanceFallback, out.Provenance)
			assert.Equal(t, formula(t, r), out.Result)
			assert.ErrorIs(t, out.Err, model.ErrPredictionFailed)
		})
	}
}

func TestSelector_NegativeOutputClamped(t *testing.T) {
	bundle := &model.Bundle{Regressor: &recordingRegressor{value: -12}, FeatureNames: allFeatures}
	selector := forecast.NewSelector(forecast.SelectorConfig{Logger: zerolog.Nop()})

	out, err := selector.PredictWith(sampleReading(), bundle)
	require.NoError(t, err)
	assert.Equal(t, forecast.ProvenanceModel, out.Provenance)
	assert.Equal(t, 0.0, out.Result.AQI)
	assert.Equal(t, airquality.CategoryGood, out.Result.Category)
}

func TestSelector_InvalidReading(t *testing.T) {
	bundle := &model.Bundle{Regressor: &recordingRegressor{value: 50}, FeatureNames: allFeatures}
	selector := forecast.NewSelector(forecast.SelectorConfig{Logger: zerolog.Nop()})

	r := sampleReading()
	r.PM25 = math.NaN()
	_, err := selector.PredictWith(r, bundle)
	assert.ErrorIs(t, err, airquality.ErrInvalidInput)
}

func trippingBreakers() func() *gobreaker.CircuitBreaker[float64] {
	cfg := resilience.DefaultCircuitBreakerConfig("model-inference")
	cfg.Timeout = time.Hour
	return func() *gobreaker.CircuitBreaker[float64] {
		return resilience.NewCircuitBreaker[float64](cfg)
	}
}

func TestSelector_BreakerSkipsModel(t *testing.T) {
	reg := &recordingRegressor{err: errors.New("boom")}
	bundle := &model.Bundle{Regressor: reg, FeatureNames: allFeatures, ModelName: "flaky"}

	selector := forecast.NewSelector(forecast.SelectorConfig{
		Models:     fixedSource{bundle: bundle},
		NewBreaker: trippingBreakers(),
		Logger:     zerolog.Nop(),
	})

	for i := 0; i < 10; i++ {
		out, err := selector.Predict(sampleReading())
		require.NoError(t, err)
		assert.Equal(t, forecast.ProvenanceFallback, out.Provenance)
	}

	assert.Equal(t, gobreaker.StateOpen, selector.Breaker().State())
	assert.Equal(t, int32(5), reg.calls.Load(), "open breaker stops calling the model")
}

func TestSelector_ReloadResetsBreaker(t *testing.T) {
	holder := model.NewHolder(zerolog.Nop())
	holder.Set(&model.Bundle{Regressor: model.FailingRegressor{}, FeatureNames: allFeatures, ModelName: "broken"})

	var built int
	newBreaker := trippingBreakers()
	selector := forecast.NewSelector(forecast.SelectorConfig{
		Models: holder,
		NewBreaker: func() *gobreaker.CircuitBreaker[float64] {
			built++
			return newBreaker()
		},
		Logger: zerolog.Nop(),
	})

	for i := 0; i < 10; i++ {
		_, err := selector.Predict(sampleReading())
		require.NoError(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, selector.Breaker().State())

	holder.Set(&model.Bundle{
		Regressor:    &model.LinearRegressor{Intercept: 3, Coefficients: []float64{2}},
		FeatureNames: []string{"pm25"},
		ModelName:    "Linear Regression",
	})

	out, err := selector.Predict(sampleReading())
	require.NoError(t, err)
	assert.Equal(t, forecast.ProvenanceModel, out.Provenance)
	assert.Equal(t, 54.0, out.Result.AQI)
	assert.Equal(t, gobreaker.StateClosed, selector.Breaker().State())
	assert.Equal(t, 2, built)

	// The same bundle keeps its breaker.
	_, err = selector.Predict(sampleReading())
	require.NoError(t, err)
	assert.Equal(t, 2, built)
}

func TestSelector_FeatureDefaultsWithoutHistory(t *testing.T) {
	selector := forecast.NewSelector(forecast.SelectorConfig{Logger: zerolog.Nop()})

	x := selector.Features(history.Reading{PM25: 20}, []string{"pm25", "ultrafine_particles"})
	assert.Equal(t, []float64{20, 1500}, x)

	defaults := forecast.DefaultSynthesisConfig()
	defaults.DefaultUltrafine = 900
	selector = forecast.NewSelector(forecast.SelectorConfig{Defaults: &defaults, Logger: zerolog.Nop()})

	x = selector.Features(history.Reading{PM25: 20}, []string{"ultrafine_particles", "wind_speed"})
	assert.Equal(t, []float64{900, 0}, x)
}

func TestSelector_UltrafineDefaultReachesModel(t *testing.T) {
	reg := &recordingRegressor{value: 40}
	bundle := &model.Bundle{
		Regressor:    reg,
		FeatureNames: []string{"pm25", "ultrafine_particles"},
		ModelName:    "Random Forest",
	}
	selector := forecast.NewSelector(forecast.SelectorConfig{Models: fixedSource{bundle: bundle}, Logger: zerolog.Nop()})

	r := sampleReading()
	r.Ultrafine = 0
	out, err := selector.Predict(r)
	require.NoError(t, err)
	assert.Equal(t, forecast.ProvenanceModel, out.Provenance)
	assert.Equal(t, []float64{25.5, 1500}, reg.last)
}

func TestSelector_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := forecast.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	bundle := &model.Bundle{Regressor: &recordingRegressor{value: 30}, FeatureNames: allFeatures}
	selector := forecast.NewSelector(forecast.SelectorConfig{Metrics: metrics, Logger: zerolog.Nop()})

	for i := 0; i < 3; i++ {
		_, err := selector.PredictWith(sampleReading(), bundle)
		require.NoError(t, err)
	}
	_, err = selector.PredictWith(sampleReading(), nil)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "aqicast.prediction.total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("provenance")
				totals[v.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), totals["ML_MODEL"])
	assert.Equal(t, int64(1), totals["EPA_FORMULA"])
}

func TestProvenance_Description(t *testing.T) {
	assert.Equal(t, "Machine Learning Model", forecast.ProvenanceModel.Description())
	assert.Equal(t, "EPA Calculation", forecast.ProvenanceFormula.Description())
	assert.Equal(t, "EPA Calculation (Fallback)", forecast.ProvenanceFallback.Description())
}
