package forecast_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqicast/aqicast/internal/forecast"
	"github.com/aqicast/aqicast/internal/history"
)

func TestFitTrend_RecoversQuadratic(t *testing.T) {
	var points []forecast.TrendPoint
	for d := 0.0; d < 30; d++ {
		points = append(points, forecast.TrendPoint{ElapsedDays: d, AQI: 40 + 1.5*d - 0.02*d*d})
	}

	m, err := forecast.FitTrend(points)
	require.NoError(t, err)

	assert.InDelta(t, 40.0, m.Coefficients[0], 1e-6)
	assert.InDelta(t, 1.5, m.Coefficients[1], 1e-6)
	assert.InDelta(t, -0.02, m.Coefficients[2], 1e-6)
	assert.InDelta(t, 1.0, m.RSquared, 1e-9)
	assert.InDelta(t, 40+1.5*45-0.02*45*45, m.Predict(45), 1e-6)
	assert.Equal(t, 30, m.Points)
}

func TestFitTrend_Insufficient(t *testing.T) {
	_, err := forecast.FitTrend([]forecast.TrendPoint{{0, 10}, {1, 20}})
	assert.ErrorIs(t, err, forecast.ErrInsufficientHistory)

	// Three points on the same day cannot determine a quadratic.
	_, err = forecast.FitTrend([]forecast.TrendPoint{{2, 10}, {2, 20}, {2, 30}})
	assert.ErrorIs(t, err, forecast.ErrInsufficientHistory)
}

func TestTrendFromReadings(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	var readings []history.Reading
	for d := 0; d < 10; d++ {
		readings = append(readings, history.Reading{
			Timestamp:   start.AddDate(0, 0, d),
			PM1:         1,
			PM25:        5 + float64(d),
			Temperature: 25,
			Humidity:    50,
		})
	}

	m, err := forecast.TrendFromReadings(readings)
	require.NoError(t, err)
	assert.Equal(t, start, m.Start)
	assert.Greater(t, m.Coefficients[1], 0.0, "rising pm25 gives a rising trend")
	assert.Greater(t, m.At(start.AddDate(0, 0, 9)), m.At(start))
}

func TestElapsedDays(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0.0, forecast.ElapsedDays(start, start.Add(23*time.Hour)))
	assert.Equal(t, 2.0, forecast.ElapsedDays(start, start.Add(49*time.Hour)))
	assert.Equal(t, 0.0, forecast.ElapsedDays(time.Time{}, start))
}
