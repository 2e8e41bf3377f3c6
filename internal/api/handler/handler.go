// Package handler provides HTTP handlers for the aqicast API.
package handler

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/aqicast/aqicast/internal/airquality"
	"github.com/aqicast/aqicast/internal/api/models"
	"github.com/aqicast/aqicast/internal/forecast"
	"github.com/aqicast/aqicast/internal/history"
)

// ForecastService is the engine surface the handlers depend on.
// *forecast.Service implements it.
type ForecastService interface {
	Now() time.Time
	Location() *time.Location
	Predict(ctx context.Context, r history.Reading) (forecast.Outcome, error)
	Current(ctx context.Context, rng *rand.Rand) (forecast.Prediction, error)
	Hourly(ctx context.Context, hours int, rng *rand.Rand) ([]forecast.Prediction, error)
	Daily(ctx context.Context, days int, rng *rand.Rand) ([]forecast.Prediction, error)
	Range(ctx context.Context, start, end time.Time, cadence forecast.Cadence, rng *rand.Rand) ([]forecast.Prediction, error)
	Trend(ctx context.Context) (*forecast.TrendModel, error)
}

// HistoryStatus reports the state of the history cache.
// *history.Service implements it.
type HistoryStatus interface {
	CacheStatus() history.CacheStatus
}

// seedFrom reads the optional seed query parameter. Without one a fresh seed
// is drawn so the response can still be reproduced.
func seedFrom(r *http.Request) (uint64, *models.FieldError) {
	raw := r.URL.Query().Get("seed")
	if raw == "" {
		return rand.Uint64(), nil //nolint:gosec // forecast noise, not security
	}
	seed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, &models.FieldError{Field: "seed", Message: "must be an unsigned integer", Code: models.CodeInvalid}
	}
	return seed, nil
}

// intParam reads a bounded integer query parameter.
func intParam(r *http.Request, name string, def, lo, hi int) (int, *models.FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &models.FieldError{Field: name, Message: "must be an integer", Code: models.CodeInvalid}
	}
	if v < lo || v > hi {
		return 0, &models.FieldError{
			Field:   name,
			Message: "must be between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi),
			Code:    models.CodeOutOfRange,
		}
	}
	return v, nil
}

func toResult(res airquality.Result) models.AQIResult {
	return models.AQIResult{
		AQI:      res.AQI,
		Category: string(res.Category),
		Label:    res.Category.Label(),
		Color:    res.Color,
	}
}

func toAdvice(a airquality.Advice) models.Advice {
	return models.Advice{
		Level:      a.Level,
		General:    a.General,
		Sensitive:  a.Sensitive,
		Activities: a.Activities,
	}
}

func toParameters(r history.Reading) models.Parameters {
	return models.Parameters{
		PM1:                r.PM1,
		PM25:               r.PM25,
		Temperature:        r.Temperature,
		Humidity:           r.Humidity,
		UltrafineParticles: r.Ultrafine,
	}
}

func toPrediction(p forecast.Prediction) models.Prediction {
	return models.Prediction{
		AQIResult:  toResult(p.Result),
		Timestamp:  models.Timestamp(p.Timestamp),
		Method:     string(p.Provenance),
		ModelName:  p.ModelName,
		Parameters: toParameters(p.Reading),
	}
}

func toPredictResponse(p forecast.Prediction) models.PredictResponse {
	return models.PredictResponse{
		AQIResult:         toResult(p.Result),
		Timestamp:         models.Timestamp(p.Timestamp),
		Method:            string(p.Provenance),
		MethodDescription: p.Provenance.Description(),
		ModelName:         p.ModelName,
		Parameters:        toParameters(p.Reading),
		Advice:            toAdvice(airquality.AdviceFor(p.Result.Category)),
	}
}

func toSummary(s forecast.Summary) models.ForecastSummary {
	out := models.ForecastSummary{
		Count:      s.Count,
		AverageAQI: s.AverageAQI,
		MaxAQI:     s.MaxAQI,
		MinAQI:     s.MinAQI,
		Categories: make(map[string]int, len(s.Categories)),
	}
	if s.Count > 0 {
		out.PeakAt = models.TimestampPtr(&s.Peak)
	}
	for c, n := range s.Categories {
		out.Categories[string(c)] = n
	}
	return out
}
