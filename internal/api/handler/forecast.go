package handler

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqicast/aqicast/internal/api/models"
	"github.com/aqicast/aqicast/internal/api/response"
	"github.com/aqicast/aqicast/internal/forecast"
)

// Forecast window limits.
const (
	DefaultForecastHours = 24
	MaxForecastHours     = 48
	DefaultForecastDays  = 7
	MaxForecastDays      = 14
)

// ForecastHandler handles range forecast and trend endpoints.
type ForecastHandler struct {
	svc    ForecastService
	logger zerolog.Logger
}

// NewForecastHandler creates a new ForecastHandler.
func NewForecastHandler(svc ForecastService, logger zerolog.Logger) *ForecastHandler {
	return &ForecastHandler{svc: svc, logger: logger}
}

// GetHourly handles GET /v1/forecast/hourly?hours=.
func (h *ForecastHandler) GetHourly(w http.ResponseWriter, r *http.Request) {
	hours, fieldErr := intParam(r, "hours", DefaultForecastHours, 1, MaxForecastHours)
	if fieldErr != nil {
		response.BadRequest(w, r, fieldErr.Message, []models.FieldError{*fieldErr})
		return
	}
	h.serve(w, r, forecast.CadenceHourly, func(rng *rand.Rand) ([]forecast.Prediction, error) {
		return h.svc.Hourly(r.Context(), hours, rng)
	})
}

// GetDaily handles GET /v1/forecast/daily?days=.
func (h *ForecastHandler) GetDaily(w http.ResponseWriter, r *http.Request) {
	days, fieldErr := intParam(r, "days", DefaultForecastDays, 1, MaxForecastDays)
	if fieldErr != nil {
		response.BadRequest(w, r, fieldErr.Message, []models.FieldError{*fieldErr})
		return
	}
	h.serve(w, r, forecast.CadenceDaily, func(rng *rand.Rand) ([]forecast.Prediction, error) {
		return h.svc.Daily(r.Context(), days, rng)
	})
}

// GetRange handles GET /v1/forecast?start=&end=&cadence=.
func (h *ForecastHandler) GetRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var fieldErrs []models.FieldError
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "start", Message: "must be an RFC 3339 timestamp", Code: models.CodeInvalid})
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "end", Message: "must be an RFC 3339 timestamp", Code: models.CodeInvalid})
	}
	cadenceName := q.Get("cadence")
	if cadenceName == "" {
		cadenceName = string(forecast.CadenceHourly)
	}
	cadence, err := forecast.ParseCadence(cadenceName)
	if err != nil {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "cadence", Message: "must be hourly, daily or weekly", Code: models.CodeInvalid})
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid forecast range", fieldErrs)
		return
	}

	h.serve(w, r, cadence, func(rng *rand.Rand) ([]forecast.Prediction, error) {
		return h.svc.Range(r.Context(), start, end, cadence, rng)
	})
}

// GetTrend handles GET /v1/trend.
func (h *ForecastHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	trend, err := h.svc.Trend(r.Context())
	if err != nil {
		if errors.Is(err, forecast.ErrInsufficientHistory) {
			response.ServiceUnavailable(w, r, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("trend fit failed")
		response.InternalError(w, r, "trend fit failed")
		return
	}

	c := trend.Coefficients
	response.OK(w, r, models.Trend{
		Coefficients: c,
		RSquared:     trend.RSquared,
		Points:       trend.Points,
		Start:        models.Timestamp(trend.Start),
		Equation:     fmt.Sprintf("aqi = %.4f + %.4f*d + %.6f*d^2", c[0], c[1], c[2]),
	})
}

func (h *ForecastHandler) serve(w http.ResponseWriter, r *http.Request, cadence forecast.Cadence, run func(*rand.Rand) ([]forecast.Prediction, error)) {
	seed, fieldErr := seedFrom(r)
	if fieldErr != nil {
		response.BadRequest(w, r, fieldErr.Message, []models.FieldError{*fieldErr})
		return
	}

	predictions, err := run(forecast.NewRand(seed))
	switch {
	case errors.Is(err, forecast.ErrInvalidRange), errors.Is(err, forecast.ErrUnknownCadence):
		response.BadRequest(w, r, err.Error(), nil)
		return
	case errors.Is(err, forecast.ErrRangeTooLarge):
		response.Unprocessable(w, r, err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Str("cadence", string(cadence)).Msg("forecast failed")
		response.InternalError(w, r, "forecast failed")
		return
	}

	body := models.Forecast{
		Cadence:     string(cadence),
		Location:    h.svc.Location().String(),
		Seed:        &seed,
		Predictions: make([]models.Prediction, 0, len(predictions)),
		Summary:     toSummary(forecast.Summarize(predictions)),
	}
	if len(predictions) > 0 {
		body.Start = models.Timestamp(predictions[0].Timestamp)
		body.End = models.Timestamp(predictions[len(predictions)-1].Timestamp)
	}
	for _, p := range predictions {
		body.Predictions = append(body.Predictions, toPrediction(p))
	}

	response.OK(w, r, body)
}
