package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aqicast/aqicast/internal/airquality"
	"github.com/aqicast/aqicast/internal/api/models"
	"github.com/aqicast/aqicast/internal/api/response"
	"github.com/aqicast/aqicast/internal/forecast"
	"github.com/aqicast/aqicast/internal/history"
)

// Defaults for omitted /v1/aqi:predict parameters, typical of the Phnom
// Penh sensor.
const (
	defaultPM1Ratio    = 0.8
	defaultTemperature = 28.0
	defaultHumidity    = 60.0
	defaultUltrafine   = 1500.0
)

// AQIHandler handles index conversion and point prediction endpoints.
type AQIHandler struct {
	svc    ForecastService
	logger zerolog.Logger
}

// NewAQIHandler creates a new AQIHandler.
func NewAQIHandler(svc ForecastService, logger zerolog.Logger) *AQIHandler {
	return &AQIHandler{svc: svc, logger: logger}
}

// GetScale handles GET /v1/aqi/scale.
func (h *AQIHandler) GetScale(w http.ResponseWriter, r *http.Request) {
	scale := models.Scale{}
	for _, e := range airquality.Scale() {
		scale.Bands = append(scale.Bands, models.ScaleBand{
			Category: string(e.Category),
			Label:    e.Label,
			Low:      e.Low,
			High:     e.High,
			Color:    e.Color,
			Advice:   toAdvice(e.Advice),
		})
	}
	response.OK(w, r, scale)
}

// GetAdvice handles GET /v1/aqi/advice?aqi=.
func (h *AQIHandler) GetAdvice(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("aqi")
	if raw == "" {
		response.BadRequest(w, r, "aqi is required", []models.FieldError{
			{Field: "aqi", Message: "required", Code: models.CodeRequired},
		})
		return
	}
	aqi, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(aqi) || math.IsInf(aqi, 0) || aqi < 0 {
		response.BadRequest(w, r, "aqi must be a non-negative number", []models.FieldError{
			{Field: "aqi", Message: "must be a non-negative number", Code: models.CodeInvalid},
		})
		return
	}

	category := airquality.CategoryFor(aqi)
	response.OK(w, r, models.AdviceResponse{
		AQIResult: toResult(airquality.Result{AQI: aqi, Category: category, Color: category.Color()}),
		Advice:    toAdvice(airquality.AdviceFor(category)),
	})
}

// Convert handles POST /v1/aqi:convert.
func (h *AQIHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req models.ConvertRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if req.PM25 == nil {
		response.BadRequest(w, r, "pm25 is required", []models.FieldError{
			{Field: "pm25", Message: "required", Code: models.CodeRequired},
		})
		return
	}

	var opts []airquality.Option
	if req.PM1 != nil {
		opts = append(opts, airquality.WithPM1(*req.PM1))
	}
	if req.Temperature != nil {
		opts = append(opts, airquality.WithTemperature(*req.Temperature))
	}
	if req.Humidity != nil {
		opts = append(opts, airquality.WithHumidity(*req.Humidity))
	}

	breakdown, err := airquality.ConvertDetailed(*req.PM25, opts...)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	response.OK(w, r, models.ConvertResponse{
		AQIResult: toResult(breakdown.Result),
		BaseAQI:   breakdown.BaseAQI,
		Factors: models.Factors{
			Temperature: breakdown.TemperatureFactor,
			Humidity:    breakdown.HumidityFactor,
			PM1:         breakdown.PM1Factor,
		},
	})
}

// Predict handles POST /v1/aqi:predict. The reading is scored by the active
// model bundle when one is loaded, and by the breakpoint formula otherwise.
func (h *AQIHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if req.PM25 == nil {
		response.BadRequest(w, r, "pm25 is required", []models.FieldError{
			{Field: "pm25", Message: "required", Code: models.CodeRequired},
		})
		return
	}

	ts := h.svc.Now()
	if req.Timestamp != nil {
		ts = req.Timestamp.Time().In(h.svc.Location())
	}
	reading := history.Reading{
		Timestamp:   ts,
		PM25:        *req.PM25,
		PM1:         valueOr(req.PM1, *req.PM25*defaultPM1Ratio),
		Temperature: valueOr(req.Temperature, defaultTemperature),
		Humidity:    valueOr(req.Humidity, defaultHumidity),
		Ultrafine:   valueOr(req.UltrafineParticles, defaultUltrafine),
	}

	outcome, err := h.svc.Predict(r.Context(), reading)
	if err != nil {
		if errors.Is(err, airquality.ErrInvalidInput) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		h.logger.Error().Err(err).Msg("prediction failed")
		response.InternalError(w, r, "prediction failed")
		return
	}

	response.OK(w, r, toPredictResponse(forecast.Prediction{
		Timestamp:  ts,
		Result:     outcome.Result,
		Reading:    reading,
		Provenance: outcome.Provenance,
		ModelName:  outcome.ModelName,
	}))
}

// GetCurrent handles GET /v1/aqi/current: a prediction synthesized for now
// from the history aggregates.
func (h *AQIHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	seed, fieldErr := seedFrom(r)
	if fieldErr != nil {
		response.BadRequest(w, r, fieldErr.Message, []models.FieldError{*fieldErr})
		return
	}

	p, err := h.svc.Current(r.Context(), forecast.NewRand(seed))
	if err != nil {
		h.logger.Error().Err(err).Msg("current prediction failed")
		response.InternalError(w, r, "prediction failed")
		return
	}
	response.OK(w, r, toPredictResponse(p))
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
