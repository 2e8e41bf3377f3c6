package handler

import (
	"net/http"

	"github.com/aqicast/aqicast/internal/api/models"
	"github.com/aqicast/aqicast/internal/api/response"
	"github.com/aqicast/aqicast/internal/forecast"
	"github.com/aqicast/aqicast/internal/history"
)

var parameterInfo = []models.ParameterInfo{
	{Name: string(history.FieldPM1), Unit: "µg/m³", Description: "Particulate matter up to 1 µm"},
	{Name: string(history.FieldPM25), Unit: "µg/m³", Description: "Particulate matter up to 2.5 µm"},
	{Name: string(history.FieldTemperature), Unit: "°C", Description: "Ambient temperature"},
	{Name: string(history.FieldHumidity), Unit: "%", Description: "Relative humidity"},
	{Name: string(history.FieldUltrafine), Unit: "particles/cm³", Description: "Particle count at 0.3 µm"},
}

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct {
	svc     ForecastService
	history HistoryStatus
	models  forecast.BundleSource
}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler(svc ForecastService, hist HistoryStatus, bundles forecast.BundleSource) *MetadataHandler {
	return &MetadataHandler{svc: svc, history: hist, models: bundles}
}

// GetParameters handles GET /v1/metadata/parameters.
func (h *MetadataHandler) GetParameters(w http.ResponseWriter, r *http.Request) {
	body := models.ParametersMetadata{
		Parameters: parameterInfo,
		Location:   h.svc.Location().String(),
		Cadences: []string{
			string(forecast.CadenceHourly),
			string(forecast.CadenceDaily),
			string(forecast.CadenceWeekly),
		},
		Methods: []string{
			string(forecast.ProvenanceModel),
			string(forecast.ProvenanceFormula),
			string(forecast.ProvenanceFallback),
		},
	}

	if h.history != nil {
		cache := h.history.CacheStatus()
		body.History = models.HistoryInfo{
			Loaded:   cache.HasData,
			Readings: cache.ReadingCount,
			Stale:    cache.IsStale,
		}
		if cache.HasData {
			body.History.First = models.TimestampPtr(&cache.First)
			body.History.Last = models.TimestampPtr(&cache.Last)
			body.History.LoadedAt = models.TimestampPtr(&cache.LoadedAt)
		}
	}

	response.OK(w, r, body)
}

// GetModel handles GET /v1/metadata/model.
func (h *MetadataHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	var body models.ModelMetadata
	if h.models != nil {
		if bundle := h.models.Current(); bundle != nil {
			body = models.ModelMetadata{
				Loaded:    true,
				ModelName: bundle.ModelName,
				Source:    bundle.Source,
				LoadedAt:  models.TimestampPtr(&bundle.LoadedAt),
				Features:  bundle.FeatureNames,
				Scaled:    bundle.Scaled(),
			}
		}
	}
	response.OK(w, r, body)
}
