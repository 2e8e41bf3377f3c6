package handler

import (
	"net/http"
	"time"

	"github.com/aqicast/aqicast/internal/api/models"
	"github.com/aqicast/aqicast/internal/api/response"
	"github.com/aqicast/aqicast/internal/forecast"
	"github.com/aqicast/aqicast/internal/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	history   HistoryStatus
	models    forecast.BundleSource
	breakers  *resilience.Registry
}

// OpsHandlerConfig holds dependencies for the ops handler. Nil
// dependencies are reported as not configured.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	History   HistoryStatus
	Models    forecast.BundleSource
	Breakers  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		history:   cfg.History,
		models:    cfg.Models,
		breakers:  cfg.Breakers,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, r, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The service always answers,
// falling back to defaults and the formula, so missing history or model
// only degrade readiness.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.subsystems()
	details := make(map[string]any, len(subsystems))
	for _, s := range subsystems {
		details[s.Name] = s.Status
	}
	response.OK(w, r, models.Health{
		Status:  worst(subsystems),
		Time:    models.Timestamp(time.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status - subsystem and breaker status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	subsystems := h.subsystems()
	status := models.SystemStatus{
		Time:       models.Timestamp(time.Now()),
		Subsystems: subsystems,
		Breakers:   []models.DependencyStatus{},
	}

	if h.breakers != nil {
		for _, health := range h.breakers.GetAllHealth() {
			dep := models.DependencyStatus{
				Name:          health.Name,
				Status:        breakerStatus(health),
				CircuitState:  health.CircuitState.String(),
				Requests:      health.Counts.Requests,
				Failures:      health.Counts.ConsecutiveFailures,
				LastSuccessAt: models.TimestampPtr(health.LastSuccessAt),
				LastFailureAt: models.TimestampPtr(health.LastFailureAt),
				LastError:     health.LastError,
			}
			status.Breakers = append(status.Breakers, dep)
			subsystems = append(subsystems, models.SubsystemStatus{Name: dep.Name, Status: dep.Status})
		}
	}
	status.Status = worst(subsystems)

	response.OK(w, r, status)
}

func (h *OpsHandler) subsystems() []models.SubsystemStatus {
	hist := models.SubsystemStatus{Name: "history", Status: models.HealthStatusDegraded, Detail: "not configured"}
	if h.history != nil {
		cache := h.history.CacheStatus()
		switch {
		case !cache.HasData:
			hist.Detail = "no readings loaded"
		case cache.IsStale:
			hist.Detail = "serving stale readings"
		default:
			hist.Status = models.HealthStatusOK
			hist.Detail = ""
		}
	}

	mdl := models.SubsystemStatus{Name: "model", Status: models.HealthStatusDegraded, Detail: "formula only"}
	if h.models != nil {
		if bundle := h.models.Current(); bundle != nil {
			mdl.Status = models.HealthStatusOK
			mdl.Detail = bundle.ModelName
		}
	}

	return []models.SubsystemStatus{hist, mdl}
}

func breakerStatus(h *resilience.Health) models.HealthStatus {
	switch {
	case h.IsHealthy():
		return models.HealthStatusOK
	case h.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusFail
	}
}

func worst(subsystems []models.SubsystemStatus) models.HealthStatus {
	status := models.HealthStatusOK
	for _, s := range subsystems {
		switch s.Status {
		case models.HealthStatusFail:
			return models.HealthStatusFail
		case models.HealthStatusDegraded:
			status = models.HealthStatusDegraded
		}
	}
	return status
}
