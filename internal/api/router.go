// Package api provides the HTTP API for aqicast.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/aqicast/aqicast/internal/api/handler"
	"github.com/aqicast/aqicast/internal/api/middleware"
	"github.com/aqicast/aqicast/internal/forecast"
	"github.com/aqicast/aqicast/internal/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Forecasts handler.ForecastService
	History   handler.HistoryStatus
	Models    forecast.BundleSource
	Breakers  *resilience.Registry

	// CORSOrigins is a comma-separated allow list. Empty disables CORS.
	CORSOrigins string

	// RequireTLS rejects plain HTTP requests reported by the proxy.
	RequireTLS bool

	// ForecastRateLimit and StandardRateLimit override the per-IP budgets.
	ForecastRateLimit *middleware.RateLimitConfig
	StandardRateLimit *middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "aqicast-api"
	}

	// Order matters: the request ID must exist before tracing and logging.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		History:   cfg.History,
		Models:    cfg.Models,
		Breakers:  cfg.Breakers,
	})
	aqiHandler := handler.NewAQIHandler(cfg.Forecasts, cfg.Logger)
	forecastHandler := handler.NewForecastHandler(cfg.Forecasts, cfg.Logger)
	metadataHandler := handler.NewMetadataHandler(cfg.Forecasts, cfg.History, cfg.Models)

	forecastLimit := middleware.ForecastRateLimit
	if cfg.ForecastRateLimit != nil {
		forecastLimit = *cfg.ForecastRateLimit
	}
	standardLimit := middleware.StandardRateLimit
	if cfg.StandardRateLimit != nil {
		standardLimit = *cfg.StandardRateLimit
	}
	forecastRateLimit := middleware.RateLimitByIP(forecastLimit)
	standardRateLimit := middleware.RateLimitByIP(standardLimit)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints are not rate limited so probes never fail on budget.
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)

			r.Get("/aqi/scale", aqiHandler.GetScale)
			r.Get("/aqi/advice", aqiHandler.GetAdvice)
			r.Get("/aqi/current", aqiHandler.GetCurrent)
			r.With(middleware.RequireJSON).Post("/aqi:convert", aqiHandler.Convert)
			r.With(middleware.RequireJSON).Post("/aqi:predict", aqiHandler.Predict)

			r.Get("/trend", forecastHandler.GetTrend)

			r.Route("/metadata", func(r chi.Router) {
				r.Get("/parameters", metadataHandler.GetParameters)
				r.Get("/model", metadataHandler.GetModel)
			})
		})

		// Range forecasts run one inference per step.
		r.Group(func(r chi.Router) {
			r.Use(forecastRateLimit)
			r.Get("/forecast", forecastHandler.GetRange)
			r.Get("/forecast/hourly", forecastHandler.GetHourly)
			r.Get("/forecast/daily", forecastHandler.GetDaily)
		})
	})

	return r
}
