// Package main provides the entrypoint for the aqicast API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqicast/aqicast/internal/api"
	"github.com/aqicast/aqicast/internal/api/middleware"
	"github.com/aqicast/aqicast/internal/app"
	"github.com/aqicast/aqicast/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "aqicast-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	// A missing .env is normal outside local development.
	if err := app.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("ignoring .env file")
	}

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting aqicast API")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryConfig := telemetry.ConfigFromEnv(serviceName, Version)

	tp, err := telemetry.Init(ctx, telemetryConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryConfig.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryConfig.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Wire history, model and forecasting
	engine, err := app.New(ctx, app.ConfigFromEnv(), app.Options{
		Logger: log,
		Meter:  tp.Meter,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize forecast engine")
	}
	defer engine.Close()
	log.Info().
		Str("location", engine.Location.String()).
		Bool("model_loaded", engine.Models.Current() != nil).
		Msg("forecast engine initialized")

	requireTLS, _ := strconv.ParseBool(os.Getenv("REQUIRE_TLS"))

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Forecasts:   engine.Forecasts,
		History:     engine.History,
		Models:      engine.Models,
		Breakers:    engine.Breakers,
		CORSOrigins: os.Getenv("CORS_ALLOWED_ORIGINS"),
		RequireTLS:  requireTLS,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// SIGHUP reloads the model bundle; SIGINT and SIGTERM shut down.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		reloadCtx, cancel := context.WithTimeout(ctx, time.Minute)
		if err := engine.Reload(reloadCtx); err != nil {
			log.Error().Err(err).Msg("model reload failed, keeping previous bundle")
		}
		cancel()
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
