package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqicast/aqicast/internal/app"
	"github.com/aqicast/aqicast/internal/telemetry"
	"github.com/aqicast/aqicast/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "aqicast-worker"

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

	log.Info().Str("build_time", BuildTime).Msg("starting aqicast worker")

	// Worker also exposes health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	engine, err := app.New(ctx, app.ConfigFromEnv(), app.Options{Logger: log, Meter: tp.Meter})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize forecast engine")
	}
	defer engine.Close()

	job := worker.NewSnapshotJob(worker.SnapshotJobConfig{
		Config:    worker.SnapshotConfigFromEnv(),
		Forecasts: engine.Forecasts,
		Bundles:   engine.Models,
		Logger:    log,
	})

	var reload worker.ReloadFunc
	if engine.ModelSource != nil {
		reload = engine.Reload
	}
	dispatcher := worker.NewDispatcher(job, reload, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "healthy",
			"version":  Version,
			"snapshot": job.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().
			Str("path", job.Config().Path).
			Dur("interval", job.Config().Interval).
			Msg("snapshot schedule started")
		job.Schedule(ctx)
	}()

	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
	if projectID != "" && subscription != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subscription,
			Dispatcher:       dispatcher,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Info().Msg("pubsub not configured, running on schedule only")
	}

	// SIGHUP reloads the model and republishes; SIGINT and SIGTERM shut down.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		if err := dispatcher.Dispatch(ctx, worker.JobMessage{JobType: worker.JobModelReload, Snapshot: true}); err != nil {
			log.Error().Err(err).Msg("model reload failed")
		}
	}

	log.Info().Msg("shutting down worker")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
