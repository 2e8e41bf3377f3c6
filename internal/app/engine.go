package app

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata" // forecast zones must resolve on minimal images

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/metric"

	"github.com/aqicast/aqicast/internal/database"
	"github.com/aqicast/aqicast/internal/forecast"
	"github.com/aqicast/aqicast/internal/history"
	"github.com/aqicast/aqicast/internal/model"
	"github.com/aqicast/aqicast/internal/resilience"
)

// Breaker names registered by the engine.
const (
	BreakerModelInference = "model-inference"
	BreakerModelFetch     = "model-fetch"
)

// Engine is a wired forecasting engine.
type Engine struct {
	Location    *time.Location
	History     *history.Service
	Models      *model.Holder
	ModelSource model.Source
	Breakers    *resilience.Registry
	Forecasts   *forecast.Service

	logger  zerolog.Logger
	closers []func()
}

// Options carries the process-level dependencies of the engine.
type Options struct {
	Logger zerolog.Logger

	// Meter records engine metrics. Nil disables them.
	Meter metric.Meter

	// Database is used by the postgres backend.
	// Default: database.ConfigFromEnv()
	Database *database.Config
}

// New builds the engine. History loading failures are fatal; a model that
// cannot be loaded is logged and the engine starts on the formula.
func New(ctx context.Context, cfg Config, opts Options) (*Engine, error) {
	logger := opts.Logger

	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("load forecast location %q: %w", cfg.Location, err)
	}

	e := &Engine{
		Location: loc,
		Models:   model.NewHolder(logger),
		Breakers: resilience.NewRegistry(),
		logger:   logger,
	}

	repo, err := e.repository(ctx, cfg, opts)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.History = history.NewService(history.ServiceConfig{
		Repository: repo,
		Logger:     logger,
		Window:     cfg.HistoryWindow,
		CacheTTL:   cfg.HistoryCacheTTL,
	})

	var metrics *forecast.Metrics
	if opts.Meter != nil {
		if metrics, err = forecast.NewMetrics(opts.Meter); err != nil {
			e.Close()
			return nil, fmt.Errorf("create forecast metrics: %w", err)
		}
	}

	// Each bundle gets a fresh breaker; registering it replaces the entry of
	// the bundle it superseded.
	newBreaker := func() *gobreaker.CircuitBreaker[float64] {
		breaker := resilience.NewCircuitBreaker[float64](resilience.DefaultCircuitBreakerConfig(BreakerModelInference))
		e.Breakers.Register(breaker)
		return breaker
	}

	e.Forecasts = forecast.NewService(forecast.ServiceConfig{
		History: e.History,
		Selector: forecast.NewSelector(forecast.SelectorConfig{
			Models:     e.Models,
			NewBreaker: newBreaker,
			Metrics:    metrics,
			Logger:     logger,
		}),
		Location: loc,
		Logger:   logger,
	})

	e.ModelSource = e.modelSource(cfg)
	if e.ModelSource != nil {
		if err := e.Reload(ctx); err != nil {
			logger.Warn().Err(err).Msg("starting without a model, predictions use the formula")
		}
	}

	if _, err := e.History.GetSnapshot(ctx); err != nil {
		logger.Warn().Err(err).Msg("history not loaded, forecasts use defaults")
	}

	return e, nil
}

// Reload loads the model bundle from the configured source. It is a no-op
// without one.
func (e *Engine) Reload(ctx context.Context) error {
	if e.ModelSource == nil {
		return nil
	}
	return e.Models.Reload(ctx, e.ModelSource)
}

// Close releases the history backend.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func (e *Engine) repository(ctx context.Context, cfg Config, opts Options) (history.Repository, error) {
	backend, err := cfg.backend()
	if err != nil {
		return nil, err
	}

	var seed []history.Reading
	if cfg.HistoryCSVPath != "" {
		if seed, err = history.LoadOpenAQFile(cfg.HistoryCSVPath); err != nil {
			return nil, err
		}
		for i := range seed {
			seed[i].Timestamp = seed[i].Timestamp.In(e.Location)
		}
		e.logger.Info().
			Str("path", cfg.HistoryCSVPath).
			Int("readings", len(seed)).
			Msg("history export parsed")
	}

	switch backend {
	case BackendPostgres:
		dbConfig := database.ConfigFromEnv()
		if opts.Database != nil {
			dbConfig = *opts.Database
		}
		pool, err := database.Connect(ctx, dbConfig, e.logger)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, pool.Close)
		e.logger.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		repo := history.NewPostgresRepository(pool, e.Location)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		if len(seed) > 0 {
			if err := repo.InsertReadings(ctx, seed); err != nil {
				return nil, fmt.Errorf("import history export: %w", err)
			}
		}
		return repo, nil
	default:
		return history.NewInMemoryRepositoryWithReadings(seed), nil
	}
}

func (e *Engine) modelSource(cfg Config) model.Source {
	switch {
	case cfg.ModelBundleURL != "":
		clientCfg := resilience.DefaultClientConfig(BreakerModelFetch)
		clientCfg.Timeout = 30 * time.Second
		clientCfg.Registry = e.Breakers
		return model.HTTPSource{URL: cfg.ModelBundleURL, Client: resilience.NewClient(clientCfg)}
	case cfg.ModelBundlePath != "":
		return model.FileSource{Path: cfg.ModelBundlePath}
	default:
		return nil
	}
}
