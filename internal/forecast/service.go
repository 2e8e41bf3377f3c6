package forecast

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqicast/aqicast/internal/history"
)

// HistorySource supplies history snapshots. *history.Service implements it.
type HistorySource interface {
	GetSnapshot(ctx context.Context) (*history.Snapshot, error)
}

// ServiceConfig holds configuration for the forecast service.
type ServiceConfig struct {
	// History supplies aggregates. Nil forecasts from defaults only.
	History HistorySource

	Selector  *Selector
	Synthesis SynthesisConfig

	// Location is the forecast zone. Default: UTC
	Location *time.Location

	Logger zerolog.Logger

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// Service binds forecasting to the latest history snapshot.
type Service struct {
	history   HistorySource
	selector  *Selector
	synthesis SynthesisConfig
	location  *time.Location
	logger    zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	trend     *TrendModel
	trendFrom time.Time
}

// NewService creates a forecast service.
func NewService(cfg ServiceConfig) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	selector := cfg.Selector
	if selector == nil {
		selector = NewSelector(SelectorConfig{Logger: cfg.Logger})
	}
	synthesis := cfg.Synthesis
	if synthesis == (SynthesisConfig{}) {
		synthesis = DefaultSynthesisConfig()
	}

	return &Service{
		history:   cfg.History,
		selector:  selector,
		synthesis: synthesis,
		location:  loc,
		logger:    cfg.Logger,
		now:       now,
	}
}

// Location returns the forecast zone.
func (s *Service) Location() *time.Location {
	return s.location
}

// Now returns the current time in the forecast zone.
func (s *Service) Now() time.Time {
	return s.now().In(s.location)
}

// Snapshot returns the current history snapshot, or nil when no history is
// available. A missing history is not an error; forecasts then run on the
// configured defaults.
func (s *Service) Snapshot(ctx context.Context) *history.Snapshot {
	if s.history == nil {
		return nil
	}
	snapshot, err := s.history.GetSnapshot(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("forecasting without history")
		return nil
	}
	return snapshot
}

// Forecaster returns a forecaster bound to the current history.
func (s *Service) Forecaster(ctx context.Context) *Forecaster {
	var stats *history.Stats
	if snapshot := s.Snapshot(ctx); snapshot != nil {
		stats = snapshot.Stats
	}
	return NewForecaster(ForecasterConfig{
		Stats:     stats,
		Synthesis: s.synthesis,
		Selector:  s.selector,
		Location:  s.location,
	})
}

// Predict scores a reading, filling missing model features from the current
// history.
func (s *Service) Predict(ctx context.Context, r history.Reading) (Outcome, error) {
	var stats *history.Stats
	if snapshot := s.Snapshot(ctx); snapshot != nil {
		stats = snapshot.Stats
	}
	return s.selector.WithStats(stats).Predict(r)
}

// Current synthesizes and scores a prediction for now.
func (s *Service) Current(ctx context.Context, rng *rand.Rand) (Prediction, error) {
	predictions, err := s.Forecaster(ctx).At(s.Now(), nil, 1, rng)
	if err != nil {
		return Prediction{}, err
	}
	return predictions[0], nil
}

// Hourly forecasts from now through hours ahead.
func (s *Service) Hourly(ctx context.Context, hours int, rng *rand.Rand) ([]Prediction, error) {
	return s.Forecaster(ctx).Hourly(s.Now(), hours, rng)
}

// Daily forecasts from now through days ahead.
func (s *Service) Daily(ctx context.Context, days int, rng *rand.Rand) ([]Prediction, error) {
	return s.Forecaster(ctx).Daily(s.Now(), days, rng)
}

// Range forecasts an explicit interval.
func (s *Service) Range(ctx context.Context, start, end time.Time, cadence Cadence, rng *rand.Rand) ([]Prediction, error) {
	return s.Forecaster(ctx).Range(start, end, cadence, rng)
}

// Trend returns the quadratic trend fitted over the current history. The fit
// is cached until the history snapshot changes.
func (s *Service) Trend(ctx context.Context) (*TrendModel, error) {
	snapshot := s.Snapshot(ctx)
	if snapshot == nil {
		return nil, ErrInsufficientHistory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trend != nil && s.trendFrom.Equal(snapshot.LoadedAt) {
		return s.trend, nil
	}

	trend, err := TrendFromReadings(snapshot.Readings)
	if err != nil {
		return nil, err
	}
	s.trend = trend
	s.trendFrom = snapshot.LoadedAt

	s.logger.Debug().
		Int("points", trend.Points).
		Float64("r_squared", trend.RSquared).
		Msg("trend refitted")
	return trend, nil
}
