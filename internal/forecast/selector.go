package forecast

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/aqicast/aqicast/internal/airquality"
	"github.com/aqicast/aqicast/internal/history"
	"github.com/aqicast/aqicast/internal/model"
)

// BundleSource supplies the active model bundle. *model.Holder implements it.
type BundleSource interface {
	Current() *model.Bundle
}

// Outcome is the scored result of one reading.
type Outcome struct {
	Result     airquality.Result
	Provenance Provenance
	ModelName  string

	// Err is the model failure behind an EPA_FALLBACK outcome.
	Err error
}

// SelectorConfig holds configuration for the prediction selector.
type SelectorConfig struct {
	// Models supplies the bundle. Nil means formula only.
	Models BundleSource

	// Stats fills features the reading cannot supply.
	Stats *history.Stats

	// Defaults fill measured features when Stats has no mean for them.
	// Default: DefaultSynthesisConfig()
	Defaults *SynthesisConfig

	// NewBreaker builds the breaker guarding inference. After repeated
	// failures the model is skipped until the breaker half-opens. A new
	// breaker is built whenever a different bundle becomes active, so a
	// reload is not held back by failures of the bundle it replaced.
	// Nil disables the guard.
	NewBreaker func() *gobreaker.CircuitBreaker[float64]

	Metrics *Metrics
	Logger  zerolog.Logger
}

// Selector scores readings with the model when one is usable and with the
// breakpoint formula otherwise.
type Selector struct {
	models   BundleSource
	stats    *history.Stats
	defaults SynthesisConfig
	breakers *bundleBreakers
	metrics  *Metrics
	logger   zerolog.Logger
}

// bundleBreakers tracks the breaker of the bundle last scored. Copies made
// by WithStats share it.
type bundleBreakers struct {
	mu      sync.Mutex
	build   func() *gobreaker.CircuitBreaker[float64]
	bundle  *model.Bundle
	breaker *gobreaker.CircuitBreaker[float64]
}

// NewSelector creates a prediction selector.
func NewSelector(cfg SelectorConfig) *Selector {
	defaults := DefaultSynthesisConfig()
	if cfg.Defaults != nil {
		defaults = *cfg.Defaults
	}

	s := &Selector{
		models:   cfg.Models,
		stats:    cfg.Stats,
		defaults: defaults,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if cfg.NewBreaker != nil {
		s.breakers = &bundleBreakers{build: cfg.NewBreaker, breaker: cfg.NewBreaker()}
	}
	return s
}

// Breaker returns the breaker guarding the active bundle, or nil when
// inference is unguarded.
func (s *Selector) Breaker() *gobreaker.CircuitBreaker[float64] {
	if s.breakers == nil {
		return nil
	}
	s.breakers.mu.Lock()
	defer s.breakers.mu.Unlock()
	return s.breakers.breaker
}

// breakerFor returns the breaker for bundle, replacing the current one when
// bundle differs from the last bundle scored.
func (s *Selector) breakerFor(bundle *model.Bundle) *gobreaker.CircuitBreaker[float64] {
	if s.breakers == nil {
		return nil
	}
	b := s.breakers
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bundle != bundle {
		if b.bundle != nil {
			b.breaker = b.build()
			s.logger.Info().
				Str("model_name", bundle.ModelName).
				Msg("model bundle changed, inference breaker reset")
		}
		b.bundle = bundle
	}
	return b.breaker
}

// WithStats returns a copy of the selector that fills features from stats.
func (s *Selector) WithStats(stats *history.Stats) *Selector {
	c := *s
	c.stats = stats
	return &c
}

// Predict scores r with the currently active bundle.
func (s *Selector) Predict(r history.Reading) (Outcome, error) {
	var bundle *model.Bundle
	if s.models != nil {
		bundle = s.models.Current()
	}
	return s.PredictWith(r, bundle)
}

// PredictWith scores r with bundle, or with the formula when bundle is nil.
// Model failures are absorbed into an EPA_FALLBACK outcome. The only
// returned error is airquality.ErrInvalidInput for a malformed reading.
func (s *Selector) PredictWith(r history.Reading, bundle *model.Bundle) (Outcome, error) {
	formula, err := airquality.Convert(r.PM25,
		airquality.WithPM1(r.PM1),
		airquality.WithTemperature(r.Temperature),
		airquality.WithHumidity(r.Humidity),
	)
	if err != nil {
		return Outcome{}, err
	}

	if bundle == nil {
		s.metrics.recordPrediction(ProvenanceFormula, "")
		return Outcome{Result: formula, Provenance: ProvenanceFormula}, nil
	}

	aqi, err := s.infer(bundle, s.Features(r, bundle.FeatureNames))
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("model_name", bundle.ModelName).
			Time("timestamp", r.Timestamp).
			Msg("model prediction failed, using formula")
		s.metrics.recordPrediction(ProvenanceFallback, bundle.ModelName)
		return Outcome{Result: formula, Provenance: ProvenanceFallback, ModelName: bundle.ModelName, Err: err}, nil
	}

	aqi = math.Round(math.Min(math.Max(aqi, 0), airquality.MaxAQI)*10) / 10
	category := airquality.CategoryFor(aqi)
	s.metrics.recordPrediction(ProvenanceModel, bundle.ModelName)
	return Outcome{
		Result:     airquality.Result{AQI: aqi, Category: category, Color: category.Color()},
		Provenance: ProvenanceModel,
		ModelName:  bundle.ModelName,
	}, nil
}

// Features builds the model input for r in the order of names. Names the
// reading cannot supply take the history mean, then the configured default.
// Names with neither are 0.
func (s *Selector) Features(r history.Reading, names []string) []float64 {
	cal := r.Calendar()
	x := make([]float64, len(names))
	for i, name := range names {
		switch name {
		case "pm1":
			x[i] = r.PM1
		case "pm25":
			x[i] = r.PM25
		case "temperature":
			x[i] = r.Temperature
		case "humidity":
			x[i] = r.Humidity
		case "ultrafine_particles", "ultrafine":
			if v, ok := r.Value(history.FieldUltrafine); ok {
				x[i] = v
			} else {
				x[i] = s.mean(history.FieldUltrafine)
			}
		case "hour":
			x[i] = float64(cal.Hour)
		case "day_of_week":
			x[i] = float64(cal.DayOfWeek)
		case "month":
			x[i] = float64(cal.Month)
		case "is_weekend":
			if cal.IsWeekend {
				x[i] = 1
			}
		case "days_from_start":
			if !s.stats.Empty() {
				x[i] = ElapsedDays(s.stats.First(), r.Timestamp)
			}
		default:
			x[i] = s.mean(history.Field(name))
		}
	}
	return x
}

func (s *Selector) mean(f history.Field) float64 {
	if v, ok := s.stats.Mean(f); ok {
		return v
	}
	v, _ := s.defaults.Default(f)
	return v
}

func (s *Selector) infer(bundle *model.Bundle, x []float64) (float64, error) {
	start := time.Now()
	run := func() (y float64, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%w: panic: %v", model.ErrPredictionFailed, p)
			}
		}()

		if bundle.Scaled() {
			if x, err = bundle.Scaler.Transform(x); err != nil {
				return 0, wrapPrediction(err)
			}
		}
		if y, err = bundle.Regressor.Predict(x); err != nil {
			return 0, wrapPrediction(err)
		}
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return 0, fmt.Errorf("%w: non-finite output %v", model.ErrPredictionFailed, y)
		}
		return y, nil
	}

	var (
		y   float64
		err error
	)
	if breaker := s.breakerFor(bundle); breaker != nil {
		y, err = breaker.Execute(run)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", model.ErrPredictionFailed, err)
		}
	} else {
		y, err = run()
	}
	s.metrics.recordInference(time.Since(start), err == nil)
	return y, err
}

func wrapPrediction(err error) error {
	if errors.Is(err, model.ErrPredictionFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrPredictionFailed, err)
}
