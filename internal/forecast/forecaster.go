package forecast

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqicast/aqicast/internal/airquality"
	"github.com/aqicast/aqicast/internal/history"
)

// MaxRangeSteps bounds the number of predictions in one range.
const MaxRangeSteps = 10_000

// Forecaster produces predictions over time.
type Forecaster struct {
	synth    *Synthesizer
	selector *Selector
	location *time.Location
}

// ForecasterConfig holds configuration for a forecaster.
type ForecasterConfig struct {
	Stats     *history.Stats
	Synthesis SynthesisConfig
	Selector  *Selector

	// Location is the zone whose wall clock drives hour, month and weekday
	// features. Default: UTC
	Location *time.Location
}

// NewForecaster creates a forecaster. The selector is rebound to the same
// history aggregates as the synthesizer.
func NewForecaster(cfg ForecasterConfig) *Forecaster {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	selector := cfg.Selector
	if selector == nil {
		selector = NewSelector(SelectorConfig{Logger: zerolog.Nop()})
	}
	return &Forecaster{
		synth:    NewSynthesizer(cfg.Stats, cfg.Synthesis),
		selector: selector.WithStats(cfg.Stats),
		location: loc,
	}
}

// At returns scenarios independent predictions for t. Fewer than one
// scenario is treated as one.
func (f *Forecaster) At(t time.Time, base *BaseParams, scenarios int, rng *rand.Rand) ([]Prediction, error) {
	if scenarios < 1 {
		scenarios = 1
	}
	predictions := make([]Prediction, 0, scenarios)
	for i := 1; i <= scenarios; i++ {
		p, err := f.predict(t, base, rng)
		if err != nil {
			return nil, err
		}
		p.Scenario = i
		predictions = append(predictions, p)
	}
	return predictions, nil
}

// Range predicts every step from start through end inclusive. The last
// prediction is at or before end.
func (f *Forecaster) Range(start, end time.Time, cadence Cadence, rng *rand.Rand) ([]Prediction, error) {
	step, err := cadence.Step()
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s before %s", ErrInvalidRange, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	steps := int64(end.Sub(start)/step) + 1
	if steps > MaxRangeSteps {
		return nil, fmt.Errorf("%w: %d steps, limit %d", ErrRangeTooLarge, steps, MaxRangeSteps)
	}

	predictions := make([]Prediction, 0, steps)
	for t := start; !t.After(end); t = t.Add(step) {
		p, err := f.predict(t, nil, rng)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, p)
	}
	return predictions, nil
}

// Hourly predicts from now through hours ahead, one point per hour.
func (f *Forecaster) Hourly(now time.Time, hours int, rng *rand.Rand) ([]Prediction, error) {
	return f.Range(now, now.Add(time.Duration(hours)*time.Hour), CadenceHourly, rng)
}

// Daily predicts from now through days ahead, one point per day.
func (f *Forecaster) Daily(now time.Time, days int, rng *rand.Rand) ([]Prediction, error) {
	return f.Range(now, now.Add(time.Duration(days)*24*time.Hour), CadenceDaily, rng)
}

func (f *Forecaster) predict(t time.Time, base *BaseParams, rng *rand.Rand) (Prediction, error) {
	local := t.In(f.location)
	reading := f.synth.Synthesize(local, base, rng)
	outcome, err := f.selector.Predict(reading)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{
		Timestamp:  local,
		Result:     outcome.Result,
		Reading:    reading,
		Provenance: outcome.Provenance,
		ModelName:  outcome.ModelName,
	}, nil
}

// Summary aggregates a forecast.
type Summary struct {
	Count      int
	AverageAQI float64
	MaxAQI     float64
	MinAQI     float64
	Peak       time.Time
	Categories map[airquality.Category]int
}

// Summarize aggregates predictions. The peak is the first prediction with
// the highest AQI.
func Summarize(predictions []Prediction) Summary {
	s := Summary{Categories: make(map[airquality.Category]int)}
	if len(predictions) == 0 {
		return s
	}

	var sum float64
	s.MinAQI = predictions[0].Result.AQI
	for _, p := range predictions {
		aqi := p.Result.AQI
		sum += aqi
		if s.Count == 0 || aqi > s.MaxAQI {
			s.MaxAQI = aqi
			s.Peak = p.Timestamp
		}
		if aqi < s.MinAQI {
			s.MinAQI = aqi
		}
		s.Categories[p.Result.Category]++
		s.Count++
	}
	s.AverageAQI = math.Round(sum/float64(s.Count)*10) / 10
	return s
}
