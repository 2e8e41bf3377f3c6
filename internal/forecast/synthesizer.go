package forecast

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/aqicast/aqicast/internal/history"
)

// SynthesisConfig holds the empirical constants of parameter synthesis.
type SynthesisConfig struct {
	// Fallbacks used when the history has nothing for a field.
	DefaultPM1         float64
	DefaultPM25        float64
	DefaultTemperature float64
	DefaultHumidity    float64
	DefaultUltrafine   float64

	// TrendSigma is the standard deviation of the multiplicative trend
	// factor applied to particulates.
	TrendSigma float64

	// SeasonalAmplitude scales the annual sine applied to particulates.
	SeasonalAmplitude float64

	// TemperatureSigma and HumiditySigma are additive noise deviations.
	TemperatureSigma float64
	HumiditySigma    float64

	MinParticulate float64
	MinUltrafine   float64
	MinHumidity    float64
	MaxHumidity    float64
}

// DefaultSynthesisConfig returns the constants tuned on the Phnom Penh
// sensor history.
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		DefaultPM1:         10,
		DefaultPM25:        20,
		DefaultTemperature: 28,
		DefaultHumidity:    65,
		DefaultUltrafine:   1500,
		TrendSigma:         0.05,
		SeasonalAmplitude:  0.1,
		TemperatureSigma:   2,
		HumiditySigma:      5,
		MinParticulate:     0.1,
		MinUltrafine:       100,
		MinHumidity:        10,
		MaxHumidity:        100,
	}
}

// Default returns the fixed fallback for a measured field. It reports false
// for fields without one.
func (c SynthesisConfig) Default(f history.Field) (float64, bool) {
	switch f {
	case history.FieldPM1:
		return c.DefaultPM1, true
	case history.FieldPM25:
		return c.DefaultPM25, true
	case history.FieldTemperature:
		return c.DefaultTemperature, true
	case history.FieldHumidity:
		return c.DefaultHumidity, true
	case history.FieldUltrafine:
		return c.DefaultUltrafine, true
	}
	return 0, false
}

// BaseParams overrides the history-derived base values. Nil fields fall back
// to the all-time history mean, then to the configured default.
type BaseParams struct {
	PM1         *float64
	PM25        *float64
	Temperature *float64
	Humidity    *float64
	Ultrafine   *float64
}

func (b *BaseParams) value(f history.Field) *float64 {
	switch f {
	case history.FieldPM1:
		return b.PM1
	case history.FieldPM25:
		return b.PM25
	case history.FieldTemperature:
		return b.Temperature
	case history.FieldHumidity:
		return b.Humidity
	case history.FieldUltrafine:
		return b.Ultrafine
	}
	return nil
}

// Synthesizer generates plausible sensor parameters for a timestamp.
type Synthesizer struct {
	stats *history.Stats
	cfg   SynthesisConfig
}

// NewSynthesizer creates a synthesizer over history aggregates. A nil stats
// means no history and every field uses its default.
func NewSynthesizer(stats *history.Stats, cfg SynthesisConfig) *Synthesizer {
	return &Synthesizer{stats: stats, cfg: cfg}
}

// Synthesize returns parameters for target. Particulates are based on the
// mean at the same hour of day and weather on the mean for the same month.
// A nil rng disables all random variation, which yields the expected
// value of each field.
func (s *Synthesizer) Synthesize(target time.Time, base *BaseParams, rng *rand.Rand) history.Reading {
	pm1 := s.base(history.FieldPM1, target, base)
	pm25 := s.base(history.FieldPM25, target, base)
	temperature := s.base(history.FieldTemperature, target, base)
	humidity := s.base(history.FieldHumidity, target, base)
	ultrafine := s.base(history.FieldUltrafine, target, base)

	trend := 1 + s.normal(rng, s.cfg.TrendSigma)
	seasonal := 1 + s.cfg.SeasonalAmplitude*math.Sin(2*math.Pi*float64(target.Month()-1)/12)
	particulate := trend * seasonal

	return history.Reading{
		Timestamp:   target,
		PM1:         math.Max(s.cfg.MinParticulate, pm1*particulate),
		PM25:        math.Max(s.cfg.MinParticulate, pm25*particulate),
		Temperature: temperature + s.normal(rng, s.cfg.TemperatureSigma),
		Humidity:    clamp(humidity+s.normal(rng, s.cfg.HumiditySigma), s.cfg.MinHumidity, s.cfg.MaxHumidity),
		Ultrafine:   math.Max(s.cfg.MinUltrafine, ultrafine*particulate),
	}
}

func (s *Synthesizer) base(f history.Field, target time.Time, base *BaseParams) float64 {
	if base != nil {
		if v := base.value(f); v != nil {
			return *v
		}
	} else {
		var (
			v  float64
			ok bool
		)
		switch f {
		case history.FieldTemperature, history.FieldHumidity:
			v, ok = s.stats.MonthMean(f, target.Month())
		default:
			v, ok = s.stats.HourMean(f, target.Hour())
		}
		if ok {
			return v
		}
	}

	if v, ok := s.stats.Mean(f); ok {
		return v
	}
	return s.fallback(f)
}

func (s *Synthesizer) fallback(f history.Field) float64 {
	v, _ := s.cfg.Default(f)
	return v
}

func (s *Synthesizer) normal(rng *rand.Rand, sigma float64) float64 {
	if rng == nil || sigma == 0 {
		return 0
	}
	return rng.NormFloat64() * sigma
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
