// Package forecast projects AQI forward in time. It synthesizes plausible
// sensor parameters for future timestamps from historical aggregates, picks
// between a trained model and the breakpoint formula to score them, and
// iterates that over time ranges.
package forecast

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aqicast/aqicast/internal/airquality"
	"github.com/aqicast/aqicast/internal/history"
)

// Forecast errors.
var (
	ErrInvalidRange        = errors.New("range end is before start")
	ErrUnknownCadence      = errors.New("unknown cadence")
	ErrRangeTooLarge       = errors.New("range has too many steps")
	ErrInsufficientHistory = errors.New("insufficient history for trend fit")
)

// Provenance records which method produced a prediction.
type Provenance string

const (
	ProvenanceModel    Provenance = "ML_MODEL"
	ProvenanceFormula  Provenance = "EPA_FORMULA"
	ProvenanceFallback Provenance = "EPA_FALLBACK"
)

// Description returns the display name of the method.
func (p Provenance) Description() string {
	switch p {
	case ProvenanceModel:
		return "Machine Learning Model"
	case ProvenanceFormula:
		return "EPA Calculation"
	case ProvenanceFallback:
		return "EPA Calculation (Fallback)"
	default:
		return string(p)
	}
}

// Cadence is the step between consecutive range predictions.
type Cadence string

const (
	CadenceHourly Cadence = "hourly"
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

// Step returns the fixed duration of one cadence step. Steps are absolute
// durations, so a daily cadence across a DST change drifts by an hour in
// local wall-clock time.
func (c Cadence) Step() (time.Duration, error) {
	switch c {
	case CadenceHourly:
		return time.Hour, nil
	case CadenceDaily:
		return 24 * time.Hour, nil
	case CadenceWeekly:
		return 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCadence, string(c))
	}
}

// ParseCadence parses a cadence name.
func ParseCadence(s string) (Cadence, error) {
	c := Cadence(s)
	if _, err := c.Step(); err != nil {
		return "", err
	}
	return c, nil
}

// Prediction is one forecast point.
type Prediction struct {
	Timestamp  time.Time
	Result     airquality.Result
	Reading    history.Reading
	Provenance Provenance
	ModelName  string

	// Scenario numbers alternative draws for the same timestamp, from 1.
	Scenario int
}

// NewRand returns a seeded random source for one forecast request.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
