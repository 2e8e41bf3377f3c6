// Package model loads trained AQI regression bundles and evaluates them.
//
// Bundles are exported from the training pipeline as JSON artifacts holding
// the regressor, an optional standard scaler, and the ordered feature names
// the regressor was fitted on.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Model errors.
var (
	ErrModelUnavailable = errors.New("model bundle unavailable")
	ErrPredictionFailed = errors.New("model prediction failed")
)

// Regressor maps a feature vector onto a predicted AQI.
type Regressor interface {
	Predict(features []float64) (float64, error)
}

// Scaler normalizes a feature vector before it reaches a Regressor.
type Scaler interface {
	Transform(features []float64) ([]float64, error)
}

// Bundle is a loaded, read-only model.
type Bundle struct {
	Regressor    Regressor
	Scaler       Scaler
	FeatureNames []string
	ModelName    string

	// Source and LoadedAt describe where and when the bundle was loaded.
	Source   string
	LoadedAt time.Time
}

// Validate checks that a bundle can serve predictions.
func (b *Bundle) Validate() error {
	if b == nil || b.Regressor == nil {
		return fmt.Errorf("%w: no regressor", ErrModelUnavailable)
	}
	if len(b.FeatureNames) == 0 {
		return fmt.Errorf("%w: no feature names", ErrModelUnavailable)
	}
	seen := make(map[string]bool, len(b.FeatureNames))
	for _, name := range b.FeatureNames {
		if seen[name] {
			return fmt.Errorf("%w: duplicate feature %q", ErrModelUnavailable, name)
		}
		seen[name] = true
	}
	return nil
}

// Scaled reports whether features go through the scaler before prediction.
func (b *Bundle) Scaled() bool {
	return b.Scaler != nil && RequiresScaling(b.ModelName)
}

// RequiresScaling reports whether a model family was trained on
// standardized features. Tree ensembles are scale invariant and were fitted
// on raw features.
func RequiresScaling(modelName string) bool {
	name := strings.ToLower(modelName)
	for _, linear := range []string{"linear", "ridge", "lasso", "elastic"} {
		if strings.Contains(name, linear) {
			return true
		}
	}
	return false
}

// FailingRegressor always fails. It stands in for a broken model.
type FailingRegressor struct {
	Err error
}

// Predict returns the configured error.
func (f FailingRegressor) Predict([]float64) (float64, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return 0, ErrPredictionFailed
}

func checkWidth(kind string, got, want int) error {
	if got != want {
		return fmt.Errorf("%w: %s expects %d features, got %d", ErrPredictionFailed, kind, want, got)
	}
	return nil
}
