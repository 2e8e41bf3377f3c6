package model

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Model kinds understood in artifacts.
const (
	KindLinearRegression = "linear_regression"
	KindRandomForest     = "random_forest"
	KindGradientBoosting = "gradient_boosting"
)

// Artifact is the JSON export of a trained bundle.
type Artifact struct {
	ModelName      string          `json:"model_name"`
	FeatureColumns []string        `json:"feature_columns"`
	Model          ArtifactModel   `json:"model"`
	Scaler         *ArtifactScaler `json:"scaler,omitempty"`
}

// ArtifactModel holds the parameters of one regressor. Which fields are
// used depends on Kind.
type ArtifactModel struct {
	Kind string `json:"kind"`

	Intercept    float64   `json:"intercept,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty"`

	Init         float64        `json:"init,omitempty"`
	LearningRate float64        `json:"learning_rate,omitempty"`
	Trees        []ArtifactTree `json:"trees,omitempty"`
}

// ArtifactTree is a flattened regression tree.
type ArtifactTree struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	Value         []float64 `json:"value"`
}

// ArtifactScaler holds standard scaler parameters.
type ArtifactScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// DecodeArtifact reads and builds a bundle from JSON.
func DecodeArtifact(r io.Reader) (*Bundle, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decode artifact: %v", ErrModelUnavailable, err)
	}
	return a.Build()
}

// Build validates the artifact and turns it into a bundle.
func (a *Artifact) Build() (*Bundle, error) {
	width := len(a.FeatureColumns)

	var regressor Regressor
	switch a.Model.Kind {
	case KindLinearRegression:
		if len(a.Model.Coefficients) != width {
			return nil, fmt.Errorf("%w: %d coefficients for %d features", ErrModelUnavailable, len(a.Model.Coefficients), width)
		}
		regressor = &LinearRegressor{Intercept: a.Model.Intercept, Coefficients: a.Model.Coefficients}
	case KindRandomForest, KindGradientBoosting:
		trees, err := buildTrees(a.Model.Trees, width)
		if err != nil {
			return nil, err
		}
		if a.Model.Kind == KindRandomForest {
			regressor = &RandomForest{Trees: trees, Width: width}
		} else {
			regressor = &GradientBoosting{
				Init:         a.Model.Init,
				LearningRate: a.Model.LearningRate,
				Trees:        trees,
				Width:        width,
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown model kind %q", ErrModelUnavailable, a.Model.Kind)
	}

	bundle := &Bundle{
		Regressor:    regressor,
		FeatureNames: a.FeatureColumns,
		ModelName:    a.ModelName,
		LoadedAt:     time.Now(),
	}

	if a.Scaler != nil {
		if len(a.Scaler.Mean) != width || len(a.Scaler.Scale) != width {
			return nil, fmt.Errorf("%w: scaler width does not match %d features", ErrModelUnavailable, width)
		}
		bundle.Scaler = &StandardScaler{Mean: a.Scaler.Mean, Scale: a.Scaler.Scale}
	}

	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return bundle, nil
}

func buildTrees(in []ArtifactTree, width int) ([]Tree, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: ensemble has no trees", ErrModelUnavailable)
	}
	trees := make([]Tree, len(in))
	for i, at := range in {
		trees[i] = Tree(at)
		if err := trees[i].validate(width); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return trees, nil
}
