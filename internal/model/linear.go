package model

// LinearRegressor is an ordinary or regularized linear model.
type LinearRegressor struct {
	Intercept    float64
	Coefficients []float64
}

// Predict returns intercept + Σ coef·x.
func (l *LinearRegressor) Predict(features []float64) (float64, error) {
	if err := checkWidth("linear model", len(features), len(l.Coefficients)); err != nil {
		return 0, err
	}
	y := l.Intercept
	for i, c := range l.Coefficients {
		y += c * features[i]
	}
	return y, nil
}

// StandardScaler applies (x - mean) / scale per feature.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Transform returns a scaled copy of features. A zero scale leaves the
// centred value unscaled.
func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if err := checkWidth("scaler", len(features), len(s.Mean)); err != nil {
		return nil, err
	}
	out := make([]float64, len(features))
	for i, x := range features {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (x - s.Mean[i]) / scale
	}
	return out, nil
}
