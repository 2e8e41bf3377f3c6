package models

// Prediction is one forecast point.
type Prediction struct {
	AQIResult
	Timestamp  Timestamp  `json:"timestamp"`
	Method     string     `json:"method"`
	ModelName  string     `json:"modelName,omitempty"`
	Parameters Parameters `json:"parameters"`
}

// ForecastSummary aggregates a forecast.
type ForecastSummary struct {
	Count      int            `json:"count"`
	AverageAQI float64        `json:"averageAqi"`
	MaxAQI     float64        `json:"maxAqi"`
	MinAQI     float64        `json:"minAqi"`
	PeakAt     *Timestamp     `json:"peakAt,omitempty"`
	Categories map[string]int `json:"categories"`
}

// Forecast is the body of the forecast endpoints.
type Forecast struct {
	Cadence     string          `json:"cadence"`
	Start       Timestamp       `json:"start"`
	End         Timestamp       `json:"end"`
	Location    string          `json:"location"`
	Seed        *uint64         `json:"seed,omitempty"`
	Predictions []Prediction    `json:"predictions"`
	Summary     ForecastSummary `json:"summary"`
}

// Trend is the GET /v1/trend body: aqi = c0 + c1*d + c2*d^2, with d in
// whole days since Start.
type Trend struct {
	Coefficients [3]float64 `json:"coefficients"`
	RSquared     float64    `json:"rSquared"`
	Points       int        `json:"points"`
	Start        Timestamp  `json:"start"`
	Equation     string     `json:"equation"`
}
