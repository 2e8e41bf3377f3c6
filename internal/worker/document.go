package worker

import (
	"math"
	"time"

	"github.com/aqicast/aqicast/internal/airquality"
	"github.com/aqicast/aqicast/internal/forecast"
	"github.com/aqicast/aqicast/internal/history"
)

// DocumentVersion is the api_version written into snapshot metadata.
const DocumentVersion = "1.0"

// Document is the static forecast snapshot. Field names follow the format
// already consumed by the web dashboard, so they are snake_case unlike the
// HTTP API.
type Document struct {
	Metadata       DocumentMetadata         `json:"metadata"`
	Current        CurrentEntry             `json:"current"`
	Forecasts      Forecasts                `json:"forecasts"`
	Summaries      Summaries                `json:"summaries"`
	AQIReference   map[string]ReferenceBand `json:"aqi_reference"`
	ParametersInfo map[string]ParameterDoc  `json:"parameters_info"`
}

// DocumentMetadata describes how and when a snapshot was produced.
type DocumentMetadata struct {
	APIVersion  string         `json:"api_version"`
	SnapshotID  string         `json:"snapshot_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	ModelType   string         `json:"model_type"`
	Location    string         `json:"location"`
	Coordinates CoordinatesDoc `json:"coordinates"`
	Timezone    string         `json:"timezone"`
	Seed        uint64         `json:"seed"`
	Description string         `json:"description"`
}

// CoordinatesDoc is the sensor position.
type CoordinatesDoc struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CurrentEntry is the prediction for the generation time.
type CurrentEntry struct {
	AQI        float64       `json:"aqi"`
	Category   string        `json:"category"`
	Color      string        `json:"color"`
	Timestamp  time.Time     `json:"timestamp"`
	Method     string        `json:"method"`
	Parameters ParametersDoc `json:"parameters"`
}

// Forecasts holds the two published horizons.
type Forecasts struct {
	Hourly []ForecastEntry `json:"hourly_24h"`
	Daily  []ForecastEntry `json:"daily_7d"`
}

// ForecastEntry is one forecast point.
type ForecastEntry struct {
	Datetime     time.Time     `json:"datetime"`
	PredictedAQI float64       `json:"predicted_aqi"`
	Category     string        `json:"category"`
	Color        string        `json:"color"`
	Method       string        `json:"method"`
	Parameters   ParametersDoc `json:"parameters"`
	TemporalInfo TemporalInfo  `json:"temporal_info"`
}

// ParametersDoc is the synthesized sensor input behind a prediction.
type ParametersDoc struct {
	PM1         float64  `json:"pm1"`
	PM25        float64  `json:"pm25"`
	Temperature float64  `json:"temperature"`
	Humidity    float64  `json:"humidity"`
	Ultrafine   *float64 `json:"ultrafine_particles,omitempty"`
}

// TemporalInfo is the calendar position of a forecast point. DayOfWeek
// counts from Monday = 0.
type TemporalInfo struct {
	Hour      int  `json:"hour"`
	DayOfWeek int  `json:"day_of_week"`
	Month     int  `json:"month"`
	IsWeekend bool `json:"is_weekend"`
}

// Summaries aggregates each horizon.
type Summaries struct {
	Hourly SummaryDoc `json:"hourly_24h"`
	Daily  SummaryDoc `json:"daily_7d"`
}

// SummaryDoc is forecast.Summary in document form.
type SummaryDoc struct {
	Count      int            `json:"count"`
	AverageAQI float64        `json:"average_aqi"`
	MinAQI     float64        `json:"min_aqi"`
	MaxAQI     float64        `json:"max_aqi"`
	PeakAt     *time.Time     `json:"peak_at,omitempty"`
	Categories map[string]int `json:"categories"`
}

// ReferenceBand is one row of the AQI reference table, keyed by label.
type ReferenceBand struct {
	Min         int    `json:"min"`
	Max         int    `json:"max"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// ParameterDoc describes one sensor parameter.
type ParameterDoc struct {
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

var parametersInfo = map[string]ParameterDoc{
	"pm1":                 {Name: "PM1.0", Unit: "µg/m³", Description: "Particulate matter with diameter less than 1 micrometer"},
	"pm25":                {Name: "PM2.5", Unit: "µg/m³", Description: "Particulate matter with diameter less than 2.5 micrometers"},
	"temperature":         {Name: "Temperature", Unit: "°C", Description: "Ambient temperature"},
	"humidity":            {Name: "Relative Humidity", Unit: "%", Description: "Relative humidity percentage"},
	"ultrafine_particles": {Name: "Ultrafine Particles", Unit: "particles/cm³", Description: "Count of particles at 0.3 micrometers"},
}

func aqiReference() map[string]ReferenceBand {
	ref := make(map[string]ReferenceBand, len(airquality.Categories))
	for _, entry := range airquality.Scale() {
		ref[entry.Label] = ReferenceBand{
			Min:         entry.Low,
			Max:         entry.High,
			Color:       entry.Color,
			Description: entry.Advice.General,
		}
	}
	return ref
}

func toParameters(r history.Reading) ParametersDoc {
	doc := ParametersDoc{
		PM1:         round1(r.PM1),
		PM25:        round1(r.PM25),
		Temperature: round1(r.Temperature),
		Humidity:    round1(r.Humidity),
	}
	if v, ok := r.Value(history.FieldUltrafine); ok {
		v = math.Round(v)
		doc.Ultrafine = &v
	}
	return doc
}

func toCurrent(p forecast.Prediction) CurrentEntry {
	return CurrentEntry{
		AQI:        p.Result.AQI,
		Category:   p.Result.Category.Label(),
		Color:      p.Result.Color,
		Timestamp:  p.Timestamp,
		Method:     string(p.Provenance),
		Parameters: toParameters(p.Reading),
	}
}

func toEntries(predictions []forecast.Prediction) []ForecastEntry {
	entries := make([]ForecastEntry, 0, len(predictions))
	for _, p := range predictions {
		cal := history.CalendarOf(p.Timestamp)
		entries = append(entries, ForecastEntry{
			Datetime:     p.Timestamp,
			PredictedAQI: p.Result.AQI,
			Category:     p.Result.Category.Label(),
			Color:        p.Result.Color,
			Method:       string(p.Provenance),
			Parameters:   toParameters(p.Reading),
			TemporalInfo: TemporalInfo{
				Hour:      cal.Hour,
				DayOfWeek: cal.DayOfWeek,
				Month:     cal.Month,
				IsWeekend: cal.IsWeekend,
			},
		})
	}
	return entries
}

func toSummary(s forecast.Summary) SummaryDoc {
	doc := SummaryDoc{
		Count:      s.Count,
		AverageAQI: s.AverageAQI,
		MinAQI:     s.MinAQI,
		MaxAQI:     s.MaxAQI,
		Categories: make(map[string]int, len(s.Categories)),
	}
	if s.Count > 0 {
		peak := s.Peak
		doc.PeakAt = &peak
	}
	for c, n := range s.Categories {
		doc.Categories[c.Label()] = n
	}
	return doc
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
