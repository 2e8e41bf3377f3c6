// Package airquality converts particulate concentrations into an Air Quality
// Index and maps index values onto health categories.
package airquality

import (
	"errors"
)

// Conversion errors.
var (
	ErrInvalidInput = errors.New("invalid air quality input")
)

// MaxAQI is the top of the index scale.
const MaxAQI = 500.0

// Category is an AQI health band.
type Category string

const (
	CategoryGood               Category = "GOOD"
	CategoryModerate           Category = "MODERATE"
	CategoryUnhealthySensitive Category = "UNHEALTHY_SENSITIVE"
	CategoryUnhealthy          Category = "UNHEALTHY"
	CategoryVeryUnhealthy      Category = "VERY_UNHEALTHY"
	CategoryHazardous          Category = "HAZARDOUS"
)

// Categories lists every band from cleanest to worst.
var Categories = []Category{
	CategoryGood,
	CategoryModerate,
	CategoryUnhealthySensitive,
	CategoryUnhealthy,
	CategoryVeryUnhealthy,
	CategoryHazardous,
}

type band struct {
	upper float64
	low   int
	label string
	color string
}

var bands = map[Category]band{
	CategoryGood:               {upper: 50, low: 0, label: "Good", color: "#00E400"},
	CategoryModerate:           {upper: 100, low: 51, label: "Moderate", color: "#FFFF00"},
	CategoryUnhealthySensitive: {upper: 150, low: 101, label: "Unhealthy for Sensitive Groups", color: "#FF7E00"},
	CategoryUnhealthy:          {upper: 200, low: 151, label: "Unhealthy", color: "#FF0000"},
	CategoryVeryUnhealthy:      {upper: 300, low: 201, label: "Very Unhealthy", color: "#8F3F97"},
	CategoryHazardous:          {upper: MaxAQI, low: 301, label: "Hazardous", color: "#7E0023"},
}

// Label returns the human readable category name.
func (c Category) Label() string {
	return bands[c].label
}

// Color returns the hex display color of the category.
func (c Category) Color() string {
	return bands[c].color
}

// Range returns the nominal AQI bounds of the category.
func (c Category) Range() (low, high int) {
	b := bands[c]
	return b.low, int(b.upper)
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := bands[c]
	return ok
}

// CategoryFor maps an AQI value onto its band. Boundaries are inclusive on
// the upper side, so 50 is GOOD and 50.1 is MODERATE.
func CategoryFor(aqi float64) Category {
	for _, c := range Categories[:len(Categories)-1] {
		if aqi <= bands[c].upper {
			return c
		}
	}
	return CategoryHazardous
}

// Result is a computed index value with its band.
type Result struct {
	AQI      float64
	Category Category
	Color    string
}

// Breakdown explains how a Result was produced.
type Breakdown struct {
	Result

	// BaseAQI is the interpolated index before environmental adjustments.
	BaseAQI float64

	// TemperatureFactor, HumidityFactor and PM1Factor are 1 when the
	// corresponding adjustment did not apply.
	TemperatureFactor float64
	HumidityFactor    float64
	PM1Factor         float64
}
