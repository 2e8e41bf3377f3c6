package airquality

import (
	"fmt"
	"math"
)

// breakpoint maps a PM2.5 concentration segment onto an AQI segment.
type breakpoint struct {
	pmLow, pmHigh   float64
	aqiLow, aqiHigh float64
}

// US EPA PM2.5 breakpoints in µg/m³.
var pm25Breakpoints = []breakpoint{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 500.4, 301, 500},
}

// Environmental adjustment thresholds.
const (
	hotThreshold      = 35.0
	coldThreshold     = 10.0
	temperatureFactor = 1.1

	humidHigh       = 80.0
	humidHighFactor = 1.05
	humidLow        = 30.0
	humidLowFactor  = 1.03

	pm1Ratio  = 0.8
	pm1Factor = 1.02
)

// Option supplies an optional co-measurement to Convert.
type Option func(*inputs)

type inputs struct {
	pm1         *float64
	temperature *float64
	humidity    *float64
}

// WithPM1 supplies a PM1 concentration in µg/m³.
func WithPM1(v float64) Option {
	return func(in *inputs) { in.pm1 = &v }
}

// WithTemperature supplies an air temperature in °C.
func WithTemperature(v float64) Option {
	return func(in *inputs) { in.temperature = &v }
}

// WithHumidity supplies relative humidity in percent.
func WithHumidity(v float64) Option {
	return func(in *inputs) { in.humidity = &v }
}

// Convert computes the AQI for a PM2.5 concentration plus any supplied
// co-measurements. Adjustments compound and each one needs only its own
// input to be present.
func Convert(pm25 float64, opts ...Option) (Result, error) {
	b, err := ConvertDetailed(pm25, opts...)
	if err != nil {
		return Result{}, err
	}
	return b.Result, nil
}

// ConvertDetailed is Convert with the intermediate factors exposed.
func ConvertDetailed(pm25 float64, opts ...Option) (Breakdown, error) {
	var in inputs
	for _, opt := range opts {
		opt(&in)
	}
	if err := validate(pm25, in); err != nil {
		return Breakdown{}, err
	}

	base := interpolate(pm25)
	out := Breakdown{
		BaseAQI:           round1(base),
		TemperatureFactor: 1,
		HumidityFactor:    1,
		PM1Factor:         1,
	}

	if in.temperature != nil {
		if t := *in.temperature; t > hotThreshold || t < coldThreshold {
			out.TemperatureFactor = temperatureFactor
		}
	}
	if in.humidity != nil {
		switch h := *in.humidity; {
		case h > humidHigh:
			out.HumidityFactor = humidHighFactor
		case h < humidLow:
			out.HumidityFactor = humidLowFactor
		}
	}
	if in.pm1 != nil && *in.pm1 > pm1Ratio*pm25 {
		out.PM1Factor = pm1Factor
	}

	aqi := base * out.TemperatureFactor * out.HumidityFactor * out.PM1Factor
	aqi = round1(math.Min(math.Max(aqi, 0), MaxAQI))

	category := CategoryFor(aqi)
	out.Result = Result{AQI: aqi, Category: category, Color: category.Color()}
	return out, nil
}

// interpolate returns the unadjusted AQI. Concentrations that fall in the
// gap between two published segments use the next segment up, which keeps
// the function monotonic.
func interpolate(pm25 float64) float64 {
	for _, bp := range pm25Breakpoints {
		if pm25 <= bp.pmHigh {
			c := math.Max(pm25, bp.pmLow)
			return bp.aqiLow + (bp.aqiHigh-bp.aqiLow)/(bp.pmHigh-bp.pmLow)*(c-bp.pmLow)
		}
	}
	return MaxAQI
}

func validate(pm25 float64, in inputs) error {
	if !finite(pm25) || pm25 < 0 {
		return fmt.Errorf("%w: pm25 %v", ErrInvalidInput, pm25)
	}
	if in.pm1 != nil && (!finite(*in.pm1) || *in.pm1 < 0) {
		return fmt.Errorf("%w: pm1 %v", ErrInvalidInput, *in.pm1)
	}
	if in.temperature != nil && !finite(*in.temperature) {
		return fmt.Errorf("%w: temperature %v", ErrInvalidInput, *in.temperature)
	}
	if in.humidity != nil && (!finite(*in.humidity) || *in.humidity < 0 || *in.humidity > 100) {
		return fmt.Errorf("%w: humidity %v", ErrInvalidInput, *in.humidity)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
