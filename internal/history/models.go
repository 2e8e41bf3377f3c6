// Package history stores past sensor readings and derives the aggregates
// used to synthesize future parameters.
package history

import (
	"errors"
	"time"
)

// History errors.
var (
	ErrHistoryUnavailable = errors.New("reading history unavailable")
)

// Field names a measured quantity of a Reading.
type Field string

const (
	FieldPM1         Field = "pm1"
	FieldPM25        Field = "pm25"
	FieldTemperature Field = "temperature"
	FieldHumidity    Field = "humidity"
	FieldUltrafine   Field = "ultrafine_particles"
)

// Fields lists every measured quantity.
var Fields = []Field{FieldPM1, FieldPM25, FieldTemperature, FieldHumidity, FieldUltrafine}

// Reading is one timestamped set of sensor measurements.
// A zero Ultrafine count means the sensor did not report particle counts.
type Reading struct {
	Timestamp   time.Time
	PM1         float64 // µg/m³
	PM25        float64 // µg/m³
	Temperature float64 // °C
	Humidity    float64 // percent
	Ultrafine   float64 // particles/cm³
}

// Value returns the measurement for a field and whether it is present.
func (r Reading) Value(f Field) (float64, bool) {
	switch f {
	case FieldPM1:
		return r.PM1, true
	case FieldPM25:
		return r.PM25, true
	case FieldTemperature:
		return r.Temperature, true
	case FieldHumidity:
		return r.Humidity, true
	case FieldUltrafine:
		return r.Ultrafine, r.Ultrafine > 0
	default:
		return 0, false
	}
}

// Calendar holds the time features derived from a reading's timestamp.
type Calendar struct {
	Hour      int
	DayOfWeek int // Monday is 0
	Month     int
	IsWeekend bool
}

// CalendarOf derives calendar features in the timestamp's own location.
func CalendarOf(t time.Time) Calendar {
	dow := (int(t.Weekday()) + 6) % 7
	return Calendar{
		Hour:      t.Hour(),
		DayOfWeek: dow,
		Month:     int(t.Month()),
		IsWeekend: dow >= 5,
	}
}

// Calendar returns the calendar features of the reading.
func (r Reading) Calendar() Calendar {
	return CalendarOf(r.Timestamp)
}
