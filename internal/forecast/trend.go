package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/aqicast/aqicast/internal/airquality"
	"github.com/aqicast/aqicast/internal/history"
)

// TrendPoint is an AQI observation at a number of days since the start of
// the history.
type TrendPoint struct {
	ElapsedDays float64
	AQI         float64
}

// TrendModel is a fitted quadratic aqi = c0 + c1·d + c2·d².
type TrendModel struct {
	Coefficients [3]float64
	RSquared     float64
	Points       int
	Start        time.Time
}

// Predict evaluates the trend at elapsed days d.
func (m *TrendModel) Predict(d float64) float64 {
	c := m.Coefficients
	return c[0] + c[1]*d + c[2]*d*d
}

// At evaluates the trend at a timestamp, relative to Start.
func (m *TrendModel) At(t time.Time) float64 {
	return m.Predict(ElapsedDays(m.Start, t))
}

// ElapsedDays returns whole days from start to t.
func ElapsedDays(start, t time.Time) float64 {
	if start.IsZero() {
		return 0
	}
	return math.Floor(t.Sub(start).Hours() / 24)
}

// FitTrend fits a degree-2 polynomial by ordinary least squares.
func FitTrend(points []TrendPoint) (*TrendModel, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("%w: %d points", ErrInsufficientHistory, len(points))
	}

	// Normal equations: Σ d^(i+j) · c_j = Σ d^i · y
	var a [3][4]float64
	for _, p := range points {
		pow := [5]float64{1, p.ElapsedDays, p.ElapsedDays * p.ElapsedDays}
		pow[3] = pow[2] * p.ElapsedDays
		pow[4] = pow[3] * p.ElapsedDays
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				a[i][j] += pow[i+j]
			}
			a[i][3] += pow[i] * p.AQI
		}
	}

	coef, ok := solve3(a)
	if !ok {
		return nil, fmt.Errorf("%w: singular system", ErrInsufficientHistory)
	}

	m := &TrendModel{Coefficients: coef, Points: len(points)}
	m.RSquared = rSquared(m, points)
	return m, nil
}

// solve3 runs Gaussian elimination with partial pivoting on an augmented
// 3x4 matrix.
func solve3(a [3][4]float64) ([3]float64, bool) {
	var x [3]float64
	for col := 0; col < 3; col++ {
		pivot := col
		for row := col + 1; row < 3; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return x, false
		}
		a[col], a[pivot] = a[pivot], a[col]

		for row := col + 1; row < 3; row++ {
			f := a[row][col] / a[col][col]
			for k := col; k < 4; k++ {
				a[row][k] -= f * a[col][k]
			}
		}
	}
	for i := 2; i >= 0; i-- {
		sum := a[i][3]
		for j := i + 1; j < 3; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}
	return x, true
}

func rSquared(m *TrendModel, points []TrendPoint) float64 {
	var mean float64
	for _, p := range points {
		mean += p.AQI
	}
	mean /= float64(len(points))

	var ssRes, ssTot float64
	for _, p := range points {
		r := p.AQI - m.Predict(p.ElapsedDays)
		ssRes += r * r
		d := p.AQI - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

// TrendFromReadings scores each reading with the breakpoint formula and fits
// the trend over days since the earliest reading. Readings that fail
// validation are skipped.
func TrendFromReadings(readings []history.Reading) (*TrendModel, error) {
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w: no readings", ErrInsufficientHistory)
	}

	start := readings[0].Timestamp
	for _, r := range readings[1:] {
		if r.Timestamp.Before(start) {
			start = r.Timestamp
		}
	}

	points := make([]TrendPoint, 0, len(readings))
	for _, r := range readings {
		res, err := airquality.Convert(r.PM25,
			airquality.WithPM1(r.PM1),
			airquality.WithTemperature(r.Temperature),
			airquality.WithHumidity(r.Humidity),
		)
		if err != nil {
			continue
		}
		points = append(points, TrendPoint{ElapsedDays: ElapsedDays(start, r.Timestamp), AQI: res.AQI})
	}

	m, err := FitTrend(points)
	if err != nil {
		return nil, err
	}
	m.Start = start
	return m, nil
}
