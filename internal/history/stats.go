package history

import (
	"time"
)

type accumulator struct {
	sum   map[Field]float64
	count map[Field]int
}

func newAccumulator() accumulator {
	return accumulator{sum: make(map[Field]float64), count: make(map[Field]int)}
}

func (a accumulator) add(r Reading) {
	for _, f := range Fields {
		if v, ok := r.Value(f); ok {
			a.sum[f] += v
			a.count[f]++
		}
	}
}

func (a accumulator) mean(f Field) (float64, bool) {
	n := a.count[f]
	if n == 0 {
		return 0, false
	}
	return a.sum[f] / float64(n), true
}

// Stats is an immutable set of aggregates over a reading history. A nil
// *Stats behaves as an empty history.
type Stats struct {
	overall accumulator
	byHour  [24]accumulator
	byMonth [13]accumulator

	count int
	first time.Time
	last  time.Time
}

// NewStats aggregates readings. Hour and month buckets use each reading's
// own timestamp location.
func NewStats(readings []Reading) *Stats {
	s := &Stats{overall: newAccumulator()}
	for i := range s.byHour {
		s.byHour[i] = newAccumulator()
	}
	for i := range s.byMonth {
		s.byMonth[i] = newAccumulator()
	}

	for _, r := range readings {
		cal := r.Calendar()
		s.overall.add(r)
		s.byHour[cal.Hour].add(r)
		s.byMonth[cal.Month].add(r)

		if s.count == 0 || r.Timestamp.Before(s.first) {
			s.first = r.Timestamp
		}
		if s.count == 0 || r.Timestamp.After(s.last) {
			s.last = r.Timestamp
		}
		s.count++
	}
	return s
}

// Mean returns the all-time mean of a field.
func (s *Stats) Mean(f Field) (float64, bool) {
	if s == nil {
		return 0, false
	}
	return s.overall.mean(f)
}

// HourMean returns the mean of a field over readings taken at the given hour.
func (s *Stats) HourMean(f Field, hour int) (float64, bool) {
	if s == nil || hour < 0 || hour > 23 {
		return 0, false
	}
	return s.byHour[hour].mean(f)
}

// MonthMean returns the mean of a field over readings taken in the given month.
func (s *Stats) MonthMean(f Field, month time.Month) (float64, bool) {
	if s == nil || month < time.January || month > time.December {
		return 0, false
	}
	return s.byMonth[month].mean(f)
}

// Count returns the number of aggregated readings.
func (s *Stats) Count() int {
	if s == nil {
		return 0
	}
	return s.count
}

// Empty reports whether no readings were aggregated.
func (s *Stats) Empty() bool {
	return s.Count() == 0
}

// First returns the timestamp of the earliest reading.
func (s *Stats) First() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.first
}

// Last returns the timestamp of the latest reading.
func (s *Stats) Last() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.last
}
