package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OpenAQ export parameter names mapped onto reading fields.
var openAQParameters = map[string]Field{
	"pm1":              FieldPM1,
	"pm25":             FieldPM25,
	"temperature":      FieldTemperature,
	"relativehumidity": FieldHumidity,
	"um003":            FieldUltrafine,
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
}

// ErrMalformedCSV is returned when a history export cannot be parsed.
var ErrMalformedCSV = errors.New("malformed history csv")

// LoadOpenAQFile opens and parses an OpenAQ long-format export.
func LoadOpenAQFile(path string) ([]Reading, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	return ParseOpenAQCSV(f)
}

// ParseOpenAQCSV parses the OpenAQ long format, one row per parameter, and
// pivots it into readings keyed by local timestamp. Duplicate values for the
// same timestamp and parameter are averaged. Rows lacking PM1, PM2.5,
// temperature or humidity are dropped. Without a datetimeLocal column the
// datetimeUtc column is used, and its zone-less values are read as UTC.
func ParseOpenAQCSV(r io.Reader) ([]Reading, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedCSV, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	tsCol, ok := cols["datetimeLocal"]
	if !ok {
		if tsCol, ok = cols["datetimeUtc"]; !ok {
			return nil, fmt.Errorf("%w: no datetime column", ErrMalformedCSV)
		}
	}
	paramCol, okParam := cols["parameter"]
	valueCol, okValue := cols["value"]
	if !okParam || !okValue {
		return nil, fmt.Errorf("%w: parameter and value columns required", ErrMalformedCSV)
	}

	type sums struct {
		ts    time.Time
		total map[Field]float64
		n     map[Field]int
	}
	pivot := make(map[int64]*sums)

	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedCSV, line, err)
		}
		if len(record) <= max(tsCol, paramCol, valueCol) {
			continue
		}

		field, known := openAQParameters[strings.ToLower(strings.TrimSpace(record[paramCol]))]
		if !known {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[valueCol]), 64)
		if err != nil {
			continue
		}
		ts, err := parseTimestamp(record[tsCol])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedCSV, line, err)
		}

		key := ts.UnixNano()
		s, exists := pivot[key]
		if !exists {
			s = &sums{ts: ts, total: make(map[Field]float64), n: make(map[Field]int)}
			pivot[key] = s
		}
		s.total[field] += value
		s.n[field]++
	}

	readings := make([]Reading, 0, len(pivot))
	for _, s := range pivot {
		mean := func(f Field) (float64, bool) {
			if s.n[f] == 0 {
				return 0, false
			}
			return s.total[f] / float64(s.n[f]), true
		}

		pm1, ok1 := mean(FieldPM1)
		pm25, ok2 := mean(FieldPM25)
		temp, ok3 := mean(FieldTemperature)
		hum, ok4 := mean(FieldHumidity)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		ultrafine, _ := mean(FieldUltrafine)

		readings = append(readings, Reading{
			Timestamp:   s.ts,
			PM1:         pm1,
			PM25:        pm25,
			Temperature: temp,
			Humidity:    hum,
			Ultrafine:   ultrafine,
		})
	}

	sort.Slice(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})
	return readings, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}
