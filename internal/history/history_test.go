package history_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqicast/aqicast/internal/history"
)

var phnomPenh = time.FixedZone("ICT", 7*3600)

func reading(ts time.Time, pm25, temp float64) history.Reading {
	return history.Reading{
		Timestamp:   ts,
		PM1:         pm25 * 0.8,
		PM25:        pm25,
		Temperature: temp,
		Humidity:    60,
	}
}

func TestCalendarOf(t *testing.T) {
	// 2024-06-15 is a Saturday.
	cal := history.CalendarOf(time.Date(2024, 6, 15, 14, 30, 0, 0, phnomPenh))
	assert.Equal(t, 14, cal.Hour)
	assert.Equal(t, 5, cal.DayOfWeek)
	assert.Equal(t, 6, cal.Month)
	assert.True(t, cal.IsWeekend)

	monday := history.CalendarOf(time.Date(2024, 6, 17, 0, 0, 0, 0, phnomPenh))
	assert.Equal(t, 0, monday.DayOfWeek)
	assert.False(t, monday.IsWeekend)
}

func TestReadingValue_UltrafineMissing(t *testing.T) {
	r := reading(time.Now(), 20, 28)
	_, ok := r.Value(history.FieldUltrafine)
	assert.False(t, ok)

	r.Ultrafine = 1800
	v, ok := r.Value(history.FieldUltrafine)
	assert.True(t, ok)
	assert.Equal(t, 1800.0, v)
}

func TestStats_Means(t *testing.T) {
	base := time.Date(2024, 1, 10, 8, 0, 0, 0, phnomPenh)
	readings := []history.Reading{
		reading(base, 10, 25),
		reading(base.Add(24*time.Hour), 30, 27),
		reading(base.Add(2*time.Hour), 50, 29),
		reading(base.AddDate(0, 1, 0), 70, 33),
	}
	stats := history.NewStats(readings)

	v, ok := stats.HourMean(history.FieldPM25, 8)
	require.True(t, ok)
	assert.InDelta(t, (10+30+70)/3.0, v, 1e-9)

	v, ok = stats.MonthMean(history.FieldTemperature, time.January)
	require.True(t, ok)
	assert.InDelta(t, 27.0, v, 1e-9)

	v, ok = stats.Mean(history.FieldPM25)
	require.True(t, ok)
	assert.InDelta(t, 40.0, v, 1e-9)

	_, ok = stats.HourMean(history.FieldPM25, 3)
	assert.False(t, ok)
	_, ok = stats.Mean(history.FieldUltrafine)
	assert.False(t, ok)

	assert.Equal(t, 4, stats.Count())
	assert.Equal(t, base, stats.First())
	assert.Equal(t, base.AddDate(0, 1, 0), stats.Last())
}

func TestStats_NilIsEmpty(t *testing.T) {
	var stats *history.Stats
	assert.True(t, stats.Empty())
	_, ok := stats.Mean(history.FieldPM1)
	assert.False(t, ok)
	_, ok = stats.MonthMean(history.FieldHumidity, time.May)
	assert.False(t, ok)
	assert.True(t, stats.First().IsZero())
}

const openAQExport = `location_id,sensors_id,location,datetimeUtc,datetimeLocal,timezone,latitude,longitude,parameter,units,value
1,11,Phnom Penh,2024-03-01T01:00:00Z,2024-03-01T08:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,pm1,µg/m³,14.0
1,12,Phnom Penh,2024-03-01T01:00:00Z,2024-03-01T08:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,pm25,µg/m³,20.0
1,12,Phnom Penh,2024-03-01T01:00:00Z,2024-03-01T08:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,pm25,µg/m³,22.0
1,13,Phnom Penh,2024-03-01T01:00:00Z,2024-03-01T08:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,temperature,c,29.5
1,14,Phnom Penh,2024-03-01T01:00:00Z,2024-03-01T08:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,relativehumidity,%,70
1,15,Phnom Penh,2024-03-01T01:00:00Z,2024-03-01T08:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,um003,particles/cm³,1650
1,11,Phnom Penh,2024-03-01T00:00:00Z,2024-03-01T07:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,pm1,µg/m³,12.0
1,12,Phnom Penh,2024-03-01T00:00:00Z,2024-03-01T07:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,pm25,µg/m³,18.0
1,13,Phnom Penh,2024-03-01T00:00:00Z,2024-03-01T07:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,temperature,c,27.0
1,14,Phnom Penh,2024-03-01T00:00:00Z,2024-03-01T07:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,relativehumidity,%,75
1,12,Phnom Penh,2024-03-01T02:00:00Z,2024-03-01T09:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,pm25,µg/m³,25.0
1,16,Phnom Penh,2024-03-01T02:00:00Z,2024-03-01T09:00:00+07:00,Asia/Phnom_Penh,11.59,104.80,no2,ppb,9.0
`

func TestParseOpenAQCSV(t *testing.T) {
	readings, err := history.ParseOpenAQCSV(strings.NewReader(openAQExport))
	require.NoError(t, err)

	// The 09:00 row lacks PM1, temperature and humidity.
	require.Len(t, readings, 2)

	first := readings[0]
	assert.Equal(t, 7, first.Timestamp.Hour())
	assert.Equal(t, 18.0, first.PM25)
	assert.Equal(t, 0.0, first.Ultrafine)

	second := readings[1]
	assert.Equal(t, 21.0, second.PM25, "duplicate values are averaged")
	assert.Equal(t, 14.0, second.PM1)
	assert.Equal(t, 29.5, second.Temperature)
	assert.Equal(t, 70.0, second.Humidity)
	assert.Equal(t, 1650.0, second.Ultrafine)
}

func TestParseOpenAQCSV_UTCColumnOnly(t *testing.T) {
	export := `datetimeUtc,parameter,value
2024-03-01 01:00:00,pm1,14
2024-03-01 01:00:00,pm25,20
2024-03-01T01:00:00Z,temperature,29.5
2024-03-01T01:00:00,relativehumidity,70
`
	readings, err := history.ParseOpenAQCSV(strings.NewReader(export))
	require.NoError(t, err)
	require.Len(t, readings, 1, "zone-less and Z-suffixed values pivot onto one instant")

	ts := readings[0].Timestamp
	assert.Equal(t, time.UTC, ts.Location())
	assert.True(t, ts.Equal(time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, 20.0, readings[0].PM25)
}

func TestParseOpenAQCSV_MissingColumns(t *testing.T) {
	_, err := history.ParseOpenAQCSV(strings.NewReader("datetimeLocal,value\n2024-01-01T00:00:00Z,1\n"))
	assert.ErrorIs(t, err, history.ErrMalformedCSV)
}

func TestInMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := history.NewInMemoryRepository()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertReadings(ctx, []history.Reading{
		reading(base.Add(2*time.Hour), 30, 28),
		reading(base, 10, 28),
		reading(base.Add(time.Hour), 20, 28),
	}))
	// Same timestamp replaces.
	require.NoError(t, repo.InsertReadings(ctx, []history.Reading{reading(base, 15, 28)}))

	all, err := repo.ListReadings(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 15.0, all[0].PM25)
	assert.True(t, all[1].Timestamp.Before(all[2].Timestamp))

	recent, err := repo.ListReadings(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

type mockRepository struct {
	readings  []history.Reading
	err       error
	listCount atomic.Int32
}

func (m *mockRepository) ListReadings(_ context.Context, _ time.Time) ([]history.Reading, error) {
	m.listCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.readings, nil
}

func (m *mockRepository) InsertReadings(_ context.Context, _ []history.Reading) error {
	return m.err
}

func TestService_CachesSnapshot(t *testing.T) {
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockRepository{readings: []history.Reading{reading(base, 10, 28), reading(base.Add(time.Hour), 20, 29)}}
	svc := history.NewService(history.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   time.Minute,
	})

	ctx := context.Background()
	snapshot, err := svc.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Stats.Count())
	assert.Equal(t, 20.0, snapshot.Latest.PM25)

	_, err = svc.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.listCount.Load())

	status := svc.CacheStatus()
	assert.True(t, status.HasData)
	assert.False(t, status.IsExpired)
	assert.Equal(t, 2, status.ReadingCount)
}

func TestService_StaleIfError(t *testing.T) {
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockRepository{readings: []history.Reading{reading(base, 10, 28)}}
	svc := history.NewService(history.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   time.Minute,
	})

	ctx := context.Background()
	_, err := svc.GetSnapshot(ctx)
	require.NoError(t, err)

	repo.err = errors.New("connection refused")
	svc.InvalidateCache()

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count())
	assert.Equal(t, int32(2), repo.listCount.Load())
}

func TestService_EmptyHistory(t *testing.T) {
	svc := history.NewService(history.ServiceConfig{
		Repository: &mockRepository{},
		Logger:     zerolog.Nop(),
	})

	_, err := svc.Stats(context.Background())
	assert.ErrorIs(t, err, history.ErrHistoryUnavailable)
	assert.False(t, svc.CacheStatus().HasData)
}
