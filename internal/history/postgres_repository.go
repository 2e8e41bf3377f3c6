package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewPostgresRepository creates a new PostgreSQL reading repository. Listed
// timestamps are converted to loc so hour and month aggregation happens in
// the sensor's local time; a nil loc keeps them as the driver returns them.
func NewPostgresRepository(pool *pgxpool.Pool, loc *time.Location) *PostgresRepository {
	return &PostgresRepository{pool: pool, loc: loc}
}

const schema = `
	CREATE TABLE IF NOT EXISTS sensor_readings (
		measured_at TIMESTAMPTZ PRIMARY KEY,
		pm1         DOUBLE PRECISION NOT NULL,
		pm25        DOUBLE PRECISION NOT NULL,
		temperature DOUBLE PRECISION NOT NULL,
		humidity    DOUBLE PRECISION NOT NULL,
		ultrafine   DOUBLE PRECISION NOT NULL DEFAULT 0
	)
`

// EnsureSchema creates the readings table when it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create sensor_readings: %w", err)
	}
	return nil
}

// ListReadings returns readings taken at or after since, oldest first.
func (r *PostgresRepository) ListReadings(ctx context.Context, since time.Time) ([]Reading, error) {
	query := `
		SELECT measured_at, pm1, pm25, temperature, humidity, ultrafine
		FROM sensor_readings
		WHERE measured_at >= $1
		ORDER BY measured_at
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var reading Reading
		err := rows.Scan(
			&reading.Timestamp,
			&reading.PM1,
			&reading.PM25,
			&reading.Temperature,
			&reading.Humidity,
			&reading.Ultrafine,
		)
		if err != nil {
			return nil, err
		}
		if r.loc != nil {
			reading.Timestamp = reading.Timestamp.In(r.loc)
		}
		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return readings, nil
}

// InsertReadings upserts readings in a single batch.
func (r *PostgresRepository) InsertReadings(ctx context.Context, readings []Reading) error {
	if len(readings) == 0 {
		return nil
	}

	query := `
		INSERT INTO sensor_readings (measured_at, pm1, pm25, temperature, humidity, ultrafine)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (measured_at) DO UPDATE SET
			pm1 = EXCLUDED.pm1,
			pm25 = EXCLUDED.pm25,
			temperature = EXCLUDED.temperature,
			humidity = EXCLUDED.humidity,
			ultrafine = EXCLUDED.ultrafine
	`

	batch := &pgx.Batch{}
	for _, reading := range readings {
		batch.Queue(query,
			reading.Timestamp,
			reading.PM1,
			reading.PM25,
			reading.Temperature,
			reading.Humidity,
			reading.Ultrafine,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck // close error surfaces through Exec

	for i := range readings {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert reading %d: %w", i, err)
		}
	}
	return nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
