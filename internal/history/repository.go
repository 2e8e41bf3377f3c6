package history

import (
	"context"
	"time"
)

// Repository defines the interface for reading storage.
type Repository interface {
	// ListReadings returns readings taken at or after since, oldest first.
	// A zero since returns everything.
	ListReadings(ctx context.Context, since time.Time) ([]Reading, error)

	// InsertReadings stores readings, replacing any with the same timestamp.
	InsertReadings(ctx context.Context, readings []Reading) error
}
