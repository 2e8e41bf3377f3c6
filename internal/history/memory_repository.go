package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository keeps readings in memory. It backs the CSV history mode
// and tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	readings map[int64]Reading
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		readings: make(map[int64]Reading),
	}
}

// NewInMemoryRepositoryWithReadings creates a repository seeded with readings.
func NewInMemoryRepositoryWithReadings(readings []Reading) *InMemoryRepository {
	repo := NewInMemoryRepository()
	for _, r := range readings {
		repo.readings[r.Timestamp.UnixNano()] = r
	}
	return repo
}

// ListReadings returns readings taken at or after since, oldest first.
func (r *InMemoryRepository) ListReadings(_ context.Context, since time.Time) ([]Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Reading, 0, len(r.readings))
	for _, reading := range r.readings {
		if !since.IsZero() && reading.Timestamp.Before(since) {
			continue
		}
		result = append(result, reading)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// InsertReadings stores readings, replacing any with the same timestamp.
func (r *InMemoryRepository) InsertReadings(_ context.Context, readings []Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reading := range readings {
		r.readings[reading.Timestamp.UnixNano()] = reading
	}
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
