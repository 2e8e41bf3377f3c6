package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the history service.
type ServiceConfig struct {
	// Repository is the reading store.
	Repository Repository

	// Logger for service operations.
	Logger zerolog.Logger

	// Window limits aggregation to readings newer than now-Window.
	// Zero aggregates the whole history.
	Window time.Duration

	// CacheTTL is how long to cache the aggregates (default: 15 minutes).
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale aggregates on repository errors (default: 6 hours).
	StaleIfErrorTTL time.Duration
}

// Service provides cached aggregates over the reading history.
type Service struct {
	repo            Repository
	logger          zerolog.Logger
	window          time.Duration
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration

	mu          sync.RWMutex
	snapshot    *Snapshot
	cacheExpiry time.Time
}

// Snapshot is a point-in-time aggregation of the history.
type Snapshot struct {
	Stats *Stats

	// Readings are the aggregated readings, oldest first. Callers must not
	// modify them.
	Readings []Reading
	Latest   *Reading
	LoadedAt time.Time
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 15 * time.Minute
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 6 * time.Hour
	}

	return &Service{
		repo:            cfg.Repository,
		logger:          cfg.Logger,
		window:          cfg.Window,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
	}
}

// GetSnapshot returns the current aggregates, refreshing them when the cache
// has expired.
func (s *Service) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	if s.snapshot != nil && time.Now().Before(s.cacheExpiry) {
		snapshot := s.snapshot
		s.mu.RUnlock()
		return snapshot, nil
	}
	s.mu.RUnlock()

	return s.refresh(ctx)
}

// Stats returns the cached aggregates. It returns nil with
// ErrHistoryUnavailable when no history could be loaded, which callers treat
// as an empty history.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	snapshot, err := s.GetSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Stats, nil
}

// Refresh forces a reload from the repository.
func (s *Service) Refresh(ctx context.Context) error {
	s.InvalidateCache()
	_, err := s.refresh(ctx)
	return err
}

// InvalidateCache expires the cached aggregates without discarding them, so
// they remain available as stale data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheExpiry = time.Time{}
}

// CacheStatus returns information about the current cache state.
func (s *Service) CacheStatus() CacheStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return CacheStatus{}
	}

	now := time.Now()
	return CacheStatus{
		HasData:      true,
		LoadedAt:     s.snapshot.LoadedAt,
		ExpiresAt:    s.cacheExpiry,
		IsExpired:    now.After(s.cacheExpiry),
		IsStale:      now.After(s.snapshot.LoadedAt.Add(s.staleIfErrorTTL)),
		ReadingCount: s.snapshot.Stats.Count(),
		First:        s.snapshot.Stats.First(),
		Last:         s.snapshot.Stats.Last(),
	}
}

// CacheStatus represents the current state of the cache.
type CacheStatus struct {
	HasData      bool
	LoadedAt     time.Time
	ExpiresAt    time.Time
	IsExpired    bool
	IsStale      bool
	ReadingCount int
	First        time.Time
	Last         time.Time
}

func (s *Service) refresh(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine might have refreshed while we waited.
	if s.snapshot != nil && time.Now().Before(s.cacheExpiry) {
		return s.snapshot, nil
	}

	s.logger.Debug().Msg("refreshing reading history")

	var since time.Time
	if s.window > 0 {
		since = time.Now().Add(-s.window)
	}

	readings, err := s.repo.ListReadings(ctx, since)
	if err == nil && len(readings) == 0 {
		err = ErrHistoryUnavailable
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load reading history")

		if s.snapshot != nil && time.Now().Before(s.snapshot.LoadedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().
				Time("loaded_at", s.snapshot.LoadedAt).
				Msg("serving stale history due to repository error")
			return s.snapshot, nil
		}

		return nil, ErrHistoryUnavailable
	}

	latest := readings[len(readings)-1]
	s.snapshot = &Snapshot{
		Stats:    NewStats(readings),
		Readings: readings,
		Latest:   &latest,
		LoadedAt: time.Now(),
	}
	s.cacheExpiry = time.Now().Add(s.cacheTTL)

	s.logger.Info().
		Int("readings", len(readings)).
		Time("first", s.snapshot.Stats.First()).
		Time("last", s.snapshot.Stats.Last()).
		Msg("reading history refreshed")

	return s.snapshot, nil
}
