package corpus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cohortlens/internal/errors"
)

// Snapshot caches the last successful load of a source. Readers always see a
// complete record slice; a reload swaps it atomically.
type Snapshot struct {
	source Source
	logger *errors.Logger

	current  atomic.Pointer[[]Record]
	loadedAt atomic.Int64

	mu sync.Mutex // serializes reloads
}

// NewSnapshot wraps a source
func NewSnapshot(source Source, logger *errors.Logger) *Snapshot {
	return &Snapshot{source: source, logger: logger}
}

// Load returns the cached records, loading them on first use
func (s *Snapshot) Load(ctx context.Context) ([]Record, error) {
	if records := s.current.Load(); records != nil {
		return *records, nil
	}
	return s.Reload(ctx)
}

// Reload fetches the source again. On failure the previous snapshot stays in place.
func (s *Snapshot) Reload(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	records, err := s.source.Load(ctx)
	if err != nil {
		s.logger.LogError(err, "Failed to load corpus")
		if previous := s.current.Load(); previous != nil {
			s.logger.Warn("Keeping previous corpus snapshot", "records", len(*previous))
		}
		return nil, err
	}

	s.current.Store(&records)
	s.loadedAt.Store(time.Now().UnixNano())
	s.logger.Info("Corpus snapshot loaded",
		"records", len(records),
		"duration", time.Since(started).String())
	return records, nil
}

// Size returns the number of records in the current snapshot
func (s *Snapshot) Size() int {
	if records := s.current.Load(); records != nil {
		return len(*records)
	}
	return 0
}

// LoadedAt returns when the current snapshot was loaded
func (s *Snapshot) LoadedAt() time.Time {
	ns := s.loadedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
