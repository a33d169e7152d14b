package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"cohortlens/internal/errors"
)

// StorageKey is the fixed kv row holding every cached entry
const StorageKey = "cohortlens.recommendation_cache"

// SQLite persists the whole cache as one JSON map in a single kv row
type SQLite struct {
	mu     sync.Mutex
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	logger *errors.Logger
}

// OpenSQLite opens (or creates) the cache database at path
func OpenSQLite(ctx context.Context, path string, ttl time.Duration, logger *errors.Logger) (*SQLite, error) {
	if path == "" {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "sqlite cache requires a path", nil)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, errors.NewCacheError(errors.ErrCodeCacheUnavailable, "failed to create cache directory", err).
				WithContext("path", dir)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewCacheError(errors.ErrCodeCacheUnavailable, "failed to open cache database", err).
			WithContext("path", path)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, errors.NewCacheError(errors.ErrCodeCacheUnavailable, "failed to initialize cache schema", err).
			WithContext("path", path)
	}

	return &SQLite{db: db, ttl: ttl, now: time.Now, logger: logger}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		s.logger.LogError(err, "Cache read failed")
		return nil, false
	}
	entry, ok := entries[key]
	if !ok {
		return nil, false
	}
	return &entry, true
}

func (s *SQLite) Set(ctx context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entries[key] = entry
	return s.save(ctx, entries)
}

func (s *SQLite) Evict(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return s.save(ctx, entries)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// load reads the map, resetting a corrupt row and writing back when expired
// entries were dropped. Callers hold s.mu.
func (s *SQLite) load(ctx context.Context) (map[string]Entry, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, StorageKey).Scan(&raw)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return make(map[string]Entry), nil
	}
	if err != nil {
		return nil, errors.NewCacheError(errors.ErrCodeCacheUnavailable, "failed to read cache row", err)
	}

	entries := make(map[string]Entry)
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Warn("Cache contents unreadable, resetting", "error", err.Error())
		entries = make(map[string]Entry)
		if err := s.save(ctx, entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	now := s.now()
	dropped := 0
	for k, e := range entries {
		if e.expired(now, s.ttl) {
			delete(entries, k)
			dropped++
		}
	}
	if dropped > 0 {
		s.logger.Debug("Dropped expired cache entries", "count", dropped)
		if err := s.save(ctx, entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *SQLite) save(ctx context.Context, entries map[string]Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return errors.NewCacheError(errors.ErrCodeCacheCorrupt, "failed to encode cache", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		StorageKey, string(data))
	if err != nil {
		return errors.NewCacheError(errors.ErrCodeCacheUnavailable, "failed to write cache row", err)
	}
	return nil
}
