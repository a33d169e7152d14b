// Package cache stores recommendation results keyed by requester and input prefix.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"cohortlens/internal/config"
	"cohortlens/internal/errors"
)

// Defaults used when configuration leaves a value unset
const (
	DefaultTTL          = 24 * time.Hour
	DefaultPrefixLength = 100
)

// Entry is one cached result
type Entry struct {
	Payload          json.RawMessage `json:"payload"`
	InputFingerprint string          `json:"inputFingerprint"`
	CreatedAt        time.Time       `json:"createdAt"`
}

func (e Entry) expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(e.CreatedAt) >= ttl
}

// Store is a keyed result cache. Writes are last-write-wins and expired
// entries are never returned.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, entry Entry) error
	Evict(ctx context.Context, key string) error
	Close() error
}

// Key derives the cache key from an identifier and the first prefixLen runes of the input
func Key(identifier, input string, prefixLen int) string {
	if prefixLen <= 0 {
		prefixLen = DefaultPrefixLength
	}
	runes := []rune(input)
	if len(runes) > prefixLen {
		runes = runes[:prefixLen]
	}
	sum := sha256.Sum256([]byte(identifier + "\x00" + string(runes)))
	return hex.EncodeToString(sum[:])
}

// Fingerprint hashes the complete input so a hit on a shared prefix can be told apart
func Fingerprint(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// New opens the backend selected by configuration
func New(ctx context.Context, cfg config.CacheConfig, logger *errors.Logger) (Store, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemory(ttl), nil
	case "sqlite":
		store, err := OpenSQLite(ctx, cfg.SQLitePath, ttl, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		store, err := OpenRedis(ctx, cfg.Redis, ttl, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unsupported cache backend: %s", cfg.Backend), nil).
			WithContext("backend", cfg.Backend)
	}
}

// HitRecorder receives one call per lookup
type HitRecorder interface {
	RecordCacheLookup(ctx context.Context, hit bool)
}

// Counting wraps a Store with hit and miss counters
type Counting struct {
	Store
	hits     atomic.Int64
	misses   atomic.Int64
	recorder HitRecorder
}

// NewCounting wraps store; recorder may be nil
func NewCounting(store Store, recorder HitRecorder) *Counting {
	return &Counting{Store: store, recorder: recorder}
}

// Get delegates to the wrapped store and counts the outcome
func (c *Counting) Get(ctx context.Context, key string) (*Entry, bool) {
	entry, ok := c.Store.Get(ctx, key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(ctx, ok)
	}
	return entry, ok
}

// Stats returns the counters for the stats endpoint
func (c *Counting) Stats() map[string]any {
	hits, misses := c.hits.Load(), c.misses.Load()
	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return map[string]any{
		"hits":      hits,
		"misses":    misses,
		"hit_ratio": ratio,
	}
}
