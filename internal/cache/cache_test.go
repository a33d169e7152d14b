package cache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cohortlens/internal/config"
	"cohortlens/internal/errors"
)

func entry(payload string) Entry {
	return Entry{Payload: json.RawMessage(payload), InputFingerprint: Fingerprint(payload)}
}

func TestKey(t *testing.T) {
	long := strings.Repeat("가", 150)

	assert.Len(t, Key("user-1", "hello", 100), 64)
	assert.Equal(t, Key("user-1", "hello", 100), Key("user-1", "hello", 100))
	assert.NotEqual(t, Key("user-1", "hello", 100), Key("user-2", "hello", 100))
	assert.Equal(t, Key("user-1", long, 100), Key("user-1", long+" more text", 100),
		"only the first prefixLen runes participate")
	assert.NotEqual(t, Key("user-1", long, 0), Key("user-1", long[:3*50], 0))
	assert.NotEqual(t, Fingerprint(long), Fingerprint(long+" more text"))
}

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func openSQLite(t *testing.T, path string) *SQLite {
	store, err := OpenSQLite(context.Background(), path, time.Hour, errors.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	_, client := setupMiniRedis(t)

	stores := map[string]Store{
		"memory": NewMemory(time.Hour),
		"sqlite": openSQLite(t, filepath.Join(t.TempDir(), "cache.db")),
		"redis":  NewRedis(client, "", time.Hour, errors.Discard()),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok := store.Get(ctx, "missing")
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "k", entry(`{"v":1}`)))
			got, ok := store.Get(ctx, "k")
			require.True(t, ok)
			assert.JSONEq(t, `{"v":1}`, string(got.Payload))
			assert.False(t, got.CreatedAt.IsZero())

			require.NoError(t, store.Set(ctx, "k", entry(`{"v":2}`)))
			got, ok = store.Get(ctx, "k")
			require.True(t, ok)
			assert.JSONEq(t, `{"v":2}`, string(got.Payload), "last write wins")

			require.NoError(t, store.Evict(ctx, "k"))
			_, ok = store.Get(ctx, "k")
			assert.False(t, ok)
			assert.NoError(t, store.Evict(ctx, "k"))
		})
	}
}

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(24 * time.Hour)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", entry(`1`)))
	now = now.Add(23 * time.Hour)
	_, ok := m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok)
	assert.Empty(t, m.entries)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	ctx := context.Background()

	first, err := OpenSQLite(ctx, path, time.Hour, nil)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "k", entry(`{"kept":true}`)))
	require.NoError(t, first.Close())

	second := openSQLite(t, path)
	got, ok := second.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"kept":true}`, string(got.Payload))
}

func TestSQLiteExpiredEntriesDroppedOnLoad(t *testing.T) {
	store := openSQLite(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "old", entry(`1`)))
	now = now.Add(30 * time.Minute)
	require.NoError(t, store.Set(ctx, "new", entry(`2`)))
	now = now.Add(45 * time.Minute)

	_, ok := store.Get(ctx, "old")
	assert.False(t, ok)
	_, ok = store.Get(ctx, "new")
	assert.True(t, ok)

	var raw string
	require.NoError(t, store.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, StorageKey).Scan(&raw))
	assert.NotContains(t, raw, `"old"`)
}

func TestSQLiteResetsCorruptRow(t *testing.T) {
	store := openSQLite(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()

	_, err := store.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)`, StorageKey, "{not json")
	require.NoError(t, err)

	_, ok := store.Get(ctx, "k")
	assert.False(t, ok)

	var raw string
	require.NoError(t, store.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, StorageKey).Scan(&raw))
	assert.Equal(t, "{}", raw)

	require.NoError(t, store.Set(ctx, "k", entry(`1`)))
	_, ok = store.Get(ctx, "k")
	assert.True(t, ok)
}

func TestRedisTTLAndCorruption(t *testing.T) {
	mr, client := setupMiniRedis(t)
	store := NewRedis(client, "test:", time.Hour, errors.Discard())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", entry(`1`)))
	assert.True(t, mr.Exists("test:k"))
	assert.Equal(t, time.Hour, mr.TTL("test:k"))

	mr.FastForward(2 * time.Hour)
	_, ok := store.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, mr.Set("test:bad", "{garbage"))
	_, ok = store.Get(ctx, "bad")
	assert.False(t, ok)
	assert.False(t, mr.Exists("test:bad"), "corrupt values are evicted")
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = OpenRedis(context.Background(), config.RedisConfig{Address: addr}, time.Hour, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), errors.ErrCodeCacheUnavailable)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, config.CacheConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)

	store, err = New(ctx, config.CacheConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "c.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, store)
	require.NoError(t, store.Close())

	mr, _ := setupMiniRedis(t)
	store, err = New(ctx, config.CacheConfig{Backend: "redis", Redis: config.RedisConfig{Address: mr.Addr()}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, store)
	require.NoError(t, store.Close())

	_, err = New(ctx, config.CacheConfig{Backend: "memcached"}, nil)
	assert.Error(t, err)

	_, err = New(ctx, config.CacheConfig{Backend: "sqlite"}, nil)
	assert.Error(t, err)
}

type lookupRecorder struct{ hits, misses int }

func (r *lookupRecorder) RecordCacheLookup(_ context.Context, hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func TestCounting(t *testing.T) {
	rec := &lookupRecorder{}
	c := NewCounting(NewMemory(time.Hour), rec)
	ctx := context.Background()

	_, _ = c.Get(ctx, "k")
	require.NoError(t, c.Set(ctx, "k", entry(`1`)))
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "k")

	stats := c.Stats()
	assert.EqualValues(t, 2, stats["hits"])
	assert.EqualValues(t, 1, stats["misses"])
	assert.InDelta(t, 2.0/3.0, stats["hit_ratio"], 0.0001)
	assert.Equal(t, 2, rec.hits)
	assert.Equal(t, 1, rec.misses)
}
