package cache

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"cohortlens/internal/config"
	"cohortlens/internal/errors"
)

// DefaultRedisPrefix namespaces cache keys in a shared redis
const DefaultRedisPrefix = "cohortlens:rec:"

// Redis stores one key per entry with the TTL as native expiry
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger *errors.Logger
}

// OpenRedis connects and pings the configured redis
func OpenRedis(ctx context.Context, cfg config.RedisConfig, ttl time.Duration, logger *errors.Logger) (*Redis, error) {
	if cfg.Address == "" {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "redis cache requires an address", nil)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewCacheError(errors.ErrCodeCacheUnavailable, "redis unreachable", err).
			WithContext("address", cfg.Address)
	}
	logger.Info("Redis cache connected", "address", cfg.Address, "ttl", ttl.String())

	return NewRedis(client, cfg.Prefix, ttl, logger), nil
}

// NewRedis wraps an existing client
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, logger *errors.Logger) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, now: time.Now, logger: logger}
}

func (r *Redis) Get(ctx context.Context, key string) (*Entry, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if stdErrors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.LogError(errors.NewCacheError(errors.ErrCodeCacheUnavailable, "redis read failed", err), "Cache read failed")
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		r.logger.Warn("Evicting unreadable cache entry", "key", key, "error", err.Error())
		_ = r.Evict(ctx, key)
		return nil, false
	}
	if entry.expired(r.now(), r.ttl) {
		_ = r.Evict(ctx, key)
		return nil, false
	}
	return &entry, true
}

func (r *Redis) Set(ctx context.Context, key string, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.NewCacheError(errors.ErrCodeCacheCorrupt, "failed to encode cache entry", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		return errors.NewCacheError(errors.ErrCodeCacheUnavailable, "redis write failed", err)
	}
	return nil
}

func (r *Redis) Evict(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return errors.NewCacheError(errors.ErrCodeCacheUnavailable, "redis delete failed", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
