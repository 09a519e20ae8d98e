package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/metrics"
)

// durableEntry is the JSON envelope stored in Redis. ExpiresAt duplicates
// the Redis key TTL so promotion can carry the original expiry.
type durableEntry struct {
	Data      []byte    `json:"data"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisTier is the durable tier backed by Redis. Every error path degrades
// to a cache miss; the caller falls through to the source of truth.
type RedisTier struct {
	client    *redis.Client
	keyPrefix string
}

// RedisOptions configures the durable tier connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisTier connects the durable tier. The connection is pooled and
// lazily established; a down Redis shows up as misses, not errors.
func NewRedisTier(opts RedisOptions) *RedisTier {
	client := redis.NewClient(&redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		PoolSize:        10,
		MinIdleConns:    2,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "stockrun"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisTier{client: client, keyPrefix: prefix}
}

// Get fetches and decodes an entry. Expired entries are rejected even if
// Redis has not yet reaped the key.
func (r *RedisTier) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := r.client.Get(ctx, r.keyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.CacheErrors.Inc()
			log.Debug().Err(err).Str("key", key).Msg("durable cache read failed, degrading to miss")
		}
		return nil, false
	}
	var entry durableEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		metrics.CacheErrors.Inc()
		log.Debug().Err(err).Str("key", key).Msg("durable cache entry corrupt, degrading to miss")
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		r.client.Del(ctx, r.keyPrefix+key)
		return nil, false
	}
	return entry.Data, true
}

// TTL reports remaining lifetime from the stored expiry.
func (r *RedisTier) TTL(ctx context.Context, key string) (time.Duration, bool) {
	raw, err := r.client.Get(ctx, r.keyPrefix+key).Result()
	if err != nil {
		return 0, false
	}
	var entry durableEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return 0, false
	}
	remaining := time.Until(entry.ExpiresAt)
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// Set writes the envelope with the TTL applied to the Redis key as well.
// Write failures are logged and swallowed.
func (r *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := time.Now()
	payload, err := json.Marshal(durableEntry{Data: value, CachedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		metrics.CacheErrors.Inc()
		return
	}
	if err := r.client.Set(ctx, r.keyPrefix+key, payload, ttl).Err(); err != nil {
		metrics.CacheErrors.Inc()
		log.Warn().Err(err).Str("key", key).Msg("durable cache write failed")
	}
}

// Invalidate removes keys matching the pattern using a SCAN walk so large
// keyspaces are not blocked.
func (r *RedisTier) Invalidate(ctx context.Context, pattern string) {
	iter := r.client.Scan(ctx, 0, r.keyPrefix+pattern, 200).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			metrics.CacheErrors.Inc()
			return
		}
	}
	if err := iter.Err(); err != nil {
		metrics.CacheErrors.Inc()
		log.Warn().Err(err).Str("pattern", pattern).Msg("durable cache invalidate failed")
	}
}

// Ping verifies connectivity for the health endpoint.
func (r *RedisTier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *RedisTier) Close() error {
	return r.client.Close()
}
