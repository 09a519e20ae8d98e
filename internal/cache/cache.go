// Package cache implements the two-tier read-through cache: a byte-bounded
// LRU fast tier in front of a durable Redis tier. Values are opaque byte
// slices; callers own serialization. Cache operations never fail a read —
// durable-tier I/O errors degrade to misses so the pipeline always falls
// through to the source of truth.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/stockrun/stockrun/internal/metrics"
)

// Cache is the contract consumed by gateways and the compliance filter.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string)
}

// Tier is one storage layer of the tiered cache.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string)
}

// Tiered composes the fast and durable tiers with promotion on durable hit.
type Tiered struct {
	fast    Tier
	durable Tier
}

// NewTiered builds the two-tier cache. durable may be nil, in which case the
// cache runs fast-tier only (offline mode).
func NewTiered(fast, durable Tier) *Tiered {
	return &Tiered{fast: fast, durable: durable}
}

// Get checks the fast tier first, then the durable tier. A durable hit is
// promoted into the fast tier with the entry's remaining lifetime.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := t.fast.Get(ctx, key); ok {
		metrics.CacheHits.WithLabelValues("fast").Inc()
		return value, true
	}
	if t.durable != nil {
		if value, ok := t.durable.Get(ctx, key); ok {
			metrics.CacheHits.WithLabelValues("durable").Inc()
			metrics.CachePromotions.Inc()
			if remaining, ok := remainingTTL(t.durable, ctx, key); ok && remaining > 0 {
				t.fast.Set(ctx, key, value, remaining)
			}
			return value, true
		}
	}
	metrics.CacheMisses.Inc()
	return nil, false
}

// Set writes both tiers synchronously.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	t.fast.Set(ctx, key, value, ttl)
	if t.durable != nil {
		t.durable.Set(ctx, key, value, ttl)
	}
}

// Invalidate removes matching keys from both tiers.
func (t *Tiered) Invalidate(ctx context.Context, pattern string) {
	t.fast.Invalidate(ctx, pattern)
	if t.durable != nil {
		t.durable.Invalidate(ctx, pattern)
	}
}

// ttlReporter is implemented by tiers that can report an entry's remaining
// lifetime; used to carry the original expiry across promotion.
type ttlReporter interface {
	TTL(ctx context.Context, key string) (time.Duration, bool)
}

func remainingTTL(tier Tier, ctx context.Context, key string) (time.Duration, bool) {
	if r, ok := tier.(ttlReporter); ok {
		return r.TTL(ctx, key)
	}
	return 0, false
}

// Key joins key components with ":" the way all cache users build keys,
// e.g. Key("ohlcv", "AAPL", "250").
func Key(components ...string) string {
	return strings.Join(components, ":")
}

// matchPattern supports exact keys and a single trailing "*" prefix glob.
func matchPattern(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
