package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDurable is an in-memory stand-in for the Redis tier.
type fakeDurable struct {
	mu      sync.Mutex
	entries map[string]fakeEntry
	fail    bool
	sets    int
}

type fakeEntry struct {
	value     []byte
	expiresAt time.Time
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{entries: make(map[string]fakeEntry)}
}

func (f *fakeDurable) Get(_ context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, false
	}
	entry, ok := f.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (f *fakeDurable) TTL(_ context.Context, key string) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[key]
	if !ok {
		return 0, false
	}
	remaining := time.Until(entry.expiresAt)
	return remaining, remaining > 0
}

func (f *fakeDurable) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.fail {
		return
	}
	f.entries[key] = fakeEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

func (f *fakeDurable) Invalidate(_ context.Context, pattern string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.entries {
		if matchPattern(pattern, key) {
			delete(f.entries, key)
		}
	}
}

func TestFastTier_RoundTrip(t *testing.T) {
	ctx := context.Background()
	tier := NewFastTier(0)

	tier.Set(ctx, "k", []byte("v"), time.Minute)
	got, ok := tier.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestFastTier_Expiry(t *testing.T) {
	ctx := context.Background()
	tier := NewFastTier(0)
	base := time.Now()
	tier.now = func() time.Time { return base }

	tier.Set(ctx, "k", []byte("v"), time.Minute)

	tier.now = func() time.Time { return base.Add(61 * time.Second) }
	_, ok := tier.Get(ctx, "k")
	assert.False(t, ok, "expired entry must read as absent")
	assert.Equal(t, 0, tier.Len(), "expired entry must be lazily removed on read")
}

func TestFastTier_LRUEviction(t *testing.T) {
	ctx := context.Background()
	tier := NewFastTier(30) // room for three 10-byte values

	payload := []byte("0123456789")
	tier.Set(ctx, "a", payload, time.Minute)
	tier.Set(ctx, "b", payload, time.Minute)
	tier.Set(ctx, "c", payload, time.Minute)

	// Touch "a" so "b" becomes least recently used.
	_, ok := tier.Get(ctx, "a")
	require.True(t, ok)

	tier.Set(ctx, "d", payload, time.Minute)

	_, ok = tier.Get(ctx, "b")
	assert.False(t, ok, "LRU entry should have been evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := tier.Get(ctx, key)
		assert.True(t, ok, "entry %s should survive eviction", key)
	}
	assert.LessOrEqual(t, tier.UsedBytes(), int64(30))
}

func TestFastTier_Invalidate(t *testing.T) {
	ctx := context.Background()
	tier := NewFastTier(0)

	tier.Set(ctx, "ohlcv:AAPL:250", []byte("1"), time.Minute)
	tier.Set(ctx, "ohlcv:MSFT:250", []byte("2"), time.Minute)
	tier.Set(ctx, "price:AAPL", []byte("3"), time.Minute)

	tier.Invalidate(ctx, "ohlcv:*")

	_, ok := tier.Get(ctx, "ohlcv:AAPL:250")
	assert.False(t, ok)
	_, ok = tier.Get(ctx, "price:AAPL")
	assert.True(t, ok)
}

func TestTiered_PromotesDurableHit(t *testing.T) {
	ctx := context.Background()
	fast := NewFastTier(0)
	durable := newFakeDurable()
	tiered := NewTiered(fast, durable)

	durable.Set(ctx, "k", []byte("v"), time.Minute)

	got, ok := tiered.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	// Promotion means the fast tier now answers directly.
	got, ok = fast.Get(ctx, "k")
	require.True(t, ok, "durable hit should be promoted into fast tier")
	assert.Equal(t, []byte("v"), got)
}

func TestTiered_SetWritesBothTiers(t *testing.T) {
	ctx := context.Background()
	fast := NewFastTier(0)
	durable := newFakeDurable()
	tiered := NewTiered(fast, durable)

	tiered.Set(ctx, "k", []byte("v"), time.Minute)

	_, ok := fast.Get(ctx, "k")
	assert.True(t, ok)
	_, ok = durable.Get(ctx, "k")
	assert.True(t, ok)
}

func TestTiered_DurableFailureDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	durable.fail = true
	tiered := NewTiered(NewFastTier(0), durable)

	_, ok := tiered.Get(ctx, "missing")
	assert.False(t, ok, "durable failure must look like a miss, not an error")
}

func TestTiered_NilDurable(t *testing.T) {
	ctx := context.Background()
	tiered := NewTiered(NewFastTier(0), nil)

	tiered.Set(ctx, "k", []byte("v"), time.Minute)
	got, ok := tiered.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestTTLFor_Policy(t *testing.T) {
	assert.Equal(t, time.Hour, TTLFor(ClassOHLCV))
	assert.Equal(t, 15*time.Minute, TTLFor(ClassPrice))
	assert.Equal(t, 24*time.Hour, TTLFor(ClassFundamentals))
	assert.Equal(t, 30*24*time.Hour, TTLFor(ClassComplianceVerified))
	assert.Equal(t, 7*24*time.Hour, TTLFor(ClassComplianceUnverified))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ohlcv:AAPL:250", Key("ohlcv", "AAPL", "250"))
}
