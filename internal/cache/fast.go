package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/stockrun/stockrun/internal/metrics"
)

// DefaultFastBudget is the default fast-tier size budget.
const DefaultFastBudget = 100 << 20 // 100 MB

// FastTier is the in-process LRU tier. Entries carry an absolute expiry
// computed at write time; expired entries are treated as absent and removed
// lazily on read. Total stored bytes are bounded by the budget, evicting
// least-recently-used entries on overflow.
type FastTier struct {
	mu       sync.Mutex
	budget   int64
	used     int64
	order    *list.List // front = most recently used
	items    map[string]*list.Element
	now      func() time.Time
}

type fastEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewFastTier creates a fast tier with the given byte budget. A budget of 0
// uses DefaultFastBudget.
func NewFastTier(budget int64) *FastTier {
	if budget <= 0 {
		budget = DefaultFastBudget
	}
	return &FastTier{
		budget: budget,
		order:  list.New(),
		items:  make(map[string]*list.Element),
		now:    time.Now,
	}
}

// Get returns the value for key if present and unexpired, marking it most
// recently used.
func (f *FastTier) Get(_ context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	elem, ok := f.items[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*fastEntry)
	if f.now().After(entry.expiresAt) {
		f.remove(elem)
		return nil, false
	}
	f.order.MoveToFront(elem)
	return entry.value, true
}

// TTL reports the remaining lifetime of an unexpired entry.
func (f *FastTier) TTL(_ context.Context, key string) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	elem, ok := f.items[key]
	if !ok {
		return 0, false
	}
	remaining := elem.Value.(*fastEntry).expiresAt.Sub(f.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// Set stores value with an absolute expiry of now+ttl, evicting LRU entries
// until the tier is back under budget.
func (f *FastTier) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if elem, ok := f.items[key]; ok {
		f.remove(elem)
	}
	entry := &fastEntry{key: key, value: value, expiresAt: f.now().Add(ttl)}
	f.items[key] = f.order.PushFront(entry)
	f.used += int64(len(value))

	for f.used > f.budget {
		oldest := f.order.Back()
		if oldest == nil {
			break
		}
		f.remove(oldest)
		metrics.CacheEvictions.Inc()
	}
}

// Invalidate removes entries whose key matches the pattern (exact key or
// trailing-star prefix glob).
func (f *FastTier) Invalidate(_ context.Context, pattern string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key, elem := range f.items {
		if matchPattern(pattern, key) {
			f.remove(elem)
		}
	}
}

// Len returns the live entry count (expired entries included until touched).
func (f *FastTier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// UsedBytes returns current stored value bytes.
func (f *FastTier) UsedBytes() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used
}

// remove must be called with the lock held.
func (f *FastTier) remove(elem *list.Element) {
	entry := elem.Value.(*fastEntry)
	f.order.Remove(elem)
	delete(f.items, entry.key)
	f.used -= int64(len(entry.value))
}
