// Package ratelimit gates outbound calls to external data sources with a
// token bucket per source. Buckets are sized from the source's hourly quota
// and refill continuously at quota/3600 tokens per second.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/stockrun/stockrun/internal/metrics"
)

// ErrRateLimited is returned when Acquire cannot obtain a token before its
// deadline. Callers treat it as per-call recoverable: retry or skip.
var ErrRateLimited = errors.New("rate limit acquisition timed out")

// Limiter manages one token bucket per named source.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
	quotas  map[string]int
}

// NewLimiter creates a limiter from hourly quotas keyed by source name.
// Sources without a configured quota are unlimited.
func NewLimiter(hourlyQuotas map[string]int) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*rate.Limiter),
		quotas:  make(map[string]int),
	}
	for source, quota := range hourlyQuotas {
		l.SetQuota(source, quota)
	}
	return l
}

// SetQuota installs or replaces the hourly quota for a source. The bucket
// starts full so a fresh process can burst up to the quota.
func (l *Limiter) SetQuota(source string, hourlyQuota int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hourlyQuota <= 0 {
		delete(l.buckets, source)
		delete(l.quotas, source)
		return
	}
	refill := rate.Limit(float64(hourlyQuota) / 3600.0)
	l.buckets[source] = rate.NewLimiter(refill, hourlyQuota)
	l.quotas[source] = hourlyQuota
}

func (l *Limiter) bucket(source string) *rate.Limiter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buckets[source]
}

// Acquire blocks until a token for source is available or ctx is done.
// Deadline expiry maps to ErrRateLimited; callers that need a cap must pass
// a context with a deadline.
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	bucket := l.bucket(source)
	if bucket == nil {
		return nil
	}
	start := time.Now()
	err := bucket.Wait(ctx)
	metrics.RateLimitWaits.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RateLimitTimeouts.WithLabelValues(source).Inc()
		if ctx.Err() == context.Canceled {
			return ctx.Err()
		}
		return fmt.Errorf("source %s: %w", source, ErrRateLimited)
	}
	return nil
}

// TryAcquire is the non-blocking variant.
func (l *Limiter) TryAcquire(source string) bool {
	bucket := l.bucket(source)
	if bucket == nil {
		return true
	}
	return bucket.Allow()
}

// Tokens reports the tokens currently available for a source, for the
// monitor endpoint.
func (l *Limiter) Tokens(source string) float64 {
	bucket := l.bucket(source)
	if bucket == nil {
		return -1
	}
	return bucket.Tokens()
}

// Quotas returns the configured hourly quotas.
func (l *Limiter) Quotas() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int, len(l.quotas))
	for source, quota := range l.quotas {
		out[source] = quota
	}
	return out
}
