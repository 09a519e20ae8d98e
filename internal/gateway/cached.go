package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/stockrun/stockrun/internal/cache"
	"github.com/stockrun/stockrun/internal/metrics"
	"github.com/stockrun/stockrun/internal/models"
	"github.com/stockrun/stockrun/internal/ratelimit"
)

// acquireTimeout caps how long one fetch may wait on the rate limiter
// before the call is treated as per-ticker recoverable.
const acquireTimeout = 30 * time.Second

// CachedMarketData decorates a MarketData gateway with the two-tier cache,
// the per-source rate limiter and a circuit breaker. This is the gateway
// the pipeline actually consumes.
type CachedMarketData struct {
	inner   MarketData
	cache   cache.Cache
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	source  string
}

// NewCachedMarketData builds the decorator for a named source.
func NewCachedMarketData(inner MarketData, c cache.Cache, limiter *ratelimit.Limiter, source string) *CachedMarketData {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        source,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("source", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("provider circuit breaker state change")
		},
	})
	return &CachedMarketData{
		inner:   inner,
		cache:   c,
		limiter: limiter,
		breaker: breaker,
		source:  source,
	}
}

// GetSeries serves OHLCV history cache-first with a 1-hour TTL.
func (g *CachedMarketData) GetSeries(ctx context.Context, ticker string, periods int) (*models.Series, error) {
	key := cache.Key("ohlcv", ticker, strconv.Itoa(periods))
	if raw, ok := g.cache.Get(ctx, key); ok {
		var series models.Series
		if err := json.Unmarshal(raw, &series); err == nil {
			return &series, nil
		}
	}

	series, err := fetch(ctx, g, func(ctx context.Context) (*models.Series, error) {
		return g.inner.GetSeries(ctx, ticker, periods)
	})
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(series); err == nil {
		g.cache.Set(ctx, key, raw, cache.TTLFor(cache.ClassOHLCV))
	}
	return series, nil
}

// GetCurrentPrice serves spot prices cache-first with a 15-minute TTL.
func (g *CachedMarketData) GetCurrentPrice(ctx context.Context, ticker string) (float64, error) {
	key := cache.Key("price", ticker)
	if raw, ok := g.cache.Get(ctx, key); ok {
		var price float64
		if err := json.Unmarshal(raw, &price); err == nil {
			return price, nil
		}
	}

	price, err := fetch(ctx, g, func(ctx context.Context) (float64, error) {
		return g.inner.GetCurrentPrice(ctx, ticker)
	})
	if err != nil {
		return 0, err
	}

	if raw, err := json.Marshal(price); err == nil {
		g.cache.Set(ctx, key, raw, cache.TTLFor(cache.ClassPrice))
	}
	return price, nil
}

// GetFundamentals serves fundamentals cache-first with a 24-hour TTL.
func (g *CachedMarketData) GetFundamentals(ctx context.Context, ticker string) (*models.Fundamentals, error) {
	key := cache.Key("fundamentals", ticker)
	if raw, ok := g.cache.Get(ctx, key); ok {
		var record models.Fundamentals
		if err := json.Unmarshal(raw, &record); err == nil {
			return &record, nil
		}
	}

	record, err := fetch(ctx, g, func(ctx context.Context) (*models.Fundamentals, error) {
		return g.inner.GetFundamentals(ctx, ticker)
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	if raw, err := json.Marshal(record); err == nil {
		g.cache.Set(ctx, key, raw, cache.TTLFor(cache.ClassFundamentals))
	}
	return record, nil
}

// fetch runs one guarded upstream call: rate-limit token first, then the
// circuit breaker around the actual fetch.
func fetch[T any](ctx context.Context, g *CachedMarketData, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()
	if err := g.limiter.Acquire(acquireCtx, g.source); err != nil {
		metrics.ProviderRequests.WithLabelValues(g.source, "rate_limited").Inc()
		return zero, err
	}

	result, err := g.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(g.source, "error").Inc()
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, fmt.Errorf("source %s: breaker open: %w", g.source, ErrDataProvider)
		}
		return zero, err
	}
	metrics.ProviderRequests.WithLabelValues(g.source, "ok").Inc()
	return result.(T), nil
}
