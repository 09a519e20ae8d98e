package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/stockrun/stockrun/internal/cache"
	"github.com/stockrun/stockrun/internal/models"
)

// universeFile is the YAML shape for static universe definitions.
//
//	indexes:
//	  sp500: { tickers: [AAPL, MSFT, ...] }
//	sectors:
//	  technology: { tickers: [...] }
//	etfs:
//	  SPUS:
//	    holdings:
//	      - { ticker: AAPL, weight: 0.061 }
//	market_caps:
//	  - { ticker: AAPL, market_cap: 3.4e12 }
type universeFile struct {
	Indexes map[string]struct {
		Tickers []string `yaml:"tickers"`
	} `yaml:"indexes"`
	Sectors map[string]struct {
		Tickers []string `yaml:"tickers"`
	} `yaml:"sectors"`
	ETFs map[string]struct {
		Holdings []struct {
			Ticker string  `yaml:"ticker"`
			Weight float64 `yaml:"weight"`
		} `yaml:"holdings"`
	} `yaml:"etfs"`
	MarketCaps []struct {
		Ticker    string  `yaml:"ticker"`
		MarketCap float64 `yaml:"market_cap"`
	} `yaml:"market_caps"`
}

// StaticUniverse resolves universe queries against a YAML definition file.
// Constituent-list acquisition itself (scraping, vendor feeds) lives
// outside the core; this gateway consumes whatever that tooling produced.
type StaticUniverse struct {
	data universeFile
}

// NewStaticUniverse loads a universe definition file.
func NewStaticUniverse(path string) (*StaticUniverse, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading universe file: %v: %w", err, ErrUniverseUnavailable)
	}
	var data universeFile
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing universe file %s: %v: %w", path, err, ErrUniverseUnavailable)
	}
	return &StaticUniverse{data: data}, nil
}

// NewEmptyUniverse returns a universe with no definitions loaded. Only
// custom ticker lists resolve; everything else is unavailable.
func NewEmptyUniverse() *StaticUniverse {
	return &StaticUniverse{}
}

// GetUniverse resolves the query to a normalized, deduplicated ticker list.
func (u *StaticUniverse) GetUniverse(ctx context.Context, query UniverseQuery) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tickers []string
	switch query.Kind {
	case UniverseIndex:
		index, ok := u.data.Indexes[query.Name]
		if !ok {
			return nil, fmt.Errorf("unknown index %q: %w", query.Name, ErrUniverseUnavailable)
		}
		tickers = index.Tickers
	case UniverseSector:
		sector, ok := u.data.Sectors[query.Name]
		if !ok {
			return nil, fmt.Errorf("unknown sector %q: %w", query.Name, ErrUniverseUnavailable)
		}
		tickers = sector.Tickers
	case UniverseETFHoldings:
		etf, ok := u.data.ETFs[query.Name]
		if !ok {
			return nil, fmt.Errorf("unknown ETF %q: %w", query.Name, ErrUniverseUnavailable)
		}
		for _, holding := range etf.Holdings {
			if holding.Weight >= query.MinWeight {
				tickers = append(tickers, holding.Ticker)
			}
		}
	case UniverseMarketCap:
		for _, entry := range u.data.MarketCaps {
			if entry.MarketCap < query.MinMarketCap {
				continue
			}
			if query.MaxMarketCap > 0 && entry.MarketCap > query.MaxMarketCap {
				continue
			}
			tickers = append(tickers, entry.Ticker)
		}
	case UniverseCustom:
		tickers = query.Tickers
	default:
		return nil, fmt.Errorf("unknown universe kind %q: %w", query.Kind, ErrUniverseUnavailable)
	}
	return normalizeTickers(tickers)
}

func normalizeTickers(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, ticker := range raw {
		normalized, err := models.NormalizeTicker(ticker)
		if err != nil {
			return nil, fmt.Errorf("universe ticker %q: %v: %w", ticker, err, ErrUniverseUnavailable)
		}
		if !seen[normalized] {
			seen[normalized] = true
			out = append(out, normalized)
		}
	}
	sort.Strings(out)
	return out, nil
}

// CachedUniverse caches resolved universes. Custom lists bypass the cache;
// they are already in hand.
type CachedUniverse struct {
	inner Universe
	cache cache.Cache
	class cache.DataClass
}

// NewCachedUniverse wraps a universe gateway. class selects the TTL
// (volatile vs static source).
func NewCachedUniverse(inner Universe, c cache.Cache, class cache.DataClass) *CachedUniverse {
	return &CachedUniverse{inner: inner, cache: c, class: class}
}

func (u *CachedUniverse) GetUniverse(ctx context.Context, query UniverseQuery) ([]string, error) {
	if query.Kind == UniverseCustom {
		return u.inner.GetUniverse(ctx, query)
	}

	key := universeKey(query)
	if raw, ok := u.cache.Get(ctx, key); ok {
		var tickers []string
		if err := json.Unmarshal(raw, &tickers); err == nil {
			return tickers, nil
		}
	}

	tickers, err := u.inner.GetUniverse(ctx, query)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(tickers); err == nil {
		u.cache.Set(ctx, key, raw, cache.TTLFor(u.class))
	}
	return tickers, nil
}

// universeKey folds the query's bound parameters into the cache key so
// differently parameterized queries never share an entry.
func universeKey(query UniverseQuery) string {
	parts := []string{"universe", string(query.Kind), query.Name}
	switch query.Kind {
	case UniverseETFHoldings:
		parts = append(parts, fmt.Sprintf("w%g", query.MinWeight))
	case UniverseMarketCap:
		parts = append(parts, fmt.Sprintf("cap%g-%g", query.MinMarketCap, query.MaxMarketCap))
	}
	return cache.Key(parts...)
}
