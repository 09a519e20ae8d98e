// Package gateway defines the collaborator contracts the screening core
// consumes (market data, universe) and their implementations: the Yahoo
// gateway, a cache/rate-limit/breaker decorator, a static universe and a
// deterministic offline generator.
package gateway

import (
	"context"
	"errors"

	"github.com/stockrun/stockrun/internal/models"
)

// ErrDataProvider marks a market-data failure. The pipeline treats it as a
// per-ticker skip, never as a run failure.
var ErrDataProvider = errors.New("data provider error")

// ErrUniverseUnavailable marks a universe-retrieval failure, which is fatal
// for a screening run.
var ErrUniverseUnavailable = errors.New("universe unavailable")

// MarketData serves price history, spot prices and fundamentals.
type MarketData interface {
	// GetSeries returns at least periods daily bars ending at the most
	// recent session.
	GetSeries(ctx context.Context, ticker string, periods int) (*models.Series, error)

	// GetCurrentPrice returns the latest trade price.
	GetCurrentPrice(ctx context.Context, ticker string) (float64, error)

	// GetFundamentals returns the optional fundamentals record. A nil
	// record with nil error means the provider has nothing for the ticker.
	GetFundamentals(ctx context.Context, ticker string) (*models.Fundamentals, error)
}

// UniverseKind selects how a universe is assembled.
type UniverseKind string

const (
	UniverseIndex       UniverseKind = "index"
	UniverseSector      UniverseKind = "sector"
	UniverseMarketCap   UniverseKind = "market_cap"
	UniverseETFHoldings UniverseKind = "etf_holdings"
	UniverseCustom      UniverseKind = "custom"
)

// UniverseQuery selects the ticker universe for a screening run.
type UniverseQuery struct {
	Kind UniverseKind `yaml:"kind" json:"kind"`
	// Name identifies the index, sector or ETF, per Kind.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// MinMarketCap / MaxMarketCap bound a market_cap universe, in USD.
	MinMarketCap float64 `yaml:"min_market_cap,omitempty" json:"min_market_cap,omitempty"`
	MaxMarketCap float64 `yaml:"max_market_cap,omitempty" json:"max_market_cap,omitempty"`
	// MinWeight filters ETF holdings by portfolio weight fraction.
	MinWeight float64 `yaml:"min_weight,omitempty" json:"min_weight,omitempty"`
	// Tickers is the explicit list for a custom universe.
	Tickers []string `yaml:"tickers,omitempty" json:"tickers,omitempty"`
}

// Describe renders the query for result metadata and logs.
func (q UniverseQuery) Describe() string {
	switch q.Kind {
	case UniverseCustom:
		return "custom list"
	case UniverseETFHoldings:
		return "etf:" + q.Name
	default:
		return string(q.Kind) + ":" + q.Name
	}
}

// Universe resolves a query to a normalized ticker list.
type Universe interface {
	GetUniverse(ctx context.Context, query UniverseQuery) ([]string, error)
}
