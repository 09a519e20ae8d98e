package models

import (
	"fmt"
	"time"
)

// StockMatch is a ticker that satisfied every strategy condition, with the
// full signal set that satisfied it and a confidence score in [0,1].
// Enrichment fields are best-effort and may be absent.
type StockMatch struct {
	Ticker       string             `json:"ticker"`
	Signals      map[string]*Signal `json:"signals"`
	Confidence   float64            `json:"confidence"`
	CurrentPrice *float64           `json:"current_price,omitempty"`
	Fundamentals *Fundamentals      `json:"fundamentals,omitempty"`
}

// StockExclusion records a ticker dropped by the compliance filter.
type StockExclusion struct {
	Ticker string     `json:"ticker"`
	Reason ReasonCode `json:"reason"`
	Detail string     `json:"detail,omitempty"`
	Source string     `json:"source,omitempty"`
}

// Fundamentals is the optional enrichment record for a match.
type Fundamentals struct {
	MarketCap     float64 `json:"market_cap,omitempty"`
	PERatio       float64 `json:"pe_ratio,omitempty"`
	EPS           float64 `json:"eps,omitempty"`
	DividendYield float64 `json:"dividend_yield,omitempty"`
	Beta          float64 `json:"beta,omitempty"`
	FiftyTwoWkHi  float64 `json:"fifty_two_week_high,omitempty"`
	FiftyTwoWkLo  float64 `json:"fifty_two_week_low,omitempty"`
}

// ScreeningResult is the aggregate outcome of one pipeline run. Immutable
// after construction; Verify checks the count invariants.
type ScreeningResult struct {
	RunID          string           `json:"run_id"`
	Universe       string           `json:"universe"`
	StrategyID     string           `json:"strategy_id"`
	TotalStocks    int              `json:"total_stocks"`
	CompliantCount int              `json:"compliant_stocks"`
	ExcludedCount  int              `json:"excluded_stocks"`
	SkippedCount   int              `json:"skipped_stocks"`
	MatchesCount   int              `json:"matches_count"`
	Matches        []StockMatch     `json:"matches"`
	Exclusions     []StockExclusion `json:"exclusions"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    time.Time        `json:"completed_at"`
	Duration       time.Duration    `json:"duration"`
}

// Verify checks the result invariants: total partitions into compliant and
// excluded, and the match count matches the match list.
func (r *ScreeningResult) Verify() error {
	if r.TotalStocks != r.CompliantCount+r.ExcludedCount {
		return fmt.Errorf("screening result %s: total %d != compliant %d + excluded %d",
			r.RunID, r.TotalStocks, r.CompliantCount, r.ExcludedCount)
	}
	if r.MatchesCount != len(r.Matches) {
		return fmt.Errorf("screening result %s: matches_count %d != len(matches) %d",
			r.RunID, r.MatchesCount, len(r.Matches))
	}
	return nil
}
