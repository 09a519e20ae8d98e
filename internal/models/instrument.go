package models

import (
	"fmt"
	"strings"
)

// MaxTickerLength bounds normalized ticker symbols. The longest symbols we
// see in practice are exchange-suffixed European listings like "BMW.DE".
const MaxTickerLength = 12

// Instrument is the immutable identity of a screenable equity.
type Instrument struct {
	Ticker   string `json:"ticker" yaml:"ticker"`
	Exchange string `json:"exchange,omitempty" yaml:"exchange,omitempty"`
	Sector   string `json:"sector,omitempty" yaml:"sector,omitempty"`
	Industry string `json:"industry,omitempty" yaml:"industry,omitempty"`
}

// NewInstrument normalizes the ticker to uppercase and validates identity
// invariants.
func NewInstrument(ticker, exchange string) (Instrument, error) {
	normalized, err := NormalizeTicker(ticker)
	if err != nil {
		return Instrument{}, err
	}
	return Instrument{Ticker: normalized, Exchange: exchange}, nil
}

// NormalizeTicker uppercases and trims a raw symbol, rejecting empty or
// oversized input.
func NormalizeTicker(raw string) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if ticker == "" {
		return "", fmt.Errorf("ticker must not be empty")
	}
	if len(ticker) > MaxTickerLength {
		return "", fmt.Errorf("ticker %q exceeds max length %d", ticker, MaxTickerLength)
	}
	return ticker, nil
}
