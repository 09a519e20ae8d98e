package models

import (
	"fmt"
	"time"
)

// Bar is a single OHLCV observation.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Series is an ordered OHLCV history for one instrument. Indicators append
// named columns aligned with Bars; the base bars are never rewritten. A
// Series is owned by a single worker during screening and is not safe for
// concurrent mutation.
type Series struct {
	Ticker  string               `json:"ticker"`
	Bars    []Bar                `json:"bars"`
	Columns map[string][]float64 `json:"columns,omitempty"`
}

// NewSeries validates the strictly-increasing-timestamps invariant and wraps
// the bars.
func NewSeries(ticker string, bars []Bar) (*Series, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("series %s: timestamps not strictly increasing at index %d", ticker, i)
		}
	}
	return &Series{Ticker: ticker, Bars: bars}, nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Bars) }

// Closes returns the close column.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volume column.
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// Column returns a named indicator column, if present.
func (s *Series) Column(name string) ([]float64, bool) {
	col, ok := s.Columns[name]
	return col, ok
}

// SetColumn attaches an indicator output column. The column must align with
// the bar count.
func (s *Series) SetColumn(name string, values []float64) error {
	if len(values) != len(s.Bars) {
		return fmt.Errorf("column %s: length %d does not match %d bars", name, len(values), len(s.Bars))
	}
	if s.Columns == nil {
		s.Columns = make(map[string][]float64)
	}
	s.Columns[name] = values
	return nil
}

// Clone returns a deep copy. Indicators calculate on a clone so the input
// series is left untouched.
func (s *Series) Clone() *Series {
	out := &Series{Ticker: s.Ticker, Bars: make([]Bar, len(s.Bars))}
	copy(out.Bars, s.Bars)
	if s.Columns != nil {
		out.Columns = make(map[string][]float64, len(s.Columns))
		for name, col := range s.Columns {
			c := make([]float64, len(col))
			copy(c, col)
			out.Columns[name] = c
		}
	}
	return out
}

// LastTimestamp returns the timestamp of the most recent bar.
func (s *Series) LastTimestamp() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Timestamp
}
