package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// FieldKind discriminates signal field values.
type FieldKind int

const (
	FieldNumber FieldKind = iota
	FieldString
)

// FieldValue is a scalar signal field. Indicator code works with the typed
// constructors; only the strategy evaluator reads fields generically by name.
type FieldValue struct {
	Kind FieldKind
	Num  float64
	Str  string
}

// Number wraps a numeric field value.
func Number(v float64) FieldValue { return FieldValue{Kind: FieldNumber, Num: v} }

// String wraps a string field value.
func String(v string) FieldValue { return FieldValue{Kind: FieldString, Str: v} }

// String renders the field for logs and match output.
func (v FieldValue) String() string {
	if v.Kind == FieldString {
		return v.Str
	}
	return fmt.Sprintf("%g", v.Num)
}

// MarshalJSON emits the scalar itself rather than the discriminated struct.
// Non-finite numbers have no JSON representation and render as null.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.Kind == FieldString {
		return json.Marshal(v.Str)
	}
	if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Num)
}

// Signal is the interpreted output of one indicator for the most recent bar
// of a series. Signals are recomputed per screening pass and never cached.
type Signal struct {
	Indicator string                `json:"indicator"`
	Ticker    string                `json:"ticker"`
	Timestamp time.Time             `json:"timestamp"`
	Fields    map[string]FieldValue `json:"fields"`
}

// NewSignal builds an empty signal for an indicator/ticker pair.
func NewSignal(indicator, ticker string, ts time.Time) *Signal {
	return &Signal{
		Indicator: indicator,
		Ticker:    ticker,
		Timestamp: ts,
		Fields:    make(map[string]FieldValue),
	}
}

// Set stores a field value.
func (s *Signal) Set(name string, v FieldValue) { s.Fields[name] = v }

// Field returns a named field value.
func (s *Signal) Field(name string) (FieldValue, bool) {
	v, ok := s.Fields[name]
	return v, ok
}
