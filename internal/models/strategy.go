package models

import (
	"fmt"
	"time"
)

// Operator is a strategy condition comparison operator.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
)

// Condition is one per-indicator predicate. Value holds a scalar for the
// comparison operators and a list for in/not_in. IndicatorConfig overrides
// the indicator's default parameters for this strategy.
type Condition struct {
	Indicator       string         `json:"indicator" yaml:"indicator" validate:"required"`
	Field           string         `json:"field" yaml:"field" validate:"required"`
	Operator        Operator       `json:"operator" yaml:"operator" validate:"required"`
	Value           any            `json:"value" yaml:"value"`
	IndicatorConfig map[string]any `json:"indicator_config,omitempty" yaml:"indicator_config,omitempty"`
}

// Validate enforces the list-value invariant for membership operators.
func (c Condition) Validate() error {
	switch c.Operator {
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		if isList(c.Value) {
			return fmt.Errorf("condition %s.%s: operator %q requires a scalar value", c.Indicator, c.Field, c.Operator)
		}
	case OpIn, OpNotIn:
		if !isList(c.Value) {
			return fmt.Errorf("condition %s.%s: operator %q requires a list value", c.Indicator, c.Field, c.Operator)
		}
	default:
		return fmt.Errorf("condition %s.%s: unknown operator %q", c.Indicator, c.Field, c.Operator)
	}
	return nil
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []string, []float64, []int:
		return true
	}
	return false
}

// Strategy is an ordered, non-empty AND set of conditions. At most one
// strategy is the system-wide default.
type Strategy struct {
	ID          string      `json:"id" yaml:"id" validate:"required"`
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Version     int         `json:"version" yaml:"version"`
	Default     bool        `json:"default" yaml:"default"`
	Conditions  []Condition `json:"conditions" yaml:"conditions" validate:"required,min=1,dive"`
	CreatedAt   time.Time   `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Validate checks structural invariants for the strategy and its conditions.
func (s *Strategy) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("strategy id must not be empty")
	}
	if len(s.Conditions) == 0 {
		return fmt.Errorf("strategy %s: condition set must not be empty", s.ID)
	}
	for _, c := range s.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("strategy %s: %w", s.ID, err)
		}
	}
	return nil
}

// Indicators returns the distinct indicator names referenced by the
// strategy, in first-appearance order.
func (s *Strategy) Indicators() []string {
	seen := make(map[string]bool)
	var names []string
	for _, c := range s.Conditions {
		if !seen[c.Indicator] {
			seen[c.Indicator] = true
			names = append(names, c.Indicator)
		}
	}
	return names
}
