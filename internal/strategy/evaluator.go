// Package strategy holds the declarative strategy model's evaluation logic
// and the strategy stores. Evaluation is a pure function over indicator
// signals; it performs no I/O.
package strategy

import (
	"math"

	"github.com/stockrun/stockrun/internal/models"
)

// Evaluator applies a strategy's condition set to a per-indicator signal
// map. Stateless; the zero value is usable.
type Evaluator struct{}

// NewEvaluator creates an evaluator.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate returns true only if every condition holds. A missing indicator
// signal short-circuits to false: the stock cannot be judged. There is no
// top-level OR; multi-value alternatives are expressed with the in operator.
func (e *Evaluator) Evaluate(strat *models.Strategy, signals map[string]*models.Signal) bool {
	for _, cond := range strat.Conditions {
		signal, ok := signals[cond.Indicator]
		if !ok || signal == nil {
			return false
		}
		field, ok := signal.Field(cond.Field)
		if !ok {
			return false
		}
		if !evalCondition(cond, field) {
			return false
		}
	}
	return true
}

// Confidence scores a passing ticker in [0,1]. Equality and membership
// conditions contribute a full point; ordering conditions contribute by how
// far the field clears its threshold, so comfortable passes rank above
// marginal ones. Deterministic for a given signal set.
func (e *Evaluator) Confidence(strat *models.Strategy, signals map[string]*models.Signal) float64 {
	if len(strat.Conditions) == 0 {
		return 0
	}
	total := 0.0
	for _, cond := range strat.Conditions {
		signal, ok := signals[cond.Indicator]
		if !ok {
			return 0
		}
		field, ok := signal.Field(cond.Field)
		if !ok {
			return 0
		}
		total += conditionConfidence(cond, field)
	}
	score := total / float64(len(strat.Conditions))
	return math.Min(1, math.Max(0, score))
}

func conditionConfidence(cond models.Condition, field models.FieldValue) float64 {
	switch cond.Operator {
	case models.OpGreater, models.OpGreaterEqual, models.OpLess, models.OpLessEqual:
		target, ok := toFloat(cond.Value)
		if !ok || field.Kind != models.FieldNumber || math.IsNaN(field.Num) {
			return 0.5
		}
		margin := math.Abs(field.Num - target)
		scale := math.Abs(target) + 1
		return 0.5 + math.Min(0.5, margin/(2*scale))
	default:
		return 1.0
	}
}

// evalCondition applies one operator. Type mismatches evaluate false rather
// than erroring: a signal that cannot be compared cannot satisfy the
// strategy.
func evalCondition(cond models.Condition, field models.FieldValue) bool {
	switch cond.Operator {
	case models.OpEqual:
		return fieldEquals(field, cond.Value)
	case models.OpNotEqual:
		return !fieldEquals(field, cond.Value)
	case models.OpGreater, models.OpLess, models.OpGreaterEqual, models.OpLessEqual:
		if field.Kind != models.FieldNumber || math.IsNaN(field.Num) {
			return false
		}
		target, ok := toFloat(cond.Value)
		if !ok {
			return false
		}
		switch cond.Operator {
		case models.OpGreater:
			return field.Num > target
		case models.OpLess:
			return field.Num < target
		case models.OpGreaterEqual:
			return field.Num >= target
		default:
			return field.Num <= target
		}
	case models.OpIn:
		return fieldInList(field, cond.Value)
	case models.OpNotIn:
		return !fieldInList(field, cond.Value)
	default:
		return false
	}
}

func fieldEquals(field models.FieldValue, value any) bool {
	if field.Kind == models.FieldString {
		s, ok := value.(string)
		return ok && field.Str == s
	}
	target, ok := toFloat(value)
	return ok && !math.IsNaN(field.Num) && field.Num == target
}

func fieldInList(field models.FieldValue, value any) bool {
	for _, item := range toList(value) {
		if fieldEquals(field, item) {
			return true
		}
	}
	return false
}

func toList(value any) []any {
	switch list := value.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = v
		}
		return out
	case []float64:
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = v
		}
		return out
	case []int:
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = v
		}
		return out
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
