// Package indicators provides the pluggable indicator framework: a common
// calculation interface, a name-keyed registry, and the built-in MCDX,
// XTrender and SMA indicators.
package indicators

import (
	"errors"
	"fmt"

	"github.com/stockrun/stockrun/internal/models"
)

var (
	// ErrInsufficientData is returned when a series is shorter than the
	// indicator's required history.
	ErrInsufficientData = errors.New("insufficient data for indicator")

	// ErrMissingColumn is returned when a required OHLCV column carries no
	// usable data.
	ErrMissingColumn = errors.New("required series column absent")

	// ErrUnknownIndicator is returned by registry lookups for unregistered
	// names.
	ErrUnknownIndicator = errors.New("unknown indicator")

	// ErrDuplicateIndicator is returned when registering an already-taken
	// name without the override flag.
	ErrDuplicateIndicator = errors.New("indicator name already registered")

	// ErrBadConfig is returned for unknown or out-of-range configuration
	// parameters.
	ErrBadConfig = errors.New("invalid indicator configuration")
)

// Indicator is a pluggable calculation unit. Calculate is pure: it clones
// the input, appends named output columns, and has no other effects.
type Indicator interface {
	// Calculate returns a copy of the series with this indicator's output
	// columns appended. Rejects series shorter than RequiredPeriods with
	// ErrInsufficientData.
	Calculate(series *models.Series) (*models.Series, error)

	// Signal interprets the most recent computed row, calculating first if
	// the output columns are not yet present.
	Signal(series *models.Series) (*models.Signal, error)

	// RequiredPeriods is the minimum history length, warmup included. Used
	// to size data fetches.
	RequiredPeriods() int

	// Name is the unique registry key.
	Name() string

	// Metadata describes the indicator for discovery surfaces.
	Metadata() Metadata
}

// Metadata describes an indicator and its configurable parameters.
type Metadata struct {
	DisplayName string      `json:"display_name"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Params      []ParamSpec `json:"params"`
}

// ParamSpec documents one configurable parameter.
type ParamSpec struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"` // "int" or "float"
	Default     float64 `json:"default"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Description string  `json:"description"`
}

// insufficientErr builds a diagnosable ErrInsufficientData.
func insufficientErr(name string, have, need int) error {
	return fmt.Errorf("%s: have %d bars, need %d: %w", name, have, need, ErrInsufficientData)
}

// checkSeries enforces the shared validation contract: enough history and
// live close data. Indicators that consume volume additionally call
// checkVolume.
func checkSeries(name string, s *models.Series, required int) error {
	if s == nil || s.Len() < required {
		have := 0
		if s != nil {
			have = s.Len()
		}
		return insufficientErr(name, have, required)
	}
	for _, bar := range s.Bars {
		if bar.Close != 0 {
			return nil
		}
	}
	return fmt.Errorf("%s: close column has no data: %w", name, ErrMissingColumn)
}

// checkVolume rejects a series whose volume column carries no data.
func checkVolume(name string, s *models.Series) error {
	for _, bar := range s.Bars {
		if bar.Volume != 0 {
			return nil
		}
	}
	return fmt.Errorf("%s: volume column has no data: %w", name, ErrMissingColumn)
}

// intParam reads an integer parameter with bounds checking. Accepts float64
// (the type YAML/JSON decoding produces) when it is integral.
func intParam(cfg map[string]any, key string, def, min, max int) (int, error) {
	raw, ok := cfg[key]
	if !ok {
		return def, nil
	}
	var v int
	switch n := raw.(type) {
	case int:
		v = n
	case int64:
		v = int(n)
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("param %s: %v is not an integer: %w", key, n, ErrBadConfig)
		}
		v = int(n)
	default:
		return 0, fmt.Errorf("param %s: unsupported type %T: %w", key, raw, ErrBadConfig)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("param %s: %d outside [%d, %d]: %w", key, v, min, max, ErrBadConfig)
	}
	return v, nil
}

// floatParam reads a float parameter with bounds checking.
func floatParam(cfg map[string]any, key string, def, min, max float64) (float64, error) {
	raw, ok := cfg[key]
	if !ok {
		return def, nil
	}
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	default:
		return 0, fmt.Errorf("param %s: unsupported type %T: %w", key, raw, ErrBadConfig)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("param %s: %g outside [%g, %g]: %w", key, v, min, max, ErrBadConfig)
	}
	return v, nil
}

// rejectUnknownParams errors on parameters the indicator does not declare.
func rejectUnknownParams(cfg map[string]any, known ...string) error {
	for key := range cfg {
		found := false
		for _, k := range known {
			if key == k {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown param %q: %w", key, ErrBadConfig)
		}
	}
	return nil
}
