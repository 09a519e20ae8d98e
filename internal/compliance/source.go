// Package compliance implements the fail-safe ethical screening filter: a
// precedence chain of verdict sources behind a cache, defaulting to
// exclusion whenever compliance cannot be positively confirmed.
package compliance

import (
	"context"
	"strings"

	"github.com/stockrun/stockrun/internal/models"
)

// VerdictResult is what a source asserts about a ticker.
type VerdictResult string

const (
	VerdictCompliant    VerdictResult = "compliant"
	VerdictNonCompliant VerdictResult = "non_compliant"
	VerdictUnknown      VerdictResult = "unknown"
)

// Verdict is a single source's answer.
type Verdict struct {
	Result     VerdictResult
	Confidence float64 // [0,1]
	Reason     models.ReasonCode
	Detail     string
}

// Source is one compliance data provider. Implementations return
// VerdictUnknown rather than guessing; errors are for transport failures.
type Source interface {
	Name() string
	Check(ctx context.Context, ticker string) (Verdict, error)
}

// MapVendorReason translates free-form vendor exclusion categories to
// internal reason codes. Unrecognized categories map to MANUAL_EXCLUSION
// with the raw text preserved in the verdict detail.
func MapVendorReason(category string) models.ReasonCode {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "gambling", "casinos", "gaming":
		return models.ReasonGambling
	case "alcohol", "brewers", "distillers":
		return models.ReasonAlcohol
	case "tobacco":
		return models.ReasonTobacco
	case "riba", "interest", "banking", "conventional_finance":
		return models.ReasonRiba
	case "weapons", "defense":
		return models.ReasonWeapons
	case "adult", "adult_entertainment":
		return models.ReasonAdult
	case "pork":
		return models.ReasonPork
	case "debt_ratio", "leverage":
		return models.ReasonDebtRatio
	case "revenue_mix", "impermissible_revenue":
		return models.ReasonRevenueMix
	default:
		return models.ReasonManual
	}
}
