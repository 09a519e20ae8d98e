package models

import "time"

// ComplianceResult classifies a compliance verdict.
type ComplianceResult string

const (
	ComplianceCompliant  ComplianceResult = "compliant"
	ComplianceExcluded   ComplianceResult = "excluded"
	ComplianceUnverified ComplianceResult = "unverified"
	ComplianceError      ComplianceResult = "error"
)

// ReasonCode identifies why a ticker was excluded.
type ReasonCode string

const (
	ReasonNone       ReasonCode = ""
	ReasonGambling   ReasonCode = "GAMBLING"
	ReasonAlcohol    ReasonCode = "ALCOHOL"
	ReasonTobacco    ReasonCode = "TOBACCO"
	ReasonRiba       ReasonCode = "RIBA"
	ReasonWeapons    ReasonCode = "WEAPONS"
	ReasonAdult      ReasonCode = "ADULT_CONTENT"
	ReasonPork       ReasonCode = "PORK"
	ReasonDebtRatio  ReasonCode = "DEBT_RATIO"
	ReasonRevenueMix ReasonCode = "REVENUE_MIX"
	ReasonManual     ReasonCode = "MANUAL_EXCLUSION"
	ReasonUnverified ReasonCode = "UNVERIFIED"
	ReasonAPIFailure ReasonCode = "API_FAILURE"
)

// ComplianceStatus is the immutable verdict for one ticker. The fail-safe
// rule: Result is ComplianceCompliant only when some source explicitly and
// confidently asserted it.
type ComplianceStatus struct {
	Ticker     string           `json:"ticker"`
	Result     ComplianceResult `json:"result"`
	Reason     ReasonCode       `json:"reason,omitempty"`
	Detail     string           `json:"detail,omitempty"`
	Source     string           `json:"source"`
	Confidence float64          `json:"confidence"`
	CheckedAt  time.Time        `json:"checked_at"`
}

// IsCompliant reports a positively confirmed compliant verdict.
func (s ComplianceStatus) IsCompliant() bool { return s.Result == ComplianceCompliant }
