package compliance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/cache"
	"github.com/stockrun/stockrun/internal/metrics"
	"github.com/stockrun/stockrun/internal/models"
)

// DefaultMinConfidence is the floor a source verdict must meet to count as
// a positive confirmation. Below it, the verdict is treated as unknown.
const DefaultMinConfidence = 0.8

const sourceFallback = "default"

// FilterOptions tunes the filter. Zero values select the defaults.
type FilterOptions struct {
	// MinConfidence is the minimum source confidence for a compliant
	// verdict to be accepted.
	MinConfidence float64
	// Audit receives every exclusion. Defaults to log-only.
	Audit AuditLog
	// Normalizer maps universe symbols to compliance-vendor symbols.
	// Defaults to a non-logging normalizer.
	Normalizer *Normalizer
}

// Filter is the fail-safe compliance gate. Sources are consulted in
// precedence order; the first definitive verdict wins. A ticker no source
// can confirm is excluded as UNVERIFIED, never passed through.
type Filter struct {
	sources       []Source
	cache         cache.Cache
	minConfidence float64
	audit         AuditLog
	normalizer    *Normalizer
}

// NewFilter builds a filter over the given sources, highest precedence
// first. cache may be nil (every check hits the sources).
func NewFilter(sources []Source, c cache.Cache, opts FilterOptions) *Filter {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	if opts.Audit == nil {
		opts.Audit = LogAudit{}
	}
	if opts.Normalizer == nil {
		opts.Normalizer = NewNormalizer(false)
	}
	return &Filter{
		sources:       sources,
		cache:         c,
		minConfidence: opts.MinConfidence,
		audit:         opts.Audit,
		normalizer:    opts.Normalizer,
	}
}

// Check resolves the compliance status of one ticker. The returned status
// is ComplianceCompliant only when some source explicitly asserted it with
// confidence at or above the filter's floor. Source errors never fail the
// check; they demote the source and the chain continues.
func (f *Filter) Check(ctx context.Context, ticker string) models.ComplianceStatus {
	normalized := f.normalizer.Normalize(ticker)

	if status, ok := f.cachedStatus(ctx, normalized.BaseSymbol); ok {
		status.Ticker = ticker
		return status
	}

	status := f.resolve(ctx, ticker, normalized.BaseSymbol)
	f.storeStatus(ctx, normalized.BaseSymbol, status)
	metrics.ComplianceVerdicts.WithLabelValues(string(status.Result)).Inc()
	if status.Result != models.ComplianceCompliant {
		f.audit.RecordExclusion(ctx, ticker, status.Reason, status.Source, status.Detail)
	}
	return status
}

// BatchCheck resolves a batch sequentially, stopping early on context
// cancellation. Remaining tickers in a cancelled batch are marked as
// errors, not compliant.
func (f *Filter) BatchCheck(ctx context.Context, tickers []string) map[string]models.ComplianceStatus {
	out := make(map[string]models.ComplianceStatus, len(tickers))
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			out[ticker] = models.ComplianceStatus{
				Ticker:    ticker,
				Result:    models.ComplianceError,
				Reason:    models.ReasonAPIFailure,
				Detail:    "batch cancelled",
				Source:    sourceFallback,
				CheckedAt: time.Now().UTC(),
			}
			continue
		}
		out[ticker] = f.Check(ctx, ticker)
	}
	return out
}

// resolve walks the source chain. Errors and low-confidence or unknown
// verdicts fall through to the next source; exhaustion means exclusion.
func (f *Filter) resolve(ctx context.Context, ticker, baseSymbol string) models.ComplianceStatus {
	now := time.Now().UTC()
	sawError := false

	for _, src := range f.sources {
		verdict, err := src.Check(ctx, baseSymbol)
		if err != nil {
			sawError = true
			log.Warn().Err(err).
				Str("ticker", ticker).
				Str("source", src.Name()).
				Msg("compliance source failed, falling through")
			continue
		}

		switch verdict.Result {
		case VerdictNonCompliant:
			// A non-compliant assertion is honored at any confidence: the
			// cost of wrongly excluding is far lower than wrongly including.
			return models.ComplianceStatus{
				Ticker:     ticker,
				Result:     models.ComplianceExcluded,
				Reason:     verdict.Reason,
				Detail:     verdict.Detail,
				Source:     src.Name(),
				Confidence: verdict.Confidence,
				CheckedAt:  now,
			}
		case VerdictCompliant:
			if verdict.Confidence >= f.minConfidence {
				return models.ComplianceStatus{
					Ticker:     ticker,
					Result:     models.ComplianceCompliant,
					Source:     src.Name(),
					Confidence: verdict.Confidence,
					CheckedAt:  now,
				}
			}
			log.Debug().
				Str("ticker", ticker).
				Str("source", src.Name()).
				Float64("confidence", verdict.Confidence).
				Msg("compliant verdict below confidence floor, falling through")
		}
		// VerdictUnknown falls through.
	}

	if sawError {
		return models.ComplianceStatus{
			Ticker:    ticker,
			Result:    models.ComplianceUnverified,
			Reason:    models.ReasonAPIFailure,
			Detail:    "one or more compliance sources unavailable",
			Source:    sourceFallback,
			CheckedAt: now,
		}
	}
	return models.ComplianceStatus{
		Ticker:    ticker,
		Result:    models.ComplianceUnverified,
		Reason:    models.ReasonUnverified,
		Detail:    "no source could confirm compliance",
		Source:    sourceFallback,
		CheckedAt: now,
	}
}

func complianceKey(baseSymbol string) string {
	return cache.Key("compliance", baseSymbol)
}

func (f *Filter) cachedStatus(ctx context.Context, baseSymbol string) (models.ComplianceStatus, bool) {
	if f.cache == nil {
		return models.ComplianceStatus{}, false
	}
	raw, ok := f.cache.Get(ctx, complianceKey(baseSymbol))
	if !ok {
		return models.ComplianceStatus{}, false
	}
	var status models.ComplianceStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		f.cache.Invalidate(ctx, complianceKey(baseSymbol))
		return models.ComplianceStatus{}, false
	}
	return status, true
}

// storeStatus caches the verdict under the TTL policy for its class.
// Verified verdicts (compliant or positively excluded) live long;
// unverified ones expire quickly so tickers get rechecked, and error
// states are not cached at all.
func (f *Filter) storeStatus(ctx context.Context, baseSymbol string, status models.ComplianceStatus) {
	if f.cache == nil || status.Result == models.ComplianceError {
		return
	}
	class := cache.ClassComplianceVerified
	if status.Result == models.ComplianceUnverified {
		class = cache.ClassComplianceUnverified
	}
	raw, err := json.Marshal(status)
	if err != nil {
		return
	}
	f.cache.Set(ctx, complianceKey(baseSymbol), raw, cache.TTLFor(class))
}

// Invalidate drops any cached verdict for the ticker, forcing a fresh
// source walk on the next check.
func (f *Filter) Invalidate(ctx context.Context, ticker string) {
	if f.cache == nil {
		return
	}
	normalized := f.normalizer.Normalize(ticker)
	f.cache.Invalidate(ctx, complianceKey(normalized.BaseSymbol))
}

// Summary aggregates a batch of verdicts for reporting.
type Summary struct {
	Total      int                       `json:"total"`
	Compliant  int                       `json:"compliant"`
	Excluded   int                       `json:"excluded"`
	Unverified int                       `json:"unverified"`
	Errors     int                       `json:"errors"`
	ByReason   map[models.ReasonCode]int `json:"by_reason,omitempty"`
}

// Summarize tallies a batch result.
func Summarize(statuses map[string]models.ComplianceStatus) Summary {
	s := Summary{ByReason: make(map[models.ReasonCode]int)}
	for _, status := range statuses {
		s.Total++
		switch status.Result {
		case models.ComplianceCompliant:
			s.Compliant++
		case models.ComplianceExcluded:
			s.Excluded++
		case models.ComplianceUnverified:
			s.Unverified++
		case models.ComplianceError:
			s.Errors++
		}
		if status.Reason != models.ReasonNone {
			s.ByReason[status.Reason]++
		}
	}
	return s
}
