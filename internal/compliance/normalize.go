package compliance

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// MappingConfidence grades how sure the normalizer is that the compliance
// symbol identifies the same company as the universe symbol.
type MappingConfidence string

const (
	ConfidenceHigh   MappingConfidence = "high"
	ConfidenceMedium MappingConfidence = "medium"
	ConfidenceLow    MappingConfidence = "low"
)

// NormalizedSymbol records a universe→compliance symbol transformation for
// the audit trail.
type NormalizedSymbol struct {
	Original   string
	BaseSymbol string
	Exchange   string
	Confidence MappingConfidence
	Notes      []string
}

// IsLowConfidence reports whether the mapping should be flagged for review.
func (n NormalizedSymbol) IsLowConfidence() bool { return n.Confidence == ConfidenceLow }

// exchangeSuffixes maps Yahoo-style listing suffixes to exchange codes.
// Suffix-stripped symbols are medium confidence: the same base symbol can
// identify different companies on different exchanges.
var exchangeSuffixes = map[string]string{
	".DE": "XETR", // Xetra
	".F":  "XFRA", // Frankfurt
	".L":  "XLON", // London
	".PA": "XPAR", // Paris
	".AS": "XAMS", // Amsterdam
	".MI": "XMIL", // Milan
	".SW": "XSWX", // SIX Swiss
	".TO": "XTSE", // Toronto
	".AX": "XASX", // Australia
	".HK": "XHKG", // Hong Kong
	".T":  "XTKS", // Tokyo
	".SA": "BVMF", // São Paulo
}

// Normalizer converts universe-gateway symbols to the plain base form
// compliance vendors key on.
type Normalizer struct {
	logLowConfidence bool
}

// NewNormalizer creates a normalizer. When logLowConfidence is set,
// low-confidence mappings are logged for manual review.
func NewNormalizer(logLowConfidence bool) *Normalizer {
	return &Normalizer{logLowConfidence: logLowConfidence}
}

// Normalize strips listing suffixes and share-class punctuation, recording
// every transformation.
func (n *Normalizer) Normalize(ticker string) NormalizedSymbol {
	out := NormalizedSymbol{
		Original:   ticker,
		BaseSymbol: ticker,
		Confidence: ConfidenceHigh,
	}

	for suffix, exchange := range exchangeSuffixes {
		if base, ok := strings.CutSuffix(out.BaseSymbol, suffix); ok && base != "" {
			out.BaseSymbol = base
			out.Exchange = exchange
			out.Confidence = ConfidenceMedium
			out.Notes = append(out.Notes, "stripped listing suffix "+suffix)
			break
		}
	}

	// Share-class punctuation varies by vendor: BRK.B vs BRK-B.
	if strings.Contains(out.BaseSymbol, "-") {
		out.BaseSymbol = strings.ReplaceAll(out.BaseSymbol, "-", ".")
		out.Notes = append(out.Notes, "share-class dash converted to dot")
	}

	// An unrecognized dotted suffix is ambiguous: could be a share class
	// or an unmapped exchange.
	if out.Exchange == "" && strings.Contains(out.BaseSymbol, ".") {
		parts := strings.SplitN(out.BaseSymbol, ".", 2)
		if len(parts[1]) > 1 {
			out.Confidence = ConfidenceLow
			out.Notes = append(out.Notes, "unrecognized suffix ."+parts[1])
		}
	}

	if n.logLowConfidence && out.IsLowConfidence() {
		log.Warn().
			Str("ticker", out.Original).
			Str("base", out.BaseSymbol).
			Strs("notes", out.Notes).
			Msg("low-confidence symbol mapping")
	}
	return out
}
