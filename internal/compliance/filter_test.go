package compliance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/cache"
	"github.com/stockrun/stockrun/internal/models"
)

type scriptedSource struct {
	name     string
	verdicts map[string]Verdict
	err      error

	mu    sync.Mutex
	calls []string
}

func (s *scriptedSource) Name() string { return s.name }

func (s *scriptedSource) Check(_ context.Context, ticker string) (Verdict, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ticker)
	s.mu.Unlock()
	if s.err != nil {
		return Verdict{}, s.err
	}
	if v, ok := s.verdicts[ticker]; ok {
		return v, nil
	}
	return Verdict{Result: VerdictUnknown}, nil
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *recordingAudit) RecordExclusion(_ context.Context, ticker string, reason models.ReasonCode, source string, detail string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, AuditEntry{
		Ticker: ticker,
		Reason: string(reason),
		Source: source,
		Detail: detail,
	})
}

func newTestCache() cache.Cache {
	return cache.NewTiered(cache.NewFastTier(1<<20), nil)
}

func TestFilterDefaultsToExclude(t *testing.T) {
	// The core fail-safe: no confirming source means UNVERIFIED, never
	// compliant.
	filter := NewFilter(nil, nil, FilterOptions{})

	status := filter.Check(context.Background(), "MYSTERY")
	assert.Equal(t, models.ComplianceUnverified, status.Result)
	assert.Equal(t, models.ReasonUnverified, status.Reason)
	assert.False(t, status.IsCompliant())
}

func TestFilterUnknownVerdictsFallThroughToExclusion(t *testing.T) {
	primary := &scriptedSource{name: "primary"}
	secondary := &scriptedSource{name: "secondary"}
	filter := NewFilter([]Source{primary, secondary}, nil, FilterOptions{})

	status := filter.Check(context.Background(), "AAPL")
	assert.Equal(t, models.ComplianceUnverified, status.Result)
	assert.Equal(t, models.ReasonUnverified, status.Reason)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, secondary.callCount())
}

func TestFilterAcceptsConfidentCompliant(t *testing.T) {
	primary := &scriptedSource{
		name:     "primary",
		verdicts: map[string]Verdict{"AAPL": {Result: VerdictCompliant, Confidence: 0.95}},
	}
	filter := NewFilter([]Source{primary}, nil, FilterOptions{})

	status := filter.Check(context.Background(), "AAPL")
	assert.Equal(t, models.ComplianceCompliant, status.Result)
	assert.Equal(t, "primary", status.Source)
	assert.InDelta(t, 0.95, status.Confidence, 1e-9)
}

func TestFilterLowConfidenceCompliantFallsThrough(t *testing.T) {
	primary := &scriptedSource{
		name:     "primary",
		verdicts: map[string]Verdict{"AAPL": {Result: VerdictCompliant, Confidence: 0.5}},
	}
	filter := NewFilter([]Source{primary}, nil, FilterOptions{})

	status := filter.Check(context.Background(), "AAPL")
	assert.Equal(t, models.ComplianceUnverified, status.Result)
}

func TestFilterHonorsNonCompliantAtAnyConfidence(t *testing.T) {
	primary := &scriptedSource{
		name: "primary",
		verdicts: map[string]Verdict{"LVS": {
			Result:     VerdictNonCompliant,
			Confidence: 0.3,
			Reason:     models.ReasonGambling,
			Detail:     "casino operator",
		}},
	}
	filter := NewFilter([]Source{primary}, nil, FilterOptions{})

	status := filter.Check(context.Background(), "LVS")
	assert.Equal(t, models.ComplianceExcluded, status.Result)
	assert.Equal(t, models.ReasonGambling, status.Reason)
}

func TestFilterPrecedenceOrder(t *testing.T) {
	// The primary's verdict wins; the secondary is never consulted.
	primary := &scriptedSource{
		name:     "primary",
		verdicts: map[string]Verdict{"AAPL": {Result: VerdictCompliant, Confidence: 0.9}},
	}
	secondary := &scriptedSource{
		name:     "secondary",
		verdicts: map[string]Verdict{"AAPL": {Result: VerdictNonCompliant, Reason: models.ReasonRiba}},
	}
	filter := NewFilter([]Source{primary, secondary}, nil, FilterOptions{})

	status := filter.Check(context.Background(), "AAPL")
	assert.Equal(t, models.ComplianceCompliant, status.Result)
	assert.Equal(t, 0, secondary.callCount())
}

func TestFilterSourceErrorFallsThrough(t *testing.T) {
	primary := &scriptedSource{name: "primary", err: errors.New("connection refused")}
	secondary := &scriptedSource{
		name:     "secondary",
		verdicts: map[string]Verdict{"AAPL": {Result: VerdictCompliant, Confidence: 0.9}},
	}
	filter := NewFilter([]Source{primary, secondary}, nil, FilterOptions{})

	status := filter.Check(context.Background(), "AAPL")
	assert.Equal(t, models.ComplianceCompliant, status.Result)
	assert.Equal(t, "secondary", status.Source)
}

func TestFilterAllSourcesFailingMeansAPIFailure(t *testing.T) {
	primary := &scriptedSource{name: "primary", err: errors.New("timeout")}
	secondary := &scriptedSource{name: "secondary", err: errors.New("500")}
	filter := NewFilter([]Source{primary, secondary}, nil, FilterOptions{})

	status := filter.Check(context.Background(), "AAPL")
	assert.Equal(t, models.ComplianceUnverified, status.Result)
	assert.Equal(t, models.ReasonAPIFailure, status.Reason)
	assert.False(t, status.IsCompliant())
}

func TestFilterStaticTableLastResort(t *testing.T) {
	primary := &scriptedSource{name: "primary", err: errors.New("down")}
	static := NewStaticTable(map[string]StaticEntry{
		"AAPL": {Compliant: true},
		"LVS":  {Compliant: false, Reason: "GAMBLING", Detail: "casino operator"},
	})
	filter := NewFilter([]Source{primary, static}, nil, FilterOptions{})

	aapl := filter.Check(context.Background(), "AAPL")
	assert.Equal(t, models.ComplianceCompliant, aapl.Result)
	assert.Equal(t, "static", aapl.Source)

	lvs := filter.Check(context.Background(), "LVS")
	assert.Equal(t, models.ComplianceExcluded, lvs.Result)
	assert.Equal(t, models.ReasonGambling, lvs.Reason)
}

func TestFilterCachesVerdicts(t *testing.T) {
	primary := &scriptedSource{
		name:     "primary",
		verdicts: map[string]Verdict{"AAPL": {Result: VerdictCompliant, Confidence: 0.9}},
	}
	filter := NewFilter([]Source{primary}, newTestCache(), FilterOptions{})
	ctx := context.Background()

	first := filter.Check(ctx, "AAPL")
	second := filter.Check(ctx, "AAPL")
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, 1, primary.callCount(), "second check should be served from cache")
}

func TestFilterInvalidateForcesRecheck(t *testing.T) {
	primary := &scriptedSource{
		name:     "primary",
		verdicts: map[string]Verdict{"AAPL": {Result: VerdictCompliant, Confidence: 0.9}},
	}
	filter := NewFilter([]Source{primary}, newTestCache(), FilterOptions{})
	ctx := context.Background()

	filter.Check(ctx, "AAPL")
	filter.Invalidate(ctx, "AAPL")
	filter.Check(ctx, "AAPL")
	assert.Equal(t, 2, primary.callCount())
}

func TestFilterNormalizesBeforeSourceLookup(t *testing.T) {
	// The vendor keys on the base symbol; the returned status keeps the
	// universe ticker.
	primary := &scriptedSource{
		name:     "primary",
		verdicts: map[string]Verdict{"SAP": {Result: VerdictCompliant, Confidence: 0.9}},
	}
	filter := NewFilter([]Source{primary}, nil, FilterOptions{})

	status := filter.Check(context.Background(), "SAP.DE")
	assert.Equal(t, models.ComplianceCompliant, status.Result)
	assert.Equal(t, "SAP.DE", status.Ticker)
}

func TestFilterAuditsExclusions(t *testing.T) {
	audit := &recordingAudit{}
	primary := &scriptedSource{
		name: "primary",
		verdicts: map[string]Verdict{
			"AAPL": {Result: VerdictCompliant, Confidence: 0.9},
			"MO":   {Result: VerdictNonCompliant, Reason: models.ReasonTobacco},
		},
	}
	filter := NewFilter([]Source{primary}, nil, FilterOptions{Audit: audit})
	ctx := context.Background()

	filter.Check(ctx, "AAPL")
	filter.Check(ctx, "MO")
	filter.Check(ctx, "MYSTERY")

	require.Len(t, audit.entries, 2)
	assert.Equal(t, "MO", audit.entries[0].Ticker)
	assert.Equal(t, string(models.ReasonTobacco), audit.entries[0].Reason)
	assert.Equal(t, "MYSTERY", audit.entries[1].Ticker)
	assert.Equal(t, string(models.ReasonUnverified), audit.entries[1].Reason)
}

func TestBatchCheckCancellation(t *testing.T) {
	primary := &scriptedSource{name: "primary"}
	filter := NewFilter([]Source{primary}, nil, FilterOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	statuses := filter.BatchCheck(ctx, []string{"AAPL", "MSFT"})
	require.Len(t, statuses, 2)
	for _, status := range statuses {
		assert.Equal(t, models.ComplianceError, status.Result)
		assert.False(t, status.IsCompliant())
	}
	assert.Equal(t, 0, primary.callCount())
}

func TestSummarize(t *testing.T) {
	now := time.Now().UTC()
	statuses := map[string]models.ComplianceStatus{
		"AAPL": {Result: models.ComplianceCompliant, CheckedAt: now},
		"LVS":  {Result: models.ComplianceExcluded, Reason: models.ReasonGambling, CheckedAt: now},
		"MO":   {Result: models.ComplianceExcluded, Reason: models.ReasonTobacco, CheckedAt: now},
		"XYZ":  {Result: models.ComplianceUnverified, Reason: models.ReasonUnverified, CheckedAt: now},
	}

	s := Summarize(statuses)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Compliant)
	assert.Equal(t, 2, s.Excluded)
	assert.Equal(t, 1, s.Unverified)
	assert.Equal(t, 1, s.ByReason[models.ReasonGambling])
}

func TestMapVendorReason(t *testing.T) {
	assert.Equal(t, models.ReasonGambling, MapVendorReason("Casinos"))
	assert.Equal(t, models.ReasonRiba, MapVendorReason("conventional_finance"))
	assert.Equal(t, models.ReasonManual, MapVendorReason("something-new"))
}

func TestNormalizer(t *testing.T) {
	n := NewNormalizer(false)

	sap := n.Normalize("SAP.DE")
	assert.Equal(t, "SAP", sap.BaseSymbol)
	assert.Equal(t, "XETR", sap.Exchange)
	assert.Equal(t, ConfidenceMedium, sap.Confidence)

	brk := n.Normalize("BRK-B")
	assert.Equal(t, "BRK.B", brk.BaseSymbol)
	assert.Equal(t, ConfidenceHigh, brk.Confidence)

	plain := n.Normalize("AAPL")
	assert.Equal(t, "AAPL", plain.BaseSymbol)
	assert.Equal(t, ConfidenceHigh, plain.Confidence)
	assert.Empty(t, plain.Notes)

	odd := n.Normalize("FOO.XYZ")
	assert.Equal(t, ConfidenceLow, odd.Confidence)
	assert.True(t, odd.IsLowConfidence())
}
