package screen

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/compliance"
	"github.com/stockrun/stockrun/internal/gateway"
	"github.com/stockrun/stockrun/internal/indicators"
	"github.com/stockrun/stockrun/internal/models"
	"github.com/stockrun/stockrun/internal/strategy"
)

// trendSeries builds n daily bars with compounding daily return and rising
// volume. A positive return with rising volume satisfies the default
// momentum strategy; a negative return fails it.
func trendSeries(t *testing.T, ticker string, n int, dailyReturn float64) *models.Series {
	t.Helper()
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 100.0
	for i := range bars {
		price *= 1 + dailyReturn
		vol := 1e6 * (1 + 0.01*float64(i))
		if dailyReturn > 0 {
			vol = 1e6 * (1 + 0.05*float64(i))
		}
		bars[i] = models.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price * 0.995,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    vol,
		}
	}
	series, err := models.NewSeries(ticker, bars)
	require.NoError(t, err)
	return series
}

type fakeUniverse struct {
	tickers []string
	err     error
}

func (f *fakeUniverse) GetUniverse(context.Context, gateway.UniverseQuery) ([]string, error) {
	return f.tickers, f.err
}

type fakeMarket struct {
	series map[string]*models.Series
	prices map[string]float64
	funds  map[string]*models.Fundamentals
}

func (f *fakeMarket) GetSeries(_ context.Context, ticker string, _ int) (*models.Series, error) {
	s, ok := f.series[ticker]
	if !ok {
		return nil, gateway.ErrDataProvider
	}
	return s, nil
}

func (f *fakeMarket) GetCurrentPrice(_ context.Context, ticker string) (float64, error) {
	p, ok := f.prices[ticker]
	if !ok {
		return 0, gateway.ErrDataProvider
	}
	return p, nil
}

func (f *fakeMarket) GetFundamentals(_ context.Context, ticker string) (*models.Fundamentals, error) {
	return f.funds[ticker], nil
}

func testFilter(t *testing.T, entries map[string]compliance.StaticEntry) *compliance.Filter {
	t.Helper()
	table := compliance.NewStaticTable(entries)
	return compliance.NewFilter([]compliance.Source{table}, nil, compliance.FilterOptions{})
}

func testStore(t *testing.T) strategy.Store {
	t.Helper()
	store := strategy.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), strategy.DefaultMomentum()))
	return store
}

func newTestPipeline(t *testing.T, universe gateway.Universe, market gateway.MarketData, filter *compliance.Filter) *Pipeline {
	t.Helper()
	return NewPipeline(universe, market, filter, indicators.NewDefaultRegistry(), testStore(t), Options{Workers: 4})
}

func TestPipelineEndToEnd(t *testing.T) {
	universe := &fakeUniverse{tickers: []string{"AAPL", "KNOWN_EXCLUDED", "MSFT"}}
	market := &fakeMarket{
		series: map[string]*models.Series{
			"AAPL": trendSeries(t, "AAPL", 60, 0.01),
			"MSFT": trendSeries(t, "MSFT", 60, 0.012),
		},
		prices: map[string]float64{"AAPL": 231.5, "MSFT": 512.0},
		funds: map[string]*models.Fundamentals{
			"AAPL": {MarketCap: 3.4e12, PERatio: 34.1},
		},
	}
	filter := testFilter(t, map[string]compliance.StaticEntry{
		"AAPL":           {Compliant: true},
		"MSFT":           {Compliant: true},
		"KNOWN_EXCLUDED": {Compliant: false, Reason: "GAMBLING", Detail: "casino operator"},
	})
	pipeline := newTestPipeline(t, universe, market, filter)

	result, err := pipeline.Run(context.Background(), Request{
		Universe: gateway.UniverseQuery{Kind: gateway.UniverseCustom, Tickers: universe.tickers},
		Enrich:   true,
	})
	require.NoError(t, err)
	require.NoError(t, result.Verify())

	assert.Equal(t, 3, result.TotalStocks)
	assert.Equal(t, 2, result.CompliantCount)
	assert.Equal(t, 1, result.ExcludedCount)
	assert.Equal(t, 0, result.SkippedCount)
	assert.Equal(t, 2, result.MatchesCount)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "default-momentum", result.StrategyID)

	require.Len(t, result.Exclusions, 1)
	assert.Equal(t, "KNOWN_EXCLUDED", result.Exclusions[0].Ticker)
	assert.Equal(t, models.ReasonGambling, result.Exclusions[0].Reason)

	for _, match := range result.Matches {
		assert.GreaterOrEqual(t, match.Confidence, 0.0)
		assert.LessOrEqual(t, match.Confidence, 1.0)
		require.Contains(t, match.Signals, "mcdx")
		require.Contains(t, match.Signals, "xtrender")
	}

	// Enrichment is best-effort per field.
	aapl := findMatch(t, result.Matches, "AAPL")
	require.NotNil(t, aapl.CurrentPrice)
	assert.InDelta(t, 231.5, *aapl.CurrentPrice, 1e-9)
	require.NotNil(t, aapl.Fundamentals)
	msft := findMatch(t, result.Matches, "MSFT")
	require.NotNil(t, msft.CurrentPrice)
	assert.Nil(t, msft.Fundamentals)
}

func findMatch(t *testing.T, matches []models.StockMatch, ticker string) models.StockMatch {
	t.Helper()
	for _, m := range matches {
		if m.Ticker == ticker {
			return m
		}
	}
	t.Fatalf("no match for %s", ticker)
	return models.StockMatch{}
}

func TestPipelineNonMatchingTicker(t *testing.T) {
	universe := &fakeUniverse{tickers: []string{"DOWN", "UP"}}
	market := &fakeMarket{series: map[string]*models.Series{
		"UP":   trendSeries(t, "UP", 60, 0.01),
		"DOWN": trendSeries(t, "DOWN", 60, -0.01),
	}}
	filter := testFilter(t, map[string]compliance.StaticEntry{
		"UP":   {Compliant: true},
		"DOWN": {Compliant: true},
	})
	pipeline := newTestPipeline(t, universe, market, filter)

	result, err := pipeline.Run(context.Background(), Request{
		Universe: gateway.UniverseQuery{Kind: gateway.UniverseCustom},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.MatchesCount)
	assert.Equal(t, "UP", result.Matches[0].Ticker)
	assert.Equal(t, 0, result.SkippedCount)
}

func TestPipelineSkipsDataFailures(t *testing.T) {
	// NODATA has no series; the ticker is skipped, the run succeeds and the
	// invariants still hold.
	universe := &fakeUniverse{tickers: []string{"AAPL", "NODATA"}}
	market := &fakeMarket{series: map[string]*models.Series{
		"AAPL": trendSeries(t, "AAPL", 60, 0.01),
	}}
	filter := testFilter(t, map[string]compliance.StaticEntry{
		"AAPL":   {Compliant: true},
		"NODATA": {Compliant: true},
	})
	pipeline := newTestPipeline(t, universe, market, filter)

	result, err := pipeline.Run(context.Background(), Request{
		Universe: gateway.UniverseQuery{Kind: gateway.UniverseCustom},
	})
	require.NoError(t, err)
	require.NoError(t, result.Verify())
	assert.Equal(t, 1, result.SkippedCount)
	assert.Equal(t, 1, result.MatchesCount)
}

func TestPipelineSkipsShortHistory(t *testing.T) {
	universe := &fakeUniverse{tickers: []string{"NEWIPO"}}
	market := &fakeMarket{series: map[string]*models.Series{
		"NEWIPO": trendSeries(t, "NEWIPO", 10, 0.01),
	}}
	filter := testFilter(t, map[string]compliance.StaticEntry{
		"NEWIPO": {Compliant: true},
	})
	pipeline := newTestPipeline(t, universe, market, filter)

	result, err := pipeline.Run(context.Background(), Request{
		Universe: gateway.UniverseQuery{Kind: gateway.UniverseCustom},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Equal(t, 0, result.MatchesCount)
}

func TestPipelineUniverseFailureIsFatal(t *testing.T) {
	universe := &fakeUniverse{err: errors.New("index service down")}
	pipeline := newTestPipeline(t, universe, &fakeMarket{}, testFilter(t, nil))

	_, err := pipeline.Run(context.Background(), Request{
		Universe: gateway.UniverseQuery{Kind: gateway.UniverseIndex, Name: "sp500"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrUniverseUnavailable)
}

func TestPipelineUnknownStrategyIsFatal(t *testing.T) {
	pipeline := newTestPipeline(t, &fakeUniverse{}, &fakeMarket{}, testFilter(t, nil))

	_, err := pipeline.Run(context.Background(), Request{StrategyID: "no-such-strategy"})
	require.Error(t, err)
	assert.ErrorIs(t, err, strategy.ErrNotFound)
}

func TestPipelineUnverifiedTickersExcluded(t *testing.T) {
	// No compliance source knows these tickers: they must all land in the
	// excluded partition, never in matches.
	universe := &fakeUniverse{tickers: []string{"GHOST1", "GHOST2"}}
	market := &fakeMarket{series: map[string]*models.Series{
		"GHOST1": trendSeries(t, "GHOST1", 60, 0.01),
		"GHOST2": trendSeries(t, "GHOST2", 60, 0.01),
	}}
	pipeline := newTestPipeline(t, universe, market, testFilter(t, nil))

	result, err := pipeline.Run(context.Background(), Request{
		Universe: gateway.UniverseQuery{Kind: gateway.UniverseCustom},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CompliantCount)
	assert.Equal(t, 2, result.ExcludedCount)
	assert.Equal(t, 0, result.MatchesCount)
	for _, excl := range result.Exclusions {
		assert.Equal(t, models.ReasonUnverified, excl.Reason)
	}
}

func TestPipelineMatchesSortedByConfidence(t *testing.T) {
	universe := &fakeUniverse{tickers: []string{"WEAK", "STRONG"}}
	market := &fakeMarket{series: map[string]*models.Series{
		"STRONG": trendSeries(t, "STRONG", 60, 0.02),
		"WEAK":   trendSeries(t, "WEAK", 60, 0.005),
	}}
	filter := testFilter(t, map[string]compliance.StaticEntry{
		"STRONG": {Compliant: true},
		"WEAK":   {Compliant: true},
	})
	pipeline := newTestPipeline(t, universe, market, filter)

	result, err := pipeline.Run(context.Background(), Request{
		Universe: gateway.UniverseQuery{Kind: gateway.UniverseCustom},
	})
	require.NoError(t, err)
	for i := 1; i < len(result.Matches); i++ {
		prev, cur := result.Matches[i-1], result.Matches[i]
		ordered := prev.Confidence > cur.Confidence ||
			(prev.Confidence == cur.Confidence && prev.Ticker < cur.Ticker)
		assert.True(t, ordered, "matches out of order at %d", i)
	}
}

func TestPipelineCancellation(t *testing.T) {
	universe := &fakeUniverse{tickers: []string{"AAPL"}}
	pipeline := newTestPipeline(t, universe, &fakeMarket{}, testFilter(t, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Run(ctx, Request{
		Universe: gateway.UniverseQuery{Kind: gateway.UniverseCustom},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelinePublishesProgress(t *testing.T) {
	universe := &fakeUniverse{tickers: []string{"AAPL"}}
	market := &fakeMarket{series: map[string]*models.Series{
		"AAPL": trendSeries(t, "AAPL", 60, 0.01),
	}}
	filter := testFilter(t, map[string]compliance.StaticEntry{"AAPL": {Compliant: true}})
	pipeline := newTestPipeline(t, universe, market, filter)

	events, unsubscribe := pipeline.Bus().Subscribe()
	defer unsubscribe()

	result, err := pipeline.Run(context.Background(), Request{
		Universe: gateway.UniverseQuery{Kind: gateway.UniverseCustom},
	})
	require.NoError(t, err)

	seen := make(map[Stage]bool)
	for {
		select {
		case ev := <-events:
			assert.Equal(t, result.RunID, ev.RunID)
			seen[ev.Stage] = true
			if ev.Stage == StageDone {
				assert.True(t, seen[StageUniverse])
				assert.True(t, seen[StageCompliance])
				assert.True(t, seen[StageEvaluation])
				return
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for progress events")
		}
	}
}

// gatedMarket releases one series fetch per send on gate, so the test
// controls when each evaluation unit completes.
type gatedMarket struct {
	inner gateway.MarketData
	gate  chan struct{}
}

func (g *gatedMarket) GetSeries(ctx context.Context, ticker string, periods int) (*models.Series, error) {
	<-g.gate
	return g.inner.GetSeries(ctx, ticker, periods)
}

func (g *gatedMarket) GetCurrentPrice(ctx context.Context, ticker string) (float64, error) {
	return g.inner.GetCurrentPrice(ctx, ticker)
}

func (g *gatedMarket) GetFundamentals(ctx context.Context, ticker string) (*models.Fundamentals, error) {
	return g.inner.GetFundamentals(ctx, ticker)
}

func TestPipelineEvaluationProgressIsLive(t *testing.T) {
	inner := &fakeMarket{series: map[string]*models.Series{
		"AAPL": trendSeries(t, "AAPL", 60, 0.01),
		"MSFT": trendSeries(t, "MSFT", 60, 0.01),
	}}
	market := &gatedMarket{inner: inner, gate: make(chan struct{})}
	universe := &fakeUniverse{tickers: []string{"AAPL", "MSFT"}}
	filter := testFilter(t, map[string]compliance.StaticEntry{
		"AAPL": {Compliant: true},
		"MSFT": {Compliant: true},
	})
	pipeline := newTestPipeline(t, universe, market, filter)

	events, unsubscribe := pipeline.Bus().Subscribe()
	defer unsubscribe()

	errs := make(chan error, 1)
	go func() {
		_, err := pipeline.Run(context.Background(), Request{
			Universe: gateway.UniverseQuery{Kind: gateway.UniverseCustom},
		})
		errs <- err
	}()

	waitForEvaluation := func(current int) {
		deadline := time.After(2 * time.Second)
		for {
			select {
			case ev := <-events:
				if ev.Stage == StageEvaluation && ev.Current == current {
					return
				}
			case <-deadline:
				t.Fatalf("no evaluation progress event for outcome %d", current)
			}
		}
	}

	// Release one ticker while the other is still in flight: its outcome
	// event must surface without waiting for the stage to finish.
	market.gate <- struct{}{}
	waitForEvaluation(1)

	market.gate <- struct{}{}
	waitForEvaluation(2)
	require.NoError(t, <-errs)
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	_, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(ProgressEvent{Stage: StageEvaluation, Current: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestConfidenceDeterministic(t *testing.T) {
	universe := &fakeUniverse{tickers: []string{"AAPL"}}
	market := &fakeMarket{series: map[string]*models.Series{
		"AAPL": trendSeries(t, "AAPL", 60, 0.01),
	}}
	filter := testFilter(t, map[string]compliance.StaticEntry{"AAPL": {Compliant: true}})
	pipeline := newTestPipeline(t, universe, market, filter)
	req := Request{Universe: gateway.UniverseQuery{Kind: gateway.UniverseCustom}}

	first, err := pipeline.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, first.MatchesCount, second.MatchesCount)
	for i := range first.Matches {
		assert.False(t, math.IsNaN(first.Matches[i].Confidence))
		assert.Equal(t, first.Matches[i].Confidence, second.Matches[i].Confidence)
	}
}
