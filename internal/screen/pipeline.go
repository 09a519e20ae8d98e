// Package screen orchestrates the four-stage screening pipeline: universe
// retrieval, compliance filtering, strategy evaluation and result
// enrichment. Per-ticker failures degrade to skips; only universe
// retrieval and strategy resolution can fail a run.
package screen

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/compliance"
	"github.com/stockrun/stockrun/internal/gateway"
	"github.com/stockrun/stockrun/internal/indicators"
	"github.com/stockrun/stockrun/internal/metrics"
	"github.com/stockrun/stockrun/internal/models"
	"github.com/stockrun/stockrun/internal/strategy"
)

// DefaultWorkers is the stage-3 evaluation concurrency.
const DefaultWorkers = 10

// Request describes one screening run.
type Request struct {
	Universe   gateway.UniverseQuery
	StrategyID string // empty selects the default strategy
	// Enrich controls stage 4 (price and fundamentals on matches).
	Enrich bool
}

// Pipeline wires the screening collaborators together.
type Pipeline struct {
	universe   gateway.Universe
	market     gateway.MarketData
	filter     *compliance.Filter
	registry   *indicators.Registry
	strategies strategy.Store
	evaluator  *strategy.Evaluator
	bus        *Bus
	workers    int
}

// Options tunes the pipeline. Zero values select the defaults.
type Options struct {
	Workers int
	Bus     *Bus
}

// NewPipeline builds a pipeline over the given collaborators.
func NewPipeline(
	universe gateway.Universe,
	market gateway.MarketData,
	filter *compliance.Filter,
	registry *indicators.Registry,
	strategies strategy.Store,
	opts Options,
) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Bus == nil {
		opts.Bus = NewBus()
	}
	return &Pipeline{
		universe:   universe,
		market:     market,
		filter:     filter,
		registry:   registry,
		strategies: strategies,
		evaluator:  strategy.NewEvaluator(),
		bus:        opts.Bus,
		workers:    opts.Workers,
	}
}

// Bus exposes the progress bus for monitoring surfaces.
func (p *Pipeline) Bus() *Bus { return p.bus }

// tickerOutcome is one worker's verdict for one compliant ticker.
type tickerOutcome struct {
	ticker  string
	match   *models.StockMatch
	skipped bool
}

// Run executes the full pipeline. The returned result always satisfies the
// count invariants; an error means the run as a whole could not proceed.
func (p *Pipeline) Run(ctx context.Context, req Request) (*models.ScreeningResult, error) {
	runID := uuid.NewString()
	started := time.Now().UTC()
	logger := log.With().Str("run_id", runID).Logger()

	strat, err := p.resolveStrategy(ctx, req.StrategyID)
	if err != nil {
		return nil, err
	}
	plan, err := p.buildPlan(strat)
	if err != nil {
		return nil, err
	}

	// Stage 1: universe.
	p.publish(runID, StageUniverse, "resolving universe", "", 0, 0)
	tickers, err := p.universe.GetUniverse(ctx, req.Universe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrUniverseUnavailable, err)
	}
	logger.Info().Int("tickers", len(tickers)).Str("universe", req.Universe.Describe()).Msg("universe resolved")

	// Stage 2: compliance. Every ticker lands in exactly one partition.
	p.publish(runID, StageCompliance, "filtering universe", "", 0, len(tickers))
	statuses := p.filter.BatchCheck(ctx, tickers)
	var compliant []string
	var exclusions []models.StockExclusion
	for _, ticker := range tickers {
		status := statuses[ticker]
		if status.IsCompliant() {
			compliant = append(compliant, ticker)
			continue
		}
		exclusions = append(exclusions, models.StockExclusion{
			Ticker: ticker,
			Reason: status.Reason,
			Detail: status.Detail,
			Source: status.Source,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Info().Int("compliant", len(compliant)).Int("excluded", len(exclusions)).Msg("compliance filter applied")

	// Stage 3: evaluation across the worker pool.
	outcomes, err := p.evaluate(ctx, runID, logger, strat, plan, compliant)
	if err != nil {
		return nil, err
	}

	var matches []models.StockMatch
	skipped := 0
	for _, out := range outcomes {
		switch {
		case out.skipped:
			skipped++
		case out.match != nil:
			matches = append(matches, *out.match)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Ticker < matches[j].Ticker
	})

	// Stage 4: enrichment, best-effort.
	if req.Enrich {
		p.enrich(ctx, runID, matches)
	}

	completed := time.Now().UTC()
	result := &models.ScreeningResult{
		RunID:          runID,
		Universe:       req.Universe.Describe(),
		StrategyID:     strat.ID,
		TotalStocks:    len(tickers),
		CompliantCount: len(compliant),
		ExcludedCount:  len(exclusions),
		SkippedCount:   skipped,
		MatchesCount:   len(matches),
		Matches:        matches,
		Exclusions:     exclusions,
		StartedAt:      started,
		CompletedAt:    completed,
		Duration:       completed.Sub(started),
	}
	if err := result.Verify(); err != nil {
		return nil, err
	}
	metrics.ScreeningDuration.Observe(result.Duration.Seconds())
	p.publish(runID, StageDone, fmt.Sprintf("%d matches", len(matches)), "", len(compliant), len(compliant))
	logger.Info().
		Int("matches", len(matches)).
		Int("skipped", skipped).
		Dur("duration", result.Duration).
		Msg("screening run complete")
	return result, nil
}

func (p *Pipeline) resolveStrategy(ctx context.Context, id string) (*models.Strategy, error) {
	var (
		strat *models.Strategy
		err   error
	)
	if id == "" {
		strat, err = p.strategies.GetDefault(ctx)
	} else {
		strat, err = p.strategies.Get(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving strategy %q: %w", id, err)
	}
	if err := strat.Validate(); err != nil {
		return nil, err
	}
	return strat, nil
}

// evalPlan is the per-run indicator set, instantiated once so every ticker
// is judged by identically configured indicators.
type evalPlan struct {
	indicators map[string]indicators.Indicator
	periods    int
}

// buildPlan instantiates each indicator the strategy references, applying
// the first per-condition config override seen for that indicator.
func (p *Pipeline) buildPlan(strat *models.Strategy) (*evalPlan, error) {
	plan := &evalPlan{indicators: make(map[string]indicators.Indicator)}
	configs := make(map[string]map[string]any)
	for _, cond := range strat.Conditions {
		if len(cond.IndicatorConfig) > 0 && configs[cond.Indicator] == nil {
			configs[cond.Indicator] = cond.IndicatorConfig
		}
	}
	for _, name := range strat.Indicators() {
		ind, err := p.registry.Get(name, configs[name])
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", strat.ID, err)
		}
		plan.indicators[name] = ind
		if ind.RequiredPeriods() > plan.periods {
			plan.periods = ind.RequiredPeriods()
		}
	}
	return plan, nil
}

// evaluate fans compliant tickers across the worker pool. Cancellation is
// honored between ticker units; an in-flight ticker finishes first.
func (p *Pipeline) evaluate(ctx context.Context, runID string, logger zerolog.Logger, strat *models.Strategy, plan *evalPlan, tickers []string) ([]tickerOutcome, error) {
	jobs := make(chan string)
	results := make(chan tickerOutcome, len(tickers))

	var wg sync.WaitGroup
	workers := p.workers
	if workers > len(tickers) {
		workers = len(tickers)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range jobs {
				results <- p.evaluateTicker(ctx, logger, strat, plan, ticker)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, ticker := range tickers {
			select {
			case jobs <- ticker:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Drain concurrently so subscribers see progress while workers run,
	// not a burst after the stage completes.
	collected := make(chan []tickerOutcome, 1)
	go func() {
		var outcomes []tickerOutcome
		done := 0
		total := len(tickers)
		for out := range results {
			outcomes = append(outcomes, out)
			done++
			p.publish(runID, StageEvaluation, "evaluating", out.ticker, done, total)
		}
		collected <- outcomes
	}()

	wg.Wait()
	close(results)
	outcomes := <-collected

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// evaluateTicker runs the full per-ticker unit: fetch history, compute
// every indicator signal, apply the strategy. Any failure skips the ticker.
func (p *Pipeline) evaluateTicker(ctx context.Context, logger zerolog.Logger, strat *models.Strategy, plan *evalPlan, ticker string) tickerOutcome {
	series, err := p.market.GetSeries(ctx, ticker, plan.periods)
	if err != nil {
		logger.Warn().Err(err).Str("ticker", ticker).Msg("series fetch failed, skipping")
		metrics.TickersProcessed.WithLabelValues("skipped").Inc()
		return tickerOutcome{ticker: ticker, skipped: true}
	}

	signals := make(map[string]*models.Signal, len(plan.indicators))
	for name, ind := range plan.indicators {
		signal, err := ind.Signal(series)
		if err != nil {
			if !errors.Is(err, indicators.ErrInsufficientData) && !errors.Is(err, indicators.ErrMissingColumn) {
				logger.Warn().Err(err).Str("ticker", ticker).Str("indicator", name).Msg("indicator failed")
			}
			metrics.TickersProcessed.WithLabelValues("skipped").Inc()
			return tickerOutcome{ticker: ticker, skipped: true}
		}
		signals[name] = signal
	}

	if !p.evaluator.Evaluate(strat, signals) {
		metrics.TickersProcessed.WithLabelValues("no_match").Inc()
		return tickerOutcome{ticker: ticker}
	}
	metrics.TickersProcessed.WithLabelValues("matched").Inc()
	return tickerOutcome{
		ticker: ticker,
		match: &models.StockMatch{
			Ticker:     ticker,
			Signals:    signals,
			Confidence: p.evaluator.Confidence(strat, signals),
		},
	}
}

// enrich attaches spot price and fundamentals to matches. Failures leave
// the fields nil; a match is never dropped for missing enrichment.
func (p *Pipeline) enrich(ctx context.Context, runID string, matches []models.StockMatch) {
	for i := range matches {
		if ctx.Err() != nil {
			return
		}
		ticker := matches[i].Ticker
		p.publish(runID, StageEnrichment, "enriching", ticker, i+1, len(matches))
		if price, err := p.market.GetCurrentPrice(ctx, ticker); err == nil {
			matches[i].CurrentPrice = &price
		}
		if fund, err := p.market.GetFundamentals(ctx, ticker); err == nil && fund != nil {
			matches[i].Fundamentals = fund
		}
	}
}

func (p *Pipeline) publish(runID string, stage Stage, msg, ticker string, current, total int) {
	p.bus.Publish(ProgressEvent{
		RunID:   runID,
		Stage:   stage,
		Message: msg,
		Ticker:  ticker,
		Current: current,
		Total:   total,
	})
}
