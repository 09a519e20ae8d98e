package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/cache"
	"github.com/stockrun/stockrun/internal/compliance"
	"github.com/stockrun/stockrun/internal/config"
	"github.com/stockrun/stockrun/internal/gateway"
	"github.com/stockrun/stockrun/internal/indicators"
	"github.com/stockrun/stockrun/internal/ratelimit"
	"github.com/stockrun/stockrun/internal/screen"
	"github.com/stockrun/stockrun/internal/strategy"
)

// app is the wired object graph every subcommand runs against.
type app struct {
	cfg        *config.Config
	cache      cache.Cache
	market     gateway.MarketData
	universe   gateway.Universe
	filter     *compliance.Filter
	registry   *indicators.Registry
	strategies strategy.Store
	pipeline   *screen.Pipeline
	db         *sqlx.DB
	redis      *cache.RedisTier
}

type appOptions struct {
	offline bool
	workers int
}

// buildApp assembles the full dependency graph from config. Absent
// optional dependencies (Redis, Postgres, vendor APIs) degrade the graph
// rather than failing it.
func buildApp(configPath string, opts appOptions) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	budget := cfg.Cache.FastBudgetBytes
	if budget <= 0 {
		budget = cache.DefaultFastBudget
	}
	fast := cache.NewFastTier(budget)
	var durable cache.Tier
	if cfg.Cache.RedisAddr != "" {
		a.redis = cache.NewRedisTier(cache.RedisOptions{
			Addr:   cfg.Cache.RedisAddr,
			DB:     cfg.Cache.RedisDB,
			Prefix: appName,
		})
		durable = a.redis
	}
	a.cache = cache.NewTiered(fast, durable)

	if cfg.Database.DSN != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		a.db = db
	}

	limiter := ratelimit.NewLimiter(cfg.RateQuotas())

	if opts.offline || cfg.Screening.Offline {
		a.market = gateway.NewOffline()
		log.Info().Msg("using offline market data generator")
	} else {
		a.market = gateway.NewCachedMarketData(gateway.NewYahoo(), a.cache, limiter, cfg.Sources.MarketData.Name)
	}

	a.universe, err = buildUniverse(cfg, a.cache)
	if err != nil {
		return nil, err
	}
	a.filter, err = buildFilter(cfg, a.cache, a.db)
	if err != nil {
		return nil, err
	}
	a.strategies, err = buildStrategies(cfg, a.db)
	if err != nil {
		return nil, err
	}
	a.registry = indicators.NewDefaultRegistry()

	workers := opts.workers
	if workers <= 0 {
		workers = cfg.Screening.Workers
	}
	a.pipeline = screen.NewPipeline(a.universe, a.market, a.filter, a.registry, a.strategies, screen.Options{
		Workers: workers,
	})
	return a, nil
}

func buildUniverse(cfg *config.Config, c cache.Cache) (gateway.Universe, error) {
	path := cfg.Paths.UniverseFile
	if path == "" {
		path = "config/universe.yaml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Warn().Str("path", path).Msg("universe file absent, only custom ticker lists will resolve")
		return gateway.NewCachedUniverse(gateway.NewEmptyUniverse(), c, cache.ClassUniverseStatic), nil
	}
	static, err := gateway.NewStaticUniverse(path)
	if err != nil {
		return nil, fmt.Errorf("loading universe file: %w", err)
	}
	return gateway.NewCachedUniverse(static, c, cache.ClassUniverseStatic), nil
}

func buildFilter(cfg *config.Config, c cache.Cache, db *sqlx.DB) (*compliance.Filter, error) {
	var sources []compliance.Source
	for _, src := range cfg.Sources.Compliance {
		if src.BaseURL == "" {
			continue
		}
		sources = append(sources, compliance.NewHTTPSource(compliance.HTTPSourceConfig{
			Name:    src.Name,
			BaseURL: src.BaseURL,
			APIKey:  src.APIKey(),
			Timeout: src.Timeout,
		}))
	}
	if cfg.Paths.StaticTable != "" {
		table, err := compliance.NewStaticTableFromFile(cfg.Paths.StaticTable)
		if err != nil {
			return nil, err
		}
		sources = append(sources, table)
	}

	var audit compliance.AuditLog = compliance.LogAudit{}
	if db != nil {
		audit = compliance.NewPostgresAudit(db, cfg.Database.QueryTimeout)
	}
	return compliance.NewFilter(sources, c, compliance.FilterOptions{
		MinConfidence: cfg.Sources.MinConfidence,
		Audit:         audit,
		Normalizer:    compliance.NewNormalizer(true),
	}), nil
}

func buildStrategies(cfg *config.Config, db *sqlx.DB) (strategy.Store, error) {
	if db != nil {
		return strategy.NewPostgresStore(db, cfg.Database.QueryTimeout), nil
	}
	if cfg.Paths.StrategiesFile != "" {
		store, err := strategy.NewMemoryStoreFromFile(cfg.Paths.StrategiesFile)
		if err != nil {
			return nil, fmt.Errorf("loading strategies file: %w", err)
		}
		return store, nil
	}
	store := strategy.NewMemoryStore()
	if err := store.Save(context.Background(), strategy.DefaultMomentum()); err != nil {
		return nil, err
	}
	return store, nil
}

// close releases the app's external connections.
func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// parseUniverseFlag turns "index:sp500" / "tickers:AAPL,MSFT" into a query.
func parseUniverseFlag(value string) (gateway.UniverseQuery, error) {
	kind, rest, found := strings.Cut(value, ":")
	if !found {
		return gateway.UniverseQuery{}, fmt.Errorf("universe %q: expected kind:value", value)
	}
	switch kind {
	case "index":
		return gateway.UniverseQuery{Kind: gateway.UniverseIndex, Name: rest}, nil
	case "sector":
		return gateway.UniverseQuery{Kind: gateway.UniverseSector, Name: rest}, nil
	case "etf":
		return gateway.UniverseQuery{Kind: gateway.UniverseETFHoldings, Name: rest}, nil
	case "tickers":
		return gateway.UniverseQuery{
			Kind:    gateway.UniverseCustom,
			Tickers: strings.Split(strings.ToUpper(rest), ","),
		}, nil
	default:
		return gateway.UniverseQuery{}, fmt.Errorf("universe kind %q not recognized", kind)
	}
}
