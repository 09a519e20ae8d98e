// Package config loads the application configuration: a YAML file layered
// over environment variables, validated before use. Secrets (API keys,
// DSNs) come from the environment only and never live in the YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Database  DatabaseConfig  `yaml:"database"`
	Sources   SourcesConfig   `yaml:"sources"`
	Screening ScreeningConfig `yaml:"screening"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Paths     PathsConfig     `yaml:"paths"`
}

// ServerConfig configures the monitoring HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port" validate:"gte=0,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// CacheConfig configures the two-tier cache.
type CacheConfig struct {
	// FastBudgetBytes bounds the in-process LRU tier. Zero selects the
	// default budget.
	FastBudgetBytes int64 `yaml:"fast_budget_bytes" validate:"gte=0"`
	// RedisAddr enables the durable tier when non-empty.
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db" validate:"gte=0"`
}

// DatabaseConfig configures the Postgres connection for strategies and the
// compliance audit trail. The DSN comes from DATABASE_URL; an empty DSN
// selects the in-memory strategy store and log-only audit.
type DatabaseConfig struct {
	DSN          string        `yaml:"-"`
	MaxOpenConns int           `yaml:"max_open_conns" validate:"gte=0"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// SourceConfig configures one market-data or compliance provider.
type SourceConfig struct {
	Name    string        `yaml:"name" validate:"required"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// HourlyQuota feeds the per-source token bucket; zero means unlimited.
	HourlyQuota int `yaml:"hourly_quota" validate:"gte=0"`
	// APIKeyEnv names the environment variable carrying the key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey resolves the source's key from the environment.
func (s SourceConfig) APIKey() string {
	if s.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(s.APIKeyEnv)
}

// SourcesConfig lists the configured providers.
type SourcesConfig struct {
	MarketData SourceConfig   `yaml:"market_data"`
	Compliance []SourceConfig `yaml:"compliance" validate:"dive"`
	// MinConfidence is the compliance confirmation floor.
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
}

// ScreeningConfig tunes the pipeline.
type ScreeningConfig struct {
	Workers int  `yaml:"workers" validate:"gte=0,lte=256"`
	Enrich  bool `yaml:"enrich"`
	// Offline swaps the market gateway for the deterministic generator.
	Offline bool `yaml:"offline"`
}

// ScheduledRun is one cron-driven screening job.
type ScheduledRun struct {
	Name       string `yaml:"name" validate:"required"`
	Schedule   string `yaml:"schedule" validate:"required"` // cron format
	UniverseID string `yaml:"universe"`
	StrategyID string `yaml:"strategy"`
	Enabled    bool   `yaml:"enabled"`
}

// SchedulerConfig lists scheduled screening runs.
type SchedulerConfig struct {
	Jobs []ScheduledRun `yaml:"jobs" validate:"dive"`
}

// PathsConfig points at the data files the loaders consume.
type PathsConfig struct {
	UniverseFile   string `yaml:"universe_file"`
	StrategiesFile string `yaml:"strategies_file"`
	StaticTable    string `yaml:"static_compliance_file"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Cache: CacheConfig{},
		Database: DatabaseConfig{
			MaxOpenConns: 8,
			QueryTimeout: 5 * time.Second,
		},
		Sources: SourcesConfig{
			MarketData:    SourceConfig{Name: "yahoo", HourlyQuota: 2000},
			MinConfidence: 0.8,
		},
		Screening: ScreeningConfig{Workers: 10, Enrich: true},
	}
}

// Load reads the YAML file over the defaults and applies environment
// overrides. A .env file in the working directory is honored when present.
func Load(path string) (*Config, error) {
	// Best-effort: absence of .env is the common case.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cache.RedisAddr = addr
	}
}

// RateQuotas collects the per-source hourly quotas for the rate limiter.
func (c *Config) RateQuotas() map[string]int {
	quotas := make(map[string]int)
	if c.Sources.MarketData.HourlyQuota > 0 {
		quotas[c.Sources.MarketData.Name] = c.Sources.MarketData.HourlyQuota
	}
	for _, src := range c.Sources.Compliance {
		if src.HourlyQuota > 0 {
			quotas[src.Name] = src.HourlyQuota
		}
	}
	return quotas
}
