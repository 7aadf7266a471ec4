package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file.
const (
	EnvRedisPassword = "COINBOOK_REDIS_PASSWORD"
	EnvPostgresDSN   = "COINBOOK_POSTGRES_DSN"
)

type Config struct {
	App struct {
		BaseCurrency     string `toml:"base_currency" yaml:"base_currency"`
		Namespace        string `toml:"namespace" yaml:"namespace"`
		InitialFunds     string `toml:"initial_funds" yaml:"initial_funds"`
		Overdraft        string `toml:"overdraft" yaml:"overdraft"`
		TimeoutMs        int    `toml:"timeout_ms" yaml:"timeout_ms"`
		LogLevel         string `toml:"log_level" yaml:"log_level"`
		CrawlIntervalSec int    `toml:"crawl_interval_sec" yaml:"crawl_interval_sec"`
	} `toml:"app" yaml:"app"`

	Symbols struct {
		List []string `toml:"list" yaml:"list"`
	} `toml:"symbols" yaml:"symbols"`

	Strategy struct {
		Name    string `toml:"name" yaml:"name"` // noop | fixed
		Budget  string `toml:"budget" yaml:"budget"`
		HoldMin int    `toml:"hold_min" yaml:"hold_min"`
	} `toml:"strategy" yaml:"strategy"`

	Storage Storage `toml:"storage" yaml:"storage"`

	Oracle struct {
		Kind string `toml:"kind" yaml:"kind"` // rest | stream

		Rest struct {
			URL       string `toml:"url" yaml:"url"`
			Path      string `toml:"path" yaml:"path"`
			Separator string `toml:"separator" yaml:"separator"`
		} `toml:"rest" yaml:"rest"`

		Stream struct {
			Exchange  string `toml:"exchange" yaml:"exchange"`
			WsURL     string `toml:"ws_url" yaml:"ws_url"`
			MaxAgeSec int    `toml:"max_age_sec" yaml:"max_age_sec"`
			WarmupSec int    `toml:"warmup_sec" yaml:"warmup_sec"`
		} `toml:"stream" yaml:"stream"`
	} `toml:"oracle" yaml:"oracle"`

	Metrics struct {
		Addr string `toml:"addr" yaml:"addr"`
	} `toml:"metrics" yaml:"metrics"`
}

type Storage struct {
	Backend string   `toml:"backend" yaml:"backend"` // memory | redis | sqlite | postgres
	Mirrors []string `toml:"mirrors" yaml:"mirrors"`
	Journal bool     `toml:"journal" yaml:"journal"`

	Redis struct {
		Addr         string `toml:"addr" yaml:"addr"`
		Password     string `toml:"password" yaml:"password"`
		DB           int    `toml:"db" yaml:"db"`
		EventStream  string `toml:"event_stream" yaml:"event_stream"`
		EventChannel string `toml:"event_channel" yaml:"event_channel"`
		StreamMaxLen int64  `toml:"stream_max_len" yaml:"stream_max_len"`
	} `toml:"redis" yaml:"redis"`

	SQLite struct {
		Path string `toml:"path" yaml:"path"`
	} `toml:"sqlite" yaml:"sqlite"`

	Postgres struct {
		DSN string `toml:"dsn" yaml:"dsn"`
	} `toml:"postgres" yaml:"postgres"`
}

// Load reads a TOML or YAML file (by extension), applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv loads a dotenv file into the process environment. A missing file is not
// an error; variables already set win.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.BaseCurrency == "" {
		cfg.App.BaseCurrency = "BTC"
	}
	cfg.App.BaseCurrency = strings.ToUpper(strings.TrimSpace(cfg.App.BaseCurrency))
	if cfg.App.Overdraft == "" {
		cfg.App.Overdraft = "allow"
	}
	if cfg.App.TimeoutMs <= 0 {
		cfg.App.TimeoutMs = 5000
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.CrawlIntervalSec <= 0 {
		cfg.App.CrawlIntervalSec = 300
	}
	if cfg.Strategy.Name == "" {
		cfg.Strategy.Name = "noop"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Storage.Redis.EventStream == "" {
		cfg.Storage.Redis.EventStream = "coinbook:events"
	}
	if cfg.Storage.Redis.EventChannel == "" {
		cfg.Storage.Redis.EventChannel = "coinbook:events:live"
	}
	if cfg.Storage.Redis.StreamMaxLen <= 0 {
		cfg.Storage.Redis.StreamMaxLen = 10000
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "coinbook.db"
	}
	if cfg.Oracle.Kind == "" {
		cfg.Oracle.Kind = "rest"
	}
	if cfg.Oracle.Stream.Exchange == "" {
		cfg.Oracle.Stream.Exchange = "binance"
	}
	if cfg.Oracle.Stream.MaxAgeSec <= 0 {
		cfg.Oracle.Stream.MaxAgeSec = 60
	}
	if cfg.Oracle.Stream.WarmupSec <= 0 {
		cfg.Oracle.Stream.WarmupSec = 15
	}
}

var backends = map[string]struct{}{"memory": {}, "redis": {}, "sqlite": {}, "postgres": {}}

func validate(cfg *Config) error {
	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		return errors.New("symbols.list is empty")
	}
	for _, s := range cfg.Symbols.List {
		if s == cfg.App.BaseCurrency {
			return fmt.Errorf("symbols.list contains base currency %s", s)
		}
	}

	if _, err := cfg.InitialFunds(); err != nil {
		return err
	}

	switch cfg.App.Overdraft {
	case "allow", "reject":
	default:
		return fmt.Errorf("app.overdraft must be allow or reject, got %q", cfg.App.Overdraft)
	}

	switch cfg.Strategy.Name {
	case "noop":
	case "fixed":
		b, err := decimal.NewFromString(cfg.Strategy.Budget)
		if err != nil || !b.IsPositive() {
			return fmt.Errorf("strategy.budget must be a positive decimal, got %q", cfg.Strategy.Budget)
		}
	default:
		return fmt.Errorf("unknown strategy %q", cfg.Strategy.Name)
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if _, ok := backends[cfg.Storage.Backend]; !ok {
		return fmt.Errorf("unknown storage.backend %q", cfg.Storage.Backend)
	}
	for i, m := range cfg.Storage.Mirrors {
		m = strings.ToLower(strings.TrimSpace(m))
		if _, ok := backends[m]; !ok || m == "memory" {
			return fmt.Errorf("unknown storage mirror %q", m)
		}
		if m == cfg.Storage.Backend {
			return fmt.Errorf("storage mirror %q duplicates the backend", m)
		}
		cfg.Storage.Mirrors[i] = m
	}
	if cfg.Storage.Journal && cfg.Storage.Backend != "redis" && cfg.Storage.Backend != "sqlite" {
		return errors.New("storage.journal needs the redis or sqlite backend")
	}
	if cfg.uses("postgres") && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but postgres in use")
	}

	switch cfg.Oracle.Kind {
	case "rest", "stream":
	default:
		return fmt.Errorf("unknown oracle.kind %q", cfg.Oracle.Kind)
	}
	return nil
}

// uses reports whether backend is the primary store or a mirror.
func (c *Config) uses(backend string) bool {
	if c.Storage.Backend == backend {
		return true
	}
	for _, m := range c.Storage.Mirrors {
		if m == backend {
			return true
		}
	}
	return false
}

// InitialFunds returns the configured initial funds, or nil if none is set.
func (c *Config) InitialFunds() (*decimal.Decimal, error) {
	s := strings.TrimSpace(c.App.InitialFunds)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("app.initial_funds %q: %w", s, err)
	}
	return &d, nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.App.TimeoutMs) * time.Millisecond
}

func (c *Config) CrawlInterval() time.Duration {
	return time.Duration(c.App.CrawlIntervalSec) * time.Second
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
