package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	appcontainer "coinbook/internal/application/container"
	"coinbook/internal/application/port"
	"coinbook/internal/application/service"
	"coinbook/internal/infrastructure/config"
	_ "coinbook/internal/infrastructure/exchange/binance"
	"coinbook/internal/infrastructure/metrics"
	"coinbook/internal/infrastructure/oracle/rest"
	"coinbook/internal/infrastructure/oracle/stream"
	"coinbook/internal/infrastructure/pricefeed"
	"coinbook/internal/infrastructure/storage"
	"coinbook/internal/infrastructure/storage/composite"
	pgrepo "coinbook/internal/infrastructure/storage/postgres"
	redisrepo "coinbook/internal/infrastructure/storage/redis"
	sqliterepo "coinbook/internal/infrastructure/storage/sqlite"
	"coinbook/internal/strategy"
)

var (
	ErrUnknownBackend    = errors.New("unknown storage backend")
	ErrStorageInitFailed = errors.New("storage init failed")
	ErrUnknownFeed       = errors.New("unknown price feed")
)

// Options overrides parts of the wiring, mainly for tests.
type Options struct {
	Oracle   port.PriceOracle
	Strategy port.StrategyHook
	Registry *prometheus.Registry
	Now      func() time.Time
}

// Container holds every infrastructure dependency of one process.
type Container struct {
	cfg *config.Config

	store   port.RecordStore
	oracle  port.PriceOracle
	stream  *stream.Oracle
	feed    port.PriceFeed
	metrics *metrics.Recorder
	journal *sqliterepo.Journal
	app     *appcontainer.Container

	closeOnce   sync.Once
	closerChain []func() error
}

// New builds the container. On error every resource opened so far is closed.
func New(cfg *config.Config, opts Options) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}

	if err := c.build(opts); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(opts Options) error {
	primary, err := c.initBackend(c.cfg.Storage.Backend)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorageInitFailed, c.cfg.Storage.Backend, err)
	}
	recorders := service.MultiRecorder{}

	if c.cfg.Storage.Journal {
		rec, err := c.initJournal(primary)
		if err != nil {
			return err
		}
		recorders = append(recorders, rec)
	}

	mirrors := make([]port.RecordStore, 0, len(c.cfg.Storage.Mirrors))
	for _, name := range c.cfg.Storage.Mirrors {
		m, err := c.initBackend(name)
		if err != nil {
			return fmt.Errorf("%w: mirror %s: %w", ErrStorageInitFailed, name, err)
		}
		mirrors = append(mirrors, m)
	}

	if len(mirrors) > 0 {
		c.store = composite.New(primary, mirrors...)
	} else {
		c.store = primary
	}

	c.metrics = metrics.New(opts.Registry)
	recorders = append(recorders, c.metrics)

	if err := c.initOracle(opts.Oracle); err != nil {
		return err
	}

	hook := opts.Strategy
	if hook == nil {
		hook, err = c.initStrategy()
		if err != nil {
			return err
		}
	}

	c.app = appcontainer.New(service.EngineDeps{
		Store:        c.store,
		Oracle:       c.oracle,
		Strategy:     hook,
		BaseCurrency: c.cfg.App.BaseCurrency,
		Timeout:      c.cfg.Timeout(),
		Overdraft:    service.OverdraftPolicy(c.cfg.App.Overdraft),
		Recorder:     recorders,
		Now:          opts.Now,
	})
	return nil
}

// initBackend opens one store and registers its closer.
func (c *Container) initBackend(name string) (port.RecordStore, error) {
	var (
		store port.RecordStore
		err   error
	)

	switch name {
	case storage.BackendMemory:
		store = storage.NewMemoryStore()
	case storage.BackendRedis:
		store, err = c.initRedis()
	case storage.BackendSQLite:
		store, err = sqliterepo.New(c.cfg.Storage.SQLite.Path)
	case storage.BackendPostgres:
		store, err = pgrepo.New(c.cfg.Storage.Postgres.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	if err != nil {
		return nil, err
	}

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Str("backend", name).Msg("closing store")
		return store.Close()
	})
	log.Info().Str("backend", name).Msg("store initialized")
	return store, nil
}

// initRedis connects and pings Redis
func (c *Container) initRedis() (*redisrepo.Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Storage.Redis.Addr,
		Password: c.cfg.Storage.Redis.Password,
		DB:       c.cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info().
		Str("addr", c.cfg.Storage.Redis.Addr).
		Int("db", c.cfg.Storage.Redis.DB).
		Msg("redis connected")
	return redisrepo.New(rdb), nil
}

// initJournal attaches an event journal to the primary store
func (c *Container) initJournal(primary port.RecordStore) (service.Recorder, error) {
	switch s := primary.(type) {
	case *redisrepo.Store:
		r := c.cfg.Storage.Redis
		return redisrepo.NewJournal(s.Client(), "coinbook", r.EventStream, r.EventChannel, r.StreamMaxLen), nil
	case *sqliterepo.Repo:
		c.journal = sqliterepo.NewJournal(s.GetDB())
		return c.journal, nil
	default:
		return nil, fmt.Errorf("journal not supported on %s", c.cfg.Storage.Backend)
	}
}

func (c *Container) initOracle(override port.PriceOracle) error {
	if override != nil {
		c.oracle = override
		return nil
	}

	switch c.cfg.Oracle.Kind {
	case "rest":
		r := c.cfg.Oracle.Rest
		o, err := rest.New(c.cfg.App.BaseCurrency, rest.Options{
			URL:       r.URL,
			Path:      r.Path,
			Separator: r.Separator,
		})
		if err != nil {
			return err
		}
		c.oracle = o
	case "stream":
		s := c.cfg.Oracle.Stream
		factory, ok := pricefeed.Get(s.Exchange)
		if !ok {
			return fmt.Errorf("%w: %q (have %v)", ErrUnknownFeed, s.Exchange, pricefeed.Names())
		}
		pairs := make([]string, 0, len(c.cfg.Symbols.List))
		for _, sym := range c.cfg.Symbols.List {
			pairs = append(pairs, c.cfg.App.BaseCurrency+"-"+sym)
		}
		c.stream = stream.New(pairs, time.Duration(s.MaxAgeSec)*time.Second)
		c.feed = factory(s.WsURL, c.cfg.App.BaseCurrency)
		c.oracle = c.stream
	default:
		return fmt.Errorf("unknown oracle kind %q", c.cfg.Oracle.Kind)
	}
	log.Info().Str("oracle", c.cfg.Oracle.Kind).Msg("oracle initialized")
	return nil
}

func (c *Container) initStrategy() (port.StrategyHook, error) {
	switch c.cfg.Strategy.Name {
	case strategy.NameFixed:
		budget, err := decimal.NewFromString(c.cfg.Strategy.Budget)
		if err != nil {
			return nil, fmt.Errorf("strategy budget: %w", err)
		}
		return strategy.NewFixedAllocation(budget, time.Duration(c.cfg.Strategy.HoldMin)*time.Minute)
	default:
		return strategy.Noop{}, nil
	}
}

// StartOracle starts the websocket feed when the stream oracle is configured and
// waits up to the warmup period for every pair to be quoted. It is a no-op for the
// REST oracle.
func (c *Container) StartOracle(ctx context.Context) {
	if c.stream == nil {
		return
	}
	go func() {
		if err := c.stream.Run(ctx, c.feed); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("feed", c.feed.Name()).Msg("rate stream stopped")
		}
	}()

	wctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Oracle.Stream.WarmupSec)*time.Second)
	defer cancel()
	if err := c.stream.WaitReady(wctx); err != nil {
		log.Warn().Err(err).Msg("rate stream not ready, some pairs have no rate yet")
	}
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.cfg
}

func (c *Container) Store() port.RecordStore {
	return c.store
}

func (c *Container) Oracle() port.PriceOracle {
	return c.oracle
}

func (c *Container) Metrics() *metrics.Recorder {
	return c.metrics
}

// Journal returns the SQLite event journal, or nil when none is attached.
func (c *Container) Journal() *sqliterepo.Journal {
	return c.journal
}

func (c *Container) App() *appcontainer.Container {
	return c.app
}

func (c *Container) Engine() (*service.LedgerEngine, error) {
	return c.app.Engine()
}

// Close releases all resources in reverse order of acquisition
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
