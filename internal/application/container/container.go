package container

import (
	"sync"
	"time"

	"coinbook/internal/application/port"
	"coinbook/internal/application/service"
	"coinbook/internal/application/usecase/crawl"
)

// Container wires the application services over a set of ports.
type Container struct {
	deps service.EngineDeps

	mu     sync.Mutex
	engine *service.LedgerEngine
}

func New(deps service.EngineDeps) *Container {
	return &Container{deps: deps}
}

func (c *Container) Store() port.RecordStore {
	return c.deps.Store
}

// Engine builds the ledger engine on first use.
func (c *Container) Engine() (*service.LedgerEngine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine == nil {
		e, err := service.NewLedgerEngine(c.deps)
		if err != nil {
			return nil, err
		}
		c.engine = e
	}
	return c.engine, nil
}

// CrawlOptions selects what a crawler trades and where it reports.
type CrawlOptions struct {
	Namespace string
	Symbols   []string
	Interval  time.Duration
	Sink      port.Sink
}

// Crawler builds a crawl service driving the engine.
func (c *Container) Crawler(opts CrawlOptions) (*crawl.Service, error) {
	engine, err := c.Engine()
	if err != nil {
		return nil, err
	}
	return crawl.NewService(crawl.ServiceDeps{
		Ledger:    engine,
		Quoter:    engine.Converter(),
		Namespace: opts.Namespace,
		Symbols:   opts.Symbols,
		Interval:  opts.Interval,
		Sink:      opts.Sink,
		Now:       c.deps.Now,
	})
}

func (c *Container) Close() error {
	if c.deps.Store == nil {
		return nil
	}
	return c.deps.Store.Close()
}
