package container

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinbook/internal/application/port"
	"coinbook/internal/application/service"
	"coinbook/internal/infrastructure/storage"
	"coinbook/internal/strategy"
)

type fixedOracle map[string]string

func (o fixedOracle) Rate(_ context.Context, pair string) (decimal.Decimal, error) {
	r, ok := o[pair]
	if !ok {
		return decimal.Zero, port.ErrNoRate
	}
	return decimal.RequireFromString(r), nil
}

func newTestContainer(t *testing.T) *Container {
	t.Helper()
	c := New(service.EngineDeps{
		Store:        storage.NewMemoryStore(),
		Oracle:       fixedOracle{"BTC-ETH": "0.05"},
		Strategy:     strategy.Noop{},
		BaseCurrency: "BTC",
		Timeout:      time.Second,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEngineIsShared(t *testing.T) {
	c := newTestContainer(t)

	e1, err := c.Engine()
	require.NoError(t, err)
	e2, err := c.Engine()
	require.NoError(t, err)
	assert.Same(t, e1, e2)
	assert.NotNil(t, c.Store())
}

func TestEngineRejectsMissingOracle(t *testing.T) {
	c := New(service.EngineDeps{Store: storage.NewMemoryStore()})
	_, err := c.Engine()
	assert.ErrorIs(t, err, service.ErrNoOracle)
}

func TestCrawlerDrivesEngine(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	engine, err := c.Engine()
	require.NoError(t, err)
	funds := decimal.NewFromInt(1)
	require.NoError(t, engine.Initialize(ctx, "alpha", service.InitOptions{InitialFunds: &funds}))

	crawler, err := c.Crawler(CrawlOptions{Namespace: "alpha", Symbols: []string{"ETH", "SOL"}})
	require.NoError(t, err)

	res, err := crawler.Crawl(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Coins.Evaluated)
	require.Len(t, res.Coins.Failures, 1)
	assert.Equal(t, "SOL", res.Coins.Failures[0].Item)
	assert.True(t, funds.Equal(res.Balance.Total))
}
