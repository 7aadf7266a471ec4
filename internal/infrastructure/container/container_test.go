package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinbook/internal/application/service"
	"coinbook/internal/domain/model"
	"coinbook/internal/infrastructure/config"
	"coinbook/internal/infrastructure/oracle/rest"
	"coinbook/internal/infrastructure/oracle/stream"
)

type fixedOracle map[string]string

func (o fixedOracle) Rate(_ context.Context, pair string) (decimal.Decimal, error) {
	return decimal.RequireFromString(o[pair]), nil
}

func loadConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestContainerSQLiteWithRedisMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	cfg := loadConfig(t, fmt.Sprintf(`
[symbols]
list = ["ETH"]
[storage]
backend = "sqlite"
mirrors = ["redis"]
journal = true
[storage.redis]
addr = %q
[storage.sqlite]
path = %q
`, mr.Addr(), dbPath))

	c, err := New(cfg, Options{
		Oracle:   fixedOracle{"BTC-ETH": "0.05"},
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.Journal())
	require.NotNil(t, c.Metrics())
	assert.Same(t, cfg, c.Config())

	engine, err := c.Engine()
	require.NoError(t, err)
	ctx := context.Background()
	funds := decimal.NewFromInt(1)
	require.NoError(t, engine.Initialize(ctx, "alpha", service.InitOptions{InitialFunds: &funds}))

	pos, err := engine.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "ETH", Amount: decimal.NewFromInt(2)})
	require.NoError(t, err)

	// every write reaches the mirror
	assert.Len(t, mr.Keys(), 2)

	entries, err := c.Journal().Recent(ctx, "alpha", 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "trade", entries[0].Type)
	assert.Equal(t, "ETH", entries[0].Currency)

	_, err = engine.ExecuteSell(ctx, "alpha", pos.ID)
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestContainerRedisJournal(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := loadConfig(t, fmt.Sprintf(`
[symbols]
list = ["ETH"]
[storage]
backend = "redis"
journal = true
[storage.redis]
addr = %q
event_stream = "test:events"
`, mr.Addr()))

	c, err := New(cfg, Options{Oracle: fixedOracle{"BTC-ETH": "0.05"}})
	require.NoError(t, err)
	defer c.Close()
	assert.Nil(t, c.Journal())

	engine, err := c.Engine()
	require.NoError(t, err)
	ctx := context.Background()
	funds := decimal.NewFromInt(1)
	require.NoError(t, engine.Initialize(ctx, "", service.InitOptions{InitialFunds: &funds}))
	_, err = engine.ExecuteBuy(ctx, "", model.TradeDirective{Currency: "ETH", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	events, err := mr.Stream("test:events")
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestContainerDefaultOracles(t *testing.T) {
	cfg := loadConfig(t, `
[symbols]
list = ["ETH", "SOL"]
`)
	c, err := New(cfg, Options{})
	require.NoError(t, err)
	defer c.Close()
	assert.IsType(t, &rest.Oracle{}, c.Oracle())

	// nothing to start for the REST oracle
	c.StartOracle(context.Background())

	cfg = loadConfig(t, `
[symbols]
list = ["ETH", "SOL"]
[oracle]
kind = "stream"
`)
	c2, err := New(cfg, Options{})
	require.NoError(t, err)
	defer c2.Close()
	require.IsType(t, &stream.Oracle{}, c2.Oracle())
	assert.Equal(t, []string{"BTC-ETH", "BTC-SOL"}, c2.Oracle().(*stream.Oracle).Board().Pairs())
}

func TestContainerFixedStrategy(t *testing.T) {
	cfg := loadConfig(t, `
[symbols]
list = ["ETH"]
[strategy]
name = "fixed"
budget = "0.01"
hold_min = 60
`)
	c, err := New(cfg, Options{Oracle: fixedOracle{"BTC-ETH": "0.05"}})
	require.NoError(t, err)
	defer c.Close()

	engine, err := c.Engine()
	require.NoError(t, err)
	ctx := context.Background()
	funds := decimal.NewFromInt(1)
	require.NoError(t, engine.Initialize(ctx, "", service.InitOptions{InitialFunds: &funds}))

	report, err := engine.RunCycle(ctx, "", []model.CoinSummary{{Currency: "ETH", Pair: "BTC-ETH", Last: decimal.RequireFromString("0.05")}})
	require.NoError(t, err)
	require.Len(t, report.Opened, 1)
	assert.Equal(t, "0.2", report.Opened[0].Amount.String())
}

func TestContainerErrors(t *testing.T) {
	cfg := loadConfig(t, `
[symbols]
list = ["ETH"]
[oracle]
kind = "stream"
[oracle.stream]
exchange = "nowhere"
`)
	_, err := New(cfg, Options{})
	assert.ErrorIs(t, err, ErrUnknownFeed)

	cfg = loadConfig(t, `
[symbols]
list = ["ETH"]
[storage]
backend = "redis"
[storage.redis]
addr = "127.0.0.1:1"
`)
	_, err = New(cfg, Options{})
	assert.ErrorIs(t, err, ErrStorageInitFailed)
}
