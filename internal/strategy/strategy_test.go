package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinbook/internal/domain/model"
)

func TestNoop(t *testing.T) {
	ctx := context.Background()
	d, err := Noop{}.EvaluateCoin(ctx, model.CoinSummary{Currency: "ETH", Last: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Nil(t, d)

	c, err := Noop{}.EvaluatePosition(ctx, model.Position{ID: "x"})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewFixedAllocation(t *testing.T) {
	_, err := NewFixedAllocation(decimal.Zero, time.Hour)
	assert.Error(t, err)
	_, err = NewFixedAllocation(decimal.NewFromInt(-1), time.Hour)
	assert.Error(t, err)
}

func TestFixedAllocationEvaluateCoin(t *testing.T) {
	f, err := NewFixedAllocation(decimal.RequireFromString("0.01"), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	d, err := f.EvaluateCoin(ctx, model.CoinSummary{Currency: "ETH", Pair: "BTC-ETH", Last: decimal.RequireFromString("0.05")})
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "ETH", d.Currency)
	assert.Equal(t, "0.2", d.Amount.String())
	assert.Equal(t, NameFixed, d.Extra["strategy"])
	assert.Equal(t, "0.05", d.Extra["entry_rate"])

	d, err = f.EvaluateCoin(ctx, model.CoinSummary{Currency: "XRP", Last: decimal.RequireFromString("0.00003")})
	require.NoError(t, err)
	assert.Equal(t, "333.33333333", d.Amount.String())

	d, err = f.EvaluateCoin(ctx, model.CoinSummary{Currency: "DEAD"})
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestFixedAllocationEvaluatePosition(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f, err := NewFixedAllocation(decimal.NewFromInt(1), time.Hour)
	require.NoError(t, err)
	f.Now = func() time.Time { return now }
	ctx := context.Background()

	young := model.Position{OpenTimestamp: now.Add(-30 * time.Minute).Format(model.TimestampLayout)}
	d, err := f.EvaluatePosition(ctx, young)
	require.NoError(t, err)
	assert.Nil(t, d)

	old := model.Position{OpenTimestamp: now.Add(-2 * time.Hour).Format(model.TimestampLayout)}
	d, err = f.EvaluatePosition(ctx, old)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, d.Close)

	_, err = f.EvaluatePosition(ctx, model.Position{OpenTimestamp: "yesterday"})
	assert.Error(t, err)

	f.Hold = 0
	d, err = f.EvaluatePosition(ctx, old)
	require.NoError(t, err)
	assert.Nil(t, d)
}
