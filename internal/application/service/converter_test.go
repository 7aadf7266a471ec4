package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinbook/internal/domain"
)

func TestConverterRoundTrip(t *testing.T) {
	oracle := newMockOracle(map[string]string{"BTC-ETH": "0.0523", "BTC-DOGE": "0.0000019"})
	conv := NewUnitConverter(oracle, "btc", time.Second)
	ctx := context.Background()

	for _, other := range []string{"ETH", "DOGE"} {
		for _, amount := range []string{"1", "0.5", "123.456789", "0.00000001"} {
			in := dec(amount)
			out, err := conv.Convert(ctx, in, "BTC", other)
			require.NoError(t, err)
			back, err := conv.Convert(ctx, out, other, "BTC")
			require.NoError(t, err)
			requireDecimal(t, in, back)
		}
	}
}

func TestConverterDirection(t *testing.T) {
	conv := NewUnitConverter(newMockOracle(map[string]string{"BTC-ETH": "0.05"}), "BTC", 0)
	ctx := context.Background()

	toBase, err := conv.Convert(ctx, dec("2"), "ETH", "BTC")
	require.NoError(t, err)
	assert.True(t, dec("0.1").Equal(toBase), toBase.String())

	fromBase, err := conv.Convert(ctx, dec("0.1"), "btc", "eth")
	require.NoError(t, err)
	assert.True(t, dec("2").Equal(fromBase), fromBase.String())
}

func TestConverterRejectsNonBaseLegs(t *testing.T) {
	oracle := newMockOracle(map[string]string{"BTC-ETH": "0.05", "BTC-SOL": "0.002"})
	conv := NewUnitConverter(oracle, "BTC", 0)
	ctx := context.Background()

	for _, tc := range [][2]string{{"ETH", "SOL"}, {"SOL", "ETH"}, {"BTC", "BTC"}, {"", "BTC"}, {"ETH", ""}} {
		_, err := conv.Convert(ctx, dec("1"), tc[0], tc[1])
		assert.ErrorIs(t, err, domain.ErrInvalidConversion, "%s -> %s", tc[0], tc[1])
	}
	assert.Zero(t, oracle.calls, "oracle must not be consulted")
}

func TestConverterRateFailures(t *testing.T) {
	oracle := newMockOracle(map[string]string{"BTC-ZERO": "0", "BTC-NEG": "-1"})
	oracle.errs["BTC-DOWN"] = errBoom
	conv := NewUnitConverter(oracle, "BTC", 0)
	ctx := context.Background()

	_, err := conv.ToBase(ctx, dec("1"), "MISSING")
	assert.ErrorIs(t, err, domain.ErrInvalidExchangeRate)

	_, err = conv.ToBase(ctx, dec("1"), "ZERO")
	assert.ErrorIs(t, err, domain.ErrInvalidExchangeRate)

	_, err = conv.ToBase(ctx, dec("1"), "NEG")
	assert.ErrorIs(t, err, domain.ErrInvalidExchangeRate)

	_, err = conv.ToBase(ctx, dec("1"), "DOWN")
	assert.ErrorIs(t, err, domain.ErrOracleFailure)
	assert.ErrorIs(t, err, errBoom)
}

func TestConverterTimeoutIsOracleFailure(t *testing.T) {
	oracle := newMockOracle(nil)
	oracle.block = true
	conv := NewUnitConverter(oracle, "BTC", 20*time.Millisecond)

	_, err := conv.Rate(context.Background(), "ETH")
	assert.ErrorIs(t, err, domain.ErrOracleFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConverterNoCaching(t *testing.T) {
	oracle := newMockOracle(map[string]string{"BTC-ETH": "0.05"})
	conv := NewUnitConverter(oracle, "BTC", 0)
	ctx := context.Background()

	v1, err := conv.ToBase(ctx, dec("1"), "ETH")
	require.NoError(t, err)
	oracle.set("BTC-ETH", "0.06")
	v2, err := conv.ToBase(ctx, dec("1"), "ETH")
	require.NoError(t, err)

	assert.False(t, v1.Equal(v2))
	assert.Equal(t, 2, oracle.calls)
}

func TestConverterDefaults(t *testing.T) {
	conv := NewUnitConverter(newMockOracle(nil), "", 0)
	assert.Equal(t, DefaultBaseCurrency, conv.Base())
	assert.Equal(t, "BTC-ETH", conv.Pair(" eth "))
}
