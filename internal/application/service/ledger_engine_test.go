package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinbook/internal/domain"
	"coinbook/internal/domain/model"
	"coinbook/internal/infrastructure/storage"
)

func TestNewLedgerEngineValidation(t *testing.T) {
	store := storage.NewMemoryStore()
	oracle := newMockOracle(nil)

	_, err := NewLedgerEngine(EngineDeps{Oracle: oracle})
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = NewLedgerEngine(EngineDeps{Store: store})
	assert.ErrorIs(t, err, ErrNoOracle)

	_, err = NewLedgerEngine(EngineDeps{Store: store, Oracle: oracle, Overdraft: "sometimes"})
	assert.Error(t, err)

	e, err := NewLedgerEngine(EngineDeps{Store: store, Oracle: oracle})
	require.NoError(t, err)
	assert.Equal(t, "BTC", e.Base())
	assert.Equal(t, OverdraftAllow, e.Overdraft())
}

func TestInitialize(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()

	err := te.Initialize(ctx, "alpha", InitOptions{})
	assert.ErrorIs(t, err, domain.ErrMissingInitialFunds)

	te.seed(t, "alpha", "10")

	// existing record is kept and no amount is needed
	require.NoError(t, te.Initialize(ctx, "alpha", InitOptions{}))
	other := dec("99")
	require.NoError(t, te.Initialize(ctx, "alpha", InitOptions{InitialFunds: &other}))
	f, err := te.Funds().Get(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(f))

	// reset without an amount is refused
	err = te.Initialize(ctx, "alpha", InitOptions{ResetFunds: true})
	assert.ErrorIs(t, err, domain.ErrMissingInitialFunds)

	_, err = te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "ETH", Amount: dec("1")})
	require.NoError(t, err)

	require.NoError(t, te.Initialize(ctx, "alpha", InitOptions{InitialFunds: &other, ResetFunds: true}))
	f, err = te.Funds().Get(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, dec("99").Equal(f))
	ids, err := te.Book().List(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestInitializeZeroFunds(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	te.seed(t, "alpha", "0")

	f, err := te.Funds().Get(context.Background(), "alpha")
	require.NoError(t, err)
	assert.True(t, f.IsZero())
}

func TestBuyThenSell(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()
	te.seed(t, "alpha", "10")

	// BTC-ETH = 0.05: one ETH costs 0.05 BTC
	rate := dec("0.05")
	pos, err := te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "ETH", Amount: dec("2.0")})
	require.NoError(t, err)

	got, err := te.Book().Get(ctx, "alpha", pos.ID)
	require.NoError(t, err)
	assert.Equal(t, "ETH", got.Currency)
	assert.True(t, dec("2").Equal(got.Amount))

	funds, err := te.Funds().Get(ctx, "alpha")
	require.NoError(t, err)
	requireDecimal(t, dec("10").Sub(dec("2.0").Mul(rate)), funds)

	proceeds, err := te.ExecuteSell(ctx, "alpha", pos.ID)
	require.NoError(t, err)
	requireDecimal(t, dec("0.1"), proceeds)

	funds, err = te.Funds().Get(ctx, "alpha")
	require.NoError(t, err)
	requireDecimal(t, dec("10"), funds)

	_, err = te.Book().Get(ctx, "alpha", pos.ID)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	assert.Equal(t, []string{"buy:ETH", "sell:ETH"}, te.rec.trades)
}

func TestTotalBalanceInvariantUnderRoundTrip(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()
	te.seed(t, "alpha", "3")

	_, err := te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "SOL", Amount: dec("150")})
	require.NoError(t, err)

	before, err := te.TotalBalance(ctx, "alpha")
	require.NoError(t, err)

	pos, err := te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "ETH", Amount: dec("7.25")})
	require.NoError(t, err)
	mid, err := te.TotalBalance(ctx, "alpha")
	require.NoError(t, err)
	requireDecimal(t, before, mid)

	_, err = te.ExecuteSell(ctx, "alpha", pos.ID)
	require.NoError(t, err)
	after, err := te.TotalBalance(ctx, "alpha")
	require.NoError(t, err)
	requireDecimal(t, before, after)
	requireDecimal(t, dec("3"), after)
}

func TestBalanceSheet(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()
	te.seed(t, "alpha", "1")

	_, err := te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "ETH", Amount: dec("2")})
	require.NoError(t, err)
	te.oracle.set("BTC-ETH", "0.06")

	sheet, err := te.BalanceSheet(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "BTC", sheet.Base)
	requireDecimal(t, dec("0.9"), sheet.Funds)
	require.Len(t, sheet.Positions, 1)
	requireDecimal(t, dec("0.12"), sheet.Positions[0].Value)
	requireDecimal(t, dec("1.02"), sheet.Total)
	assert.Equal(t, 1, te.rec.balances)
}

func TestTotalBalanceAbortsOnMissingRate(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()
	te.seed(t, "alpha", "1")

	_, err := te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "ETH", Amount: dec("1")})
	require.NoError(t, err)
	_, err = te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "SOL", Amount: dec("1")})
	require.NoError(t, err)

	te.oracle.remove("BTC-SOL")
	_, err = te.TotalBalance(ctx, "alpha")
	assert.ErrorIs(t, err, domain.ErrInvalidExchangeRate)
}

func TestTotalBalanceUninitialized(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	_, err := te.TotalBalance(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrUninitializedFunds)
}

func TestResetNamespaceIdempotent(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()
	te.seed(t, "alpha", "5")

	for _, c := range []string{"ETH", "SOL", "XRP"} {
		_, err := te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: c, Amount: dec("1")})
		require.NoError(t, err)
	}

	require.NoError(t, te.ResetNamespace(ctx, "alpha", dec("10.0")))
	first, err := te.store.Keys(ctx, "")
	require.NoError(t, err)

	require.NoError(t, te.ResetNamespace(ctx, "alpha", dec("10.0")))
	second, err := te.store.Keys(ctx, "")
	require.NoError(t, err)

	ks := domain.NewKeyspace("alpha")
	assert.Equal(t, []string{ks.Funds()}, first)
	assert.Equal(t, first, second)

	raw, err := te.store.Get(ctx, ks.Funds())
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"10","unit":"BTC"}`, string(raw))

	ids, err := te.Book().List(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResetNamespaceLeavesOtherNamespaces(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()

	for _, ns := range []string{"a", "a-b", ""} {
		te.seed(t, ns, "1")
		_, err := te.ExecuteBuy(ctx, ns, model.TradeDirective{Currency: "ETH", Amount: dec("1")})
		require.NoError(t, err)
	}
	// an unrelated key under the namespace prefix survives too
	require.NoError(t, te.store.Set(ctx, "coinbook-a-notes", []byte("keep")))

	require.NoError(t, te.ResetNamespace(ctx, "a", dec("2")))

	for _, ns := range []string{"a-b", ""} {
		ids, err := te.Book().List(ctx, ns)
		require.NoError(t, err)
		assert.Len(t, ids, 1, "namespace %q", ns)
		f, err := te.Funds().Get(ctx, ns)
		require.NoError(t, err)
		requireDecimal(t, dec("0.95"), f)
	}
	ids, err := te.Book().List(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, ids)

	notes, err := te.store.Get(ctx, "coinbook-a-notes")
	require.NoError(t, err)
	assert.Equal(t, "keep", string(notes))
}

func TestResetNamespaceStoreFailure(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	te.store.fail("keys", errBoom)

	err := te.ResetNamespace(context.Background(), "alpha", dec("1"))
	assert.ErrorIs(t, err, domain.ErrStoreFailure)
	assert.Contains(t, te.rec.failures, "reset:store")
}

func TestSellUnknownPosition(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()
	te.seed(t, "alpha", "10")

	_, err := te.ExecuteSell(ctx, "alpha", "0123456789abcdef")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
	assert.NotErrorIs(t, err, domain.ErrPartialSellFailure)

	_, err = te.ExecuteSell(ctx, "alpha", "not-an-id")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	f, err := te.Funds().Get(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(f))
}

func TestBuyRejectsInvalidTrades(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()
	te.seed(t, "alpha", "10")

	for _, trade := range []model.TradeDirective{
		{Currency: "", Amount: dec("1")},
		{Currency: "btc", Amount: dec("1")},
		{Currency: "ETH", Amount: dec("0")},
		{Currency: "ETH", Amount: dec("-1")},
	} {
		_, err := te.ExecuteBuy(ctx, "alpha", trade)
		assert.ErrorIs(t, err, domain.ErrInvalidTrade, "%+v", trade)
	}

	ids, err := te.Book().List(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOverdraftPolicies(t *testing.T) {
	ctx := context.Background()
	big := model.TradeDirective{Currency: "ETH", Amount: dec("100")} // costs 5 BTC

	reject := newTestEngine(t, OverdraftReject)
	reject.seed(t, "alpha", "1")
	_, err := reject.ExecuteBuy(ctx, "alpha", big)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	ids, err := reject.Book().List(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, ids, "rejected buy must not open a position")

	_, err = reject.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "ETH", Amount: dec("20")})
	assert.NoError(t, err, "exact balance is affordable")

	allow := newTestEngine(t, OverdraftAllow)
	allow.seed(t, "alpha", "1")
	_, err = allow.ExecuteBuy(ctx, "alpha", big)
	require.NoError(t, err)
	f, err := allow.Funds().Get(ctx, "alpha")
	require.NoError(t, err)
	requireDecimal(t, dec("-4"), f)
}

func TestPartialBuy(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()
	te.seed(t, "alpha", "10")

	_, err := te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "DOGE", Amount: dec("1000")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPartialBuyFailure)
	assert.ErrorIs(t, err, domain.ErrInvalidExchangeRate)

	var pbe *domain.PartialBuyError
	require.True(t, errors.As(err, &pbe))
	assert.Equal(t, "alpha", pbe.Namespace)

	pos, err := te.Book().Get(ctx, "alpha", pbe.PositionID)
	require.NoError(t, err, "the unbacked position stays open")
	assert.Equal(t, "DOGE", pos.Currency)

	f, err := te.Funds().Get(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(f))
	assert.Contains(t, te.rec.failures, "buy:partial_buy")
}

func TestPartialBuyOnDebitFailure(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()
	te.seed(t, "alpha", "10")
	te.store.fail("cas", errBoom)

	_, err := te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "ETH", Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrPartialBuyFailure)
	assert.ErrorIs(t, err, domain.ErrStoreFailure)
}

func TestPartialSell(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	ctx := context.Background()
	te.seed(t, "alpha", "10")

	pos, err := te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "ETH", Amount: dec("2")})
	require.NoError(t, err)

	te.oracle.remove("BTC-ETH")
	_, err = te.ExecuteSell(ctx, "alpha", pos.ID)
	assert.ErrorIs(t, err, domain.ErrPartialSellFailure)
	assert.ErrorIs(t, err, domain.ErrInvalidExchangeRate)

	var pse *domain.PartialSellError
	require.True(t, errors.As(err, &pse))
	assert.Equal(t, pos.ID, pse.Position.ID)
	assert.Equal(t, "ETH", pse.Position.Currency)
	assert.True(t, dec("2").Equal(pse.Position.Amount))

	_, err = te.Book().Get(ctx, "alpha", pos.ID)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	f, err := te.Funds().Get(ctx, "alpha")
	require.NoError(t, err)
	requireDecimal(t, dec("9.9"), f)
}

func TestTradeHonoursCancellationBeforeStart(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	te.seed(t, "alpha", "10")
	pos, err := te.ExecuteBuy(context.Background(), "alpha", model.TradeDirective{Currency: "ETH", Amount: dec("1")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = te.ExecuteBuy(ctx, "alpha", model.TradeDirective{Currency: "SOL", Amount: dec("1")})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = te.ExecuteSell(ctx, "alpha", pos.ID)
	assert.ErrorIs(t, err, context.Canceled)

	ids, err := te.Book().List(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{pos.ID}, ids)
}

func TestStoreFailures(t *testing.T) {
	te := newTestEngine(t, OverdraftAllow)
	te.seed(t, "alpha", "10")

	te.store.fail("set", errBoom)
	// SetIfAbsent is not affected by the set failure
	_, err := te.ExecuteBuy(context.Background(), "alpha", model.TradeDirective{Currency: "ETH", Amount: dec("1")})
	assert.NoError(t, err)

	te.store.fail("get", errBoom)
	_, err = te.TotalBalance(context.Background(), "alpha")
	assert.ErrorIs(t, err, domain.ErrStoreFailure)
	assert.Equal(t, "store", domain.Kind(err))
}
