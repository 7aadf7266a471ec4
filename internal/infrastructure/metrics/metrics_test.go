package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinbook/internal/domain/model"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRecorder(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.TradeExecuted("alpha", "buy", "ETH", decimal.RequireFromString("0.1"))
	r.TradeExecuted("alpha", "buy", "ETH", decimal.RequireFromString("0.2"))
	r.OperationFailed("alpha", "sell", "oracle")
	r.BalanceObserved(&model.BalanceSheet{
		Namespace: "alpha",
		Funds:     decimal.RequireFromString("0.7"),
		Total:     decimal.RequireFromString("1.0"),
		Positions: []model.ValuedPosition{{}, {}},
	})
	start := time.Now()
	r.CycleCompleted(&model.CycleReport{
		Namespace: "alpha",
		Kind:      model.CycleCoins,
		StartedAt: start,
		EndedAt:   start.Add(time.Second),
		Failures:  []model.CycleFailure{{Stage: model.StageQuote}, {Stage: model.StageQuote}},
	})

	out := scrape(t, r)
	for _, line := range []string{
		`coinbook_trades_total{currency="ETH",namespace="alpha",side="buy"} 2`,
		`coinbook_trade_value_base_count{namespace="alpha",side="buy"} 2`,
		`coinbook_errors_total{kind="oracle",namespace="alpha",op="sell"} 1`,
		`coinbook_funds_base{namespace="alpha"} 0.7`,
		`coinbook_total_balance_base{namespace="alpha"} 1`,
		`coinbook_open_positions{namespace="alpha"} 2`,
		`coinbook_cycles_total{kind="coins",namespace="alpha"} 1`,
		`coinbook_cycle_failures_total{kind="coins",namespace="alpha",stage="quote"} 2`,
		`coinbook_cycle_duration_seconds_sum{kind="coins",namespace="alpha"} 1`,
	} {
		assert.Contains(t, out, line)
	}
}

func TestHandlerFreshRegistry(t *testing.T) {
	r := New(nil)
	r.OperationFailed("", "buy", "store")
	assert.Contains(t, scrape(t, r), `coinbook_errors_total{kind="store",namespace="",op="buy"} 1`)
}
