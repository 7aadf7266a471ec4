package port

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoRate is returned by a PriceOracle that has no rate for the pair.
var ErrNoRate = errors.New("no rate for pair")

// PriceOracle quotes the latest exchange rate of a "BASE-OTHER" pair: the price of
// one unit of OTHER expressed in BASE.
type PriceOracle interface {
	Rate(ctx context.Context, pair string) (decimal.Decimal, error)
}

type Tick struct {
	Exchange string // "BINANCE"
	Symbol   string // exchange symbol, "ETHBTC"
	Pair     string // ledger pair, "BTC-ETH"
	PriceStr string // raw string
	Ts       int64  // unix ms
}

type PriceFeed interface {
	Name() string
	Subscribe(ctx context.Context, pairs []string) (<-chan Tick, error)
}
