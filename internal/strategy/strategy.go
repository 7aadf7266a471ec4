// Package strategy holds the StrategyHook implementations shipped with coinbook.
package strategy

import (
	"context"
	"errors"
	"time"

	"coinbook/internal/application/port"
	"coinbook/internal/domain/model"

	"github.com/shopspring/decimal"
)

const (
	NameNoop  = "noop"
	NameFixed = "fixed"
)

// Noop never trades.
type Noop struct{}

func (Noop) EvaluateCoin(context.Context, model.CoinSummary) (*model.TradeDirective, error) {
	return nil, nil
}

func (Noop) EvaluatePosition(context.Context, model.Position) (*model.CloseDecision, error) {
	return nil, nil
}

// FixedAllocation buys Budget worth of base currency of every coin it is shown and
// closes positions once they are older than Hold.
type FixedAllocation struct {
	Budget decimal.Decimal
	Hold   time.Duration
	Now    func() time.Time
}

func NewFixedAllocation(budget decimal.Decimal, hold time.Duration) (*FixedAllocation, error) {
	if !budget.IsPositive() {
		return nil, errors.New("strategy: budget must be positive")
	}
	return &FixedAllocation{Budget: budget, Hold: hold, Now: time.Now}, nil
}

func (f *FixedAllocation) EvaluateCoin(_ context.Context, coin model.CoinSummary) (*model.TradeDirective, error) {
	if !coin.Last.IsPositive() {
		return nil, nil
	}
	return &model.TradeDirective{
		Currency: coin.Currency,
		Amount:   f.Budget.DivRound(coin.Last, 8),
		Extra: model.Extra{
			"strategy":   NameFixed,
			"entry_rate": coin.Last.String(),
		},
	}, nil
}

func (f *FixedAllocation) EvaluatePosition(_ context.Context, pos model.Position) (*model.CloseDecision, error) {
	if f.Hold <= 0 {
		return nil, nil
	}
	opened, err := pos.OpenedAt()
	if err != nil {
		return nil, err
	}
	if f.Now().Sub(opened) < f.Hold {
		return nil, nil
	}
	return &model.CloseDecision{Close: true, Reason: "hold period elapsed"}, nil
}

var (
	_ port.StrategyHook = Noop{}
	_ port.StrategyHook = (*FixedAllocation)(nil)
)
