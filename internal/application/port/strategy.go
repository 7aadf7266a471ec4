package port

import (
	"context"

	"coinbook/internal/domain/model"
)

// StrategyHook supplies trading decisions. A nil result means "do nothing".
type StrategyHook interface {
	EvaluateCoin(ctx context.Context, coin model.CoinSummary) (*model.TradeDirective, error)
	EvaluatePosition(ctx context.Context, pos model.Position) (*model.CloseDecision, error)
}
