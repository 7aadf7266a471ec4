package service

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"coinbook/internal/domain"
	"coinbook/internal/domain/model"
)

const kindStrategy = "strategy"

func (e *LedgerEngine) newReport(namespace string, kind model.CycleKind) *model.CycleReport {
	started := e.now()
	return &model.CycleReport{
		ID:        ulid.MustNew(ulid.Timestamp(started), ulid.DefaultEntropy()).String(),
		Namespace: namespace,
		Kind:      kind,
		StartedAt: started,
	}
}

func (e *LedgerEngine) finish(report *model.CycleReport) {
	report.EndedAt = e.now()
	e.rec.CycleCompleted(report)

	log.Info().
		Str("cycle", report.ID).
		Str("namespace", report.Namespace).
		Str("kind", string(report.Kind)).
		Int("evaluated", report.Evaluated).
		Int("opened", len(report.Opened)).
		Int("closed", len(report.Closed)).
		Int("failures", len(report.Failures)).
		Bool("canceled", report.Canceled).
		Dur("took", report.EndedAt.Sub(report.StartedAt)).
		Msg("cycle finished")
}

// RunCycle asks the strategy to evaluate every coin and executes the buys it
// proposes. A failing coin is recorded in the report and the cycle moves on.
// Cancellation is honoured between coins: the partial report is returned together
// with ctx.Err().
func (e *LedgerEngine) RunCycle(ctx context.Context, namespace string, coins []model.CoinSummary) (*model.CycleReport, error) {
	if e.strategy == nil {
		return nil, ErrNoStrategy
	}
	report := e.newReport(namespace, model.CycleCoins)

	for _, coin := range coins {
		if err := ctx.Err(); err != nil {
			report.Canceled = true
			e.finish(report)
			return report, err
		}
		report.Evaluated++

		trade, err := e.strategy.EvaluateCoin(ctx, coin)
		if err != nil {
			log.Warn().Err(err).Str("namespace", namespace).Str("coin", coin.Currency).Msg("coin evaluation failed")
			report.Fail(coin.Currency, model.StageEvaluate, kindStrategy, err)
			continue
		}
		if trade == nil {
			continue
		}
		if trade.Currency == "" {
			trade.Currency = coin.Currency
		}

		pos, err := e.ExecuteBuy(ctx, namespace, *trade)
		if err != nil {
			log.Warn().Err(err).Str("namespace", namespace).Str("coin", coin.Currency).Msg("cycle buy failed")
			report.Fail(coin.Currency, model.StageBuy, domain.Kind(err), err)
			continue
		}
		report.Opened = append(report.Opened, pos)
	}

	e.finish(report)
	return report, nil
}

// ReviewPositions asks the strategy about every open position and sells those it
// wants closed. Per-position failures are collected like in RunCycle.
func (e *LedgerEngine) ReviewPositions(ctx context.Context, namespace string) (*model.CycleReport, error) {
	if e.strategy == nil {
		return nil, ErrNoStrategy
	}

	ids, err := e.book.List(ctx, namespace)
	if err != nil {
		return nil, err
	}
	report := e.newReport(namespace, model.CyclePositions)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			report.Canceled = true
			e.finish(report)
			return report, err
		}

		pos, err := e.book.Get(ctx, namespace, id)
		if errors.Is(err, domain.ErrPositionNotFound) {
			continue
		}
		if err != nil {
			report.Fail(id, model.StageEvaluate, domain.Kind(err), err)
			continue
		}
		report.Evaluated++

		decision, err := e.strategy.EvaluatePosition(ctx, pos)
		if err != nil {
			log.Warn().Err(err).Str("namespace", namespace).Str("position_id", id).Msg("position evaluation failed")
			report.Fail(id, model.StageEvaluate, kindStrategy, err)
			continue
		}
		if decision == nil || !decision.Close {
			continue
		}

		if _, err := e.ExecuteSell(ctx, namespace, id); err != nil {
			if errors.Is(err, domain.ErrPositionNotFound) {
				continue
			}
			log.Warn().Err(err).Str("namespace", namespace).Str("position_id", id).Msg("review sell failed")
			report.Fail(id, model.StageSell, domain.Kind(err), err)
			continue
		}
		log.Info().
			Str("namespace", namespace).
			Str("position_id", id).
			Str("reason", decision.Reason).
			Msg("position closed by strategy")
		report.Closed = append(report.Closed, pos)
	}

	e.finish(report)
	return report, nil
}
