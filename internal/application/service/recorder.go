package service

import (
	"github.com/shopspring/decimal"

	"coinbook/internal/domain/model"
)

// Recorder receives ledger events for metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	TradeExecuted(namespace, side, currency string, baseValue decimal.Decimal)
	OperationFailed(namespace, op, kind string)
	BalanceObserved(sheet *model.BalanceSheet)
	CycleCompleted(report *model.CycleReport)
}

type nopRecorder struct{}

func (nopRecorder) TradeExecuted(string, string, string, decimal.Decimal) {}
func (nopRecorder) OperationFailed(string, string, string)                {}
func (nopRecorder) BalanceObserved(*model.BalanceSheet)                   {}
func (nopRecorder) CycleCompleted(*model.CycleReport)                     {}

// MultiRecorder fans events out to several recorders.
type MultiRecorder []Recorder

func (m MultiRecorder) TradeExecuted(namespace, side, currency string, baseValue decimal.Decimal) {
	for _, r := range m {
		r.TradeExecuted(namespace, side, currency, baseValue)
	}
}

func (m MultiRecorder) OperationFailed(namespace, op, kind string) {
	for _, r := range m {
		r.OperationFailed(namespace, op, kind)
	}
}

func (m MultiRecorder) BalanceObserved(sheet *model.BalanceSheet) {
	for _, r := range m {
		r.BalanceObserved(sheet)
	}
}

func (m MultiRecorder) CycleCompleted(report *model.CycleReport) {
	for _, r := range m {
		r.CycleCompleted(report)
	}
}
