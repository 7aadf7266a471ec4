package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValuedPosition is an open position with its value in base currency.
type ValuedPosition struct {
	Position
	Value decimal.Decimal `json:"value"`
}

// BalanceSheet is the valuation of one namespace at a point in time.
type BalanceSheet struct {
	Namespace string           `json:"namespace"`
	Base      string           `json:"base"`
	Funds     decimal.Decimal  `json:"funds"`
	Positions []ValuedPosition `json:"positions"`
	Total     decimal.Decimal  `json:"total"`
	At        time.Time        `json:"at"`
}

// CycleKind names the pass that produced a CycleReport.
type CycleKind string

const (
	CycleCoins     CycleKind = "coins"
	CyclePositions CycleKind = "positions"
)

// Cycle stages at which an item can fail.
const (
	StageQuote    = "quote"
	StageEvaluate = "evaluate"
	StageBuy      = "buy"
	StageSell     = "sell"
)

// CycleFailure is one item of a cycle that did not complete.
type CycleFailure struct {
	Item  string `json:"item"` // coin or position id
	Stage string `json:"stage"`
	Kind  string `json:"kind"`
	Err   error  `json:"-"`
}

// CycleReport is the outcome of RunCycle or ReviewPositions.
type CycleReport struct {
	ID        string         `json:"id"`
	Namespace string         `json:"namespace"`
	Kind      CycleKind      `json:"kind"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Evaluated int            `json:"evaluated"`
	Opened    []Position     `json:"opened,omitempty"`
	Closed    []Position     `json:"closed,omitempty"`
	Failures  []CycleFailure `json:"failures,omitempty"`
	Canceled  bool           `json:"canceled"`
}

func (r *CycleReport) Fail(item, stage, kind string, err error) {
	r.Failures = append(r.Failures, CycleFailure{Item: item, Stage: stage, Kind: kind, Err: err})
}
