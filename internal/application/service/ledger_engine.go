package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"coinbook/internal/application/port"
	"coinbook/internal/domain"
	"coinbook/internal/domain/model"
)

// OverdraftPolicy decides whether a buy may push funds below zero.
type OverdraftPolicy string

const (
	OverdraftAllow  OverdraftPolicy = "allow"
	OverdraftReject OverdraftPolicy = "reject"
)

var (
	ErrNoStore    = errors.New("record store is required")
	ErrNoOracle   = errors.New("price oracle is required")
	ErrNoStrategy = errors.New("strategy hook is required")
)

type EngineDeps struct {
	Store        port.RecordStore
	Oracle       port.PriceOracle
	Strategy     port.StrategyHook // optional; required by RunCycle and ReviewPositions
	BaseCurrency string
	Timeout      time.Duration // per store/oracle call; zero means none
	Overdraft    OverdraftPolicy
	Recorder     Recorder
	Now          func() time.Time
}

// LedgerEngine executes trades against the funds ledger and position book and values
// namespaces. It keeps no state between calls besides its collaborators.
type LedgerEngine struct {
	store     guardedStore
	funds     *FundsLedger
	book      *PositionBook
	conv      *UnitConverter
	strategy  port.StrategyHook
	overdraft OverdraftPolicy
	rec       Recorder
	now       func() time.Time
}

func NewLedgerEngine(deps EngineDeps) (*LedgerEngine, error) {
	if deps.Store == nil {
		return nil, ErrNoStore
	}
	if deps.Oracle == nil {
		return nil, ErrNoOracle
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	switch deps.Overdraft {
	case OverdraftAllow, OverdraftReject:
	case "":
		deps.Overdraft = OverdraftAllow
	default:
		return nil, fmt.Errorf("unknown overdraft policy %q", deps.Overdraft)
	}

	conv := NewUnitConverter(deps.Oracle, deps.BaseCurrency, deps.Timeout)
	return &LedgerEngine{
		store:     guardedStore{store: deps.Store, timeout: deps.Timeout},
		funds:     NewFundsLedger(deps.Store, conv.Base(), deps.Timeout),
		book:      NewPositionBook(deps.Store, deps.Timeout, deps.Now),
		conv:      conv,
		strategy:  deps.Strategy,
		overdraft: deps.Overdraft,
		rec:       deps.Recorder,
		now:       deps.Now,
	}, nil
}

func (e *LedgerEngine) Funds() *FundsLedger        { return e.funds }
func (e *LedgerEngine) Book() *PositionBook        { return e.book }
func (e *LedgerEngine) Converter() *UnitConverter  { return e.conv }
func (e *LedgerEngine) Base() string               { return e.conv.Base() }
func (e *LedgerEngine) Overdraft() OverdraftPolicy { return e.overdraft }

// InitOptions control Initialize.
type InitOptions struct {
	InitialFunds *decimal.Decimal
	ResetFunds   bool // wipe the namespace and re-seed funds
}

// Initialize makes sure namespace has a funds record. An existing record is kept
// unless ResetFunds is set; otherwise InitialFunds is required.
func (e *LedgerEngine) Initialize(ctx context.Context, namespace string, opts InitOptions) error {
	exists, err := e.funds.Exists(ctx, namespace)
	if err != nil {
		return err
	}
	if exists && !opts.ResetFunds {
		return nil
	}
	if opts.InitialFunds == nil {
		return fmt.Errorf("%w: namespace %q", domain.ErrMissingInitialFunds, namespace)
	}
	if opts.ResetFunds {
		return e.ResetNamespace(ctx, namespace, *opts.InitialFunds)
	}

	if err := e.funds.Set(ctx, namespace, *opts.InitialFunds); err != nil {
		return err
	}
	log.Info().
		Str("namespace", namespace).
		Str("funds", opts.InitialFunds.String()).
		Str("unit", e.Base()).
		Msg("funds initialized")
	return nil
}

// ResetNamespace deletes every funds and position key of namespace, then seeds funds
// with initial.
func (e *LedgerEngine) ResetNamespace(ctx context.Context, namespace string, initial decimal.Decimal) error {
	ks := domain.NewKeyspace(namespace)
	keys, err := e.store.keys(ctx, ks.ScanPrefix())
	if err != nil {
		e.rec.OperationFailed(namespace, "reset", domain.Kind(err))
		return err
	}

	deleted := 0
	for _, k := range keys {
		if !ks.Owns(k) {
			continue
		}
		if err := e.store.delete(ctx, k); err != nil {
			e.rec.OperationFailed(namespace, "reset", domain.Kind(err))
			return err
		}
		deleted++
	}

	if err := e.funds.Set(ctx, namespace, initial); err != nil {
		e.rec.OperationFailed(namespace, "reset", domain.Kind(err))
		return err
	}

	log.Warn().
		Str("namespace", namespace).
		Int("deleted_keys", deleted).
		Str("funds", initial.String()).
		Msg("namespace reset")
	return nil
}

func (e *LedgerEngine) validateTrade(currency string, amount decimal.Decimal) error {
	if currency == "" {
		return fmt.Errorf("%w: empty currency", domain.ErrInvalidTrade)
	}
	if currency == e.Base() {
		return fmt.Errorf("%w: cannot buy base currency %s", domain.ErrInvalidTrade, currency)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount %s", domain.ErrInvalidTrade, amount)
	}
	return nil
}

// ExecuteBuy opens a position for trade, then debits its base value from funds.
// The position is written first: a failure afterwards leaves an unbacked position,
// reported as *domain.PartialBuyError. Once started, the buy is not interrupted by
// ctx cancellation; each external call is still bounded by the engine timeout.
func (e *LedgerEngine) ExecuteBuy(ctx context.Context, namespace string, trade model.TradeDirective) (model.Position, error) {
	currency := normalizeCurrency(trade.Currency)
	if err := e.validateTrade(currency, trade.Amount); err != nil {
		e.rec.OperationFailed(namespace, "buy", domain.Kind(err))
		return model.Position{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Position{}, err
	}
	ctx = context.WithoutCancel(ctx)

	if e.overdraft == OverdraftReject {
		if err := e.checkAffordable(ctx, namespace, currency, trade.Amount); err != nil {
			e.rec.OperationFailed(namespace, "buy", domain.Kind(err))
			return model.Position{}, err
		}
	}

	pos, err := e.book.Open(ctx, namespace, currency, trade.Amount, trade.Extra)
	if err != nil {
		e.rec.OperationFailed(namespace, "buy", domain.Kind(err))
		return model.Position{}, err
	}

	cost, err := e.conv.ToBase(ctx, trade.Amount, currency)
	if err != nil {
		return pos, e.partialBuy(namespace, pos, err)
	}

	balance, err := e.funds.Adjust(ctx, namespace, cost.Neg())
	if err != nil {
		return pos, e.partialBuy(namespace, pos, err)
	}

	log.Info().
		Str("namespace", namespace).
		Str("position_id", pos.ID).
		Str("currency", currency).
		Str("amount", trade.Amount.String()).
		Str("cost", cost.String()).
		Str("funds", balance.String()).
		Msg("buy executed")
	e.rec.TradeExecuted(namespace, "buy", currency, cost)
	return pos, nil
}

func (e *LedgerEngine) checkAffordable(ctx context.Context, namespace, currency string, amount decimal.Decimal) error {
	funds, err := e.funds.Get(ctx, namespace)
	if err != nil {
		return err
	}
	cost, err := e.conv.ToBase(ctx, amount, currency)
	if err != nil {
		return err
	}
	if funds.LessThan(cost) {
		return fmt.Errorf("%w: need %s %s, have %s", domain.ErrInsufficientFunds, cost, e.Base(), funds)
	}
	return nil
}

func (e *LedgerEngine) partialBuy(namespace string, pos model.Position, cause error) error {
	err := &domain.PartialBuyError{Namespace: namespace, PositionID: pos.ID, Err: cause}
	log.Error().
		Err(cause).
		Str("namespace", namespace).
		Str("position_id", pos.ID).
		Str("currency", pos.Currency).
		Str("amount", pos.Amount.String()).
		Msg("buy left an unbacked position, manual reconciliation required")
	e.rec.OperationFailed(namespace, "buy", domain.Kind(err))
	return err
}

// ExecuteSell closes position id and credits its base value to funds. A failure after
// the close loses the proceeds and is reported as *domain.PartialSellError carrying the
// removed position. Like ExecuteBuy, a started sell ignores ctx cancellation.
func (e *LedgerEngine) ExecuteSell(ctx context.Context, namespace, id string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	ctx = context.WithoutCancel(ctx)

	pos, err := e.book.Close(ctx, namespace, id)
	if err != nil {
		if pos.ID != "" {
			return decimal.Zero, e.partialSell(namespace, pos, err)
		}
		e.rec.OperationFailed(namespace, "sell", domain.Kind(err))
		return decimal.Zero, err
	}

	proceeds, err := e.conv.ToBase(ctx, pos.Amount, pos.Currency)
	if err != nil {
		return decimal.Zero, e.partialSell(namespace, pos, err)
	}

	balance, err := e.funds.Adjust(ctx, namespace, proceeds)
	if err != nil {
		return decimal.Zero, e.partialSell(namespace, pos, err)
	}

	log.Info().
		Str("namespace", namespace).
		Str("position_id", pos.ID).
		Str("currency", pos.Currency).
		Str("amount", pos.Amount.String()).
		Str("proceeds", proceeds.String()).
		Str("funds", balance.String()).
		Msg("sell executed")
	e.rec.TradeExecuted(namespace, "sell", pos.Currency, proceeds)
	return proceeds, nil
}

func (e *LedgerEngine) partialSell(namespace string, pos model.Position, cause error) error {
	err := &domain.PartialSellError{Namespace: namespace, Position: pos, Err: cause}
	log.Error().
		Err(cause).
		Str("namespace", namespace).
		Str("position_id", pos.ID).
		Str("currency", pos.Currency).
		Str("amount", pos.Amount.String()).
		Str("opened", pos.OpenTimestamp).
		Msg("sell removed a position without crediting funds, manual reconciliation required")
	e.rec.OperationFailed(namespace, "sell", domain.Kind(err))
	return err
}

// BalanceSheet values funds and every open position in base currency. Any failure to
// value a position aborts the whole sheet.
func (e *LedgerEngine) BalanceSheet(ctx context.Context, namespace string) (*model.BalanceSheet, error) {
	funds, err := e.funds.Get(ctx, namespace)
	if err != nil {
		e.rec.OperationFailed(namespace, "balance", domain.Kind(err))
		return nil, err
	}

	positions, err := e.book.Positions(ctx, namespace)
	if err != nil {
		e.rec.OperationFailed(namespace, "balance", domain.Kind(err))
		return nil, err
	}

	sheet := &model.BalanceSheet{
		Namespace: namespace,
		Base:      e.Base(),
		Funds:     funds,
		Positions: make([]model.ValuedPosition, 0, len(positions)),
		Total:     funds,
		At:        e.now(),
	}
	for _, pos := range positions {
		value, err := e.conv.ToBase(ctx, pos.Amount, pos.Currency)
		if err != nil {
			e.rec.OperationFailed(namespace, "balance", domain.Kind(err))
			return nil, fmt.Errorf("value position %s: %w", pos.ID, err)
		}
		sheet.Positions = append(sheet.Positions, model.ValuedPosition{Position: pos, Value: value})
		sheet.Total = sheet.Total.Add(value)
	}

	e.rec.BalanceObserved(sheet)
	return sheet, nil
}

// TotalBalance is funds plus the base value of all open positions.
func (e *LedgerEngine) TotalBalance(ctx context.Context, namespace string) (decimal.Decimal, error) {
	sheet, err := e.BalanceSheet(ctx, namespace)
	if err != nil {
		return decimal.Zero, err
	}
	return sheet.Total, nil
}
