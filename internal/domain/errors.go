package domain

import (
	"errors"
	"fmt"

	"coinbook/internal/domain/model"
)

var (
	// ErrMissingInitialFunds is returned when a namespace has no funds record and no
	// initial amount was supplied.
	ErrMissingInitialFunds = errors.New("missing initial funds")
	// ErrUninitializedFunds is returned when the funds record is absent or malformed.
	ErrUninitializedFunds = errors.New("funds not initialized")
	// ErrInvalidConversion is returned for conversions that do not involve exactly one
	// base currency leg.
	ErrInvalidConversion = errors.New("invalid conversion")
	// ErrInvalidExchangeRate is returned when the oracle has no usable rate.
	ErrInvalidExchangeRate = errors.New("invalid exchange rate")
	ErrPositionNotFound    = errors.New("position not found")
	ErrPositionIDCollision = errors.New("position id collision")
	ErrPartialBuyFailure   = errors.New("partial buy failure")
	ErrPartialSellFailure  = errors.New("partial sell failure")
	ErrStoreFailure        = errors.New("store failure")
	ErrOracleFailure       = errors.New("oracle failure")
	ErrInvalidTrade        = errors.New("invalid trade")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)

// PartialBuyError reports a buy whose position was persisted but whose funds debit
// did not happen. The position must be reconciled by hand.
type PartialBuyError struct {
	Namespace  string
	PositionID string
	Err        error
}

func (e *PartialBuyError) Error() string {
	return fmt.Sprintf("partial buy in %q: position %s opened, funds not debited: %v", e.Namespace, e.PositionID, e.Err)
}

func (e *PartialBuyError) Unwrap() []error { return []error{ErrPartialBuyFailure, e.Err} }

// PartialSellError reports a sell whose position was removed but whose proceeds
// were never credited. Position holds the last known record.
type PartialSellError struct {
	Namespace string
	Position  model.Position
	Err       error
}

func (e *PartialSellError) Error() string {
	return fmt.Sprintf("partial sell in %q: position %s (%s %s) closed, funds not credited: %v",
		e.Namespace, e.Position.ID, e.Position.Amount, e.Position.Currency, e.Err)
}

func (e *PartialSellError) Unwrap() []error { return []error{ErrPartialSellFailure, e.Err} }

// Kind maps an error onto its taxonomy name, used for metrics labels and reports.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPartialBuyFailure):
		return "partial_buy"
	case errors.Is(err, ErrPartialSellFailure):
		return "partial_sell"
	case errors.Is(err, ErrMissingInitialFunds):
		return "missing_initial_funds"
	case errors.Is(err, ErrUninitializedFunds):
		return "uninitialized_funds"
	case errors.Is(err, ErrInvalidConversion):
		return "invalid_conversion"
	case errors.Is(err, ErrInvalidExchangeRate):
		return "invalid_exchange_rate"
	case errors.Is(err, ErrPositionNotFound):
		return "position_not_found"
	case errors.Is(err, ErrPositionIDCollision):
		return "position_id_collision"
	case errors.Is(err, ErrInvalidTrade):
		return "invalid_trade"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrStoreFailure):
		return "store"
	case errors.Is(err, ErrOracleFailure):
		return "oracle"
	default:
		return "other"
	}
}
