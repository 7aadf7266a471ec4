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

// maxCASAttempts bounds the optimistic retry loop of Adjust.
const maxCASAttempts = 16

// FundsLedger keeps the cash balance of each namespace, in base currency.
type FundsLedger struct {
	store guardedStore
	base  string
}

func NewFundsLedger(store port.RecordStore, base string, timeout time.Duration) *FundsLedger {
	base = normalizeCurrency(base)
	if base == "" {
		base = DefaultBaseCurrency
	}
	return &FundsLedger{store: guardedStore{store: store, timeout: timeout}, base: base}
}

// Exists reports whether a funds record is present for namespace, well-formed or not.
func (l *FundsLedger) Exists(ctx context.Context, namespace string) (bool, error) {
	_, err := l.store.get(ctx, domain.NewKeyspace(namespace).Funds())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, port.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (l *FundsLedger) read(ctx context.Context, key string) (model.Funds, []byte, error) {
	raw, err := l.store.get(ctx, key)
	if err != nil {
		if errors.Is(err, port.ErrKeyNotFound) {
			return model.Funds{}, nil, fmt.Errorf("%w: %s missing", domain.ErrUninitializedFunds, key)
		}
		return model.Funds{}, nil, err
	}
	f, err := decodeFunds(raw, l.base)
	if err != nil {
		return model.Funds{}, nil, fmt.Errorf("%w: %s: %w", domain.ErrUninitializedFunds, key, err)
	}
	return f, raw, nil
}

// Get returns the funds balance of namespace.
func (l *FundsLedger) Get(ctx context.Context, namespace string) (decimal.Decimal, error) {
	f, _, err := l.read(ctx, domain.NewKeyspace(namespace).Funds())
	if err != nil {
		return decimal.Zero, err
	}
	return f.Amount, nil
}

// Set overwrites the funds record. The amount is not validated.
func (l *FundsLedger) Set(ctx context.Context, namespace string, amount decimal.Decimal) error {
	b, err := encodeFunds(model.Funds{Amount: amount, Unit: l.base})
	if err != nil {
		return err
	}
	return l.store.set(ctx, domain.NewKeyspace(namespace).Funds(), b)
}

// Adjust adds delta to the balance with compare-and-swap and returns the new balance.
func (l *FundsLedger) Adjust(ctx context.Context, namespace string, delta decimal.Decimal) (decimal.Decimal, error) {
	key := domain.NewKeyspace(namespace).Funds()

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		f, raw, err := l.read(ctx, key)
		if err != nil {
			return decimal.Zero, err
		}

		next := f.Amount.Add(delta)
		b, err := encodeFunds(model.Funds{Amount: next, Unit: l.base})
		if err != nil {
			return decimal.Zero, err
		}

		swapped, err := l.store.compareAndSwap(ctx, key, raw, b)
		if err != nil {
			return decimal.Zero, err
		}
		if swapped {
			return next, nil
		}

		log.Debug().
			Str("namespace", namespace).
			Int("attempt", attempt).
			Msg("funds changed concurrently, retrying")
	}
	return decimal.Zero, fmt.Errorf("%w: %s: compare-and-swap lost %d times", domain.ErrStoreFailure, key, maxCASAttempts)
}
