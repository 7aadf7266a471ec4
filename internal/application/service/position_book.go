package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"coinbook/internal/application/port"
	"coinbook/internal/domain"
	"coinbook/internal/domain/model"
)

// PositionBook stores the open positions of each namespace.
type PositionBook struct {
	store guardedStore
	now   func() time.Time
}

func NewPositionBook(store port.RecordStore, timeout time.Duration, now func() time.Time) *PositionBook {
	if now == nil {
		now = time.Now
	}
	return &PositionBook{store: guardedStore{store: store, timeout: timeout}, now: now}
}

// List returns the ids of open positions. Positions opened or closed while the scan
// runs may or may not be included.
func (b *PositionBook) List(ctx context.Context, namespace string) ([]string, error) {
	ks := domain.NewKeyspace(namespace)
	keys, err := b.store.keys(ctx, ks.PositionPrefix())
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := ks.PositionID(k); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Open persists a new position opened now. An existing record under the derived id
// is never overwritten.
func (b *PositionBook) Open(ctx context.Context, namespace, currency string, amount decimal.Decimal, extra model.Extra) (model.Position, error) {
	ts := b.now().UTC().Format(model.TimestampLayout)
	pos := model.Position{
		ID:            model.NewPositionID(currency, ts),
		Currency:      normalizeCurrency(currency),
		Amount:        amount,
		OpenTimestamp: ts,
		Extra:         extra,
	}

	raw, err := encodePosition(pos)
	if err != nil {
		return model.Position{}, fmt.Errorf("encode position: %w", err)
	}

	key := domain.NewKeyspace(namespace).Position(pos.ID)
	created, err := b.store.setIfAbsent(ctx, key, raw)
	if err != nil {
		return model.Position{}, err
	}
	if !created {
		return model.Position{}, fmt.Errorf("%w: %s", domain.ErrPositionIDCollision, key)
	}
	return pos, nil
}

// Get reads an open position.
func (b *PositionBook) Get(ctx context.Context, namespace, id string) (model.Position, error) {
	if !model.ValidPositionID(id) {
		return model.Position{}, fmt.Errorf("%w: %q", domain.ErrPositionNotFound, id)
	}
	key := domain.NewKeyspace(namespace).Position(id)
	raw, err := b.store.get(ctx, key)
	if err != nil {
		return model.Position{}, notFound(key, err)
	}
	pos, err := decodePosition(raw)
	if err != nil {
		return model.Position{}, fmt.Errorf("%w: %s: %w", domain.ErrStoreFailure, key, err)
	}
	return pos, nil
}

// Close removes a position in a single atomic step and returns its last record.
func (b *PositionBook) Close(ctx context.Context, namespace, id string) (model.Position, error) {
	if !model.ValidPositionID(id) {
		return model.Position{}, fmt.Errorf("%w: %q", domain.ErrPositionNotFound, id)
	}
	key := domain.NewKeyspace(namespace).Position(id)
	raw, err := b.store.getDelete(ctx, key)
	if err != nil {
		return model.Position{}, notFound(key, err)
	}
	pos, err := decodePosition(raw)
	if err != nil {
		// The record is gone; keep the id so the loss can be reconciled.
		return model.Position{ID: id}, fmt.Errorf("%w: %s: %w", domain.ErrStoreFailure, key, err)
	}
	return pos, nil
}

// Positions reads every open position, skipping those closed since listing.
func (b *PositionBook) Positions(ctx context.Context, namespace string) ([]model.Position, error) {
	ids, err := b.List(ctx, namespace)
	if err != nil {
		return nil, err
	}

	out := make([]model.Position, 0, len(ids))
	for _, id := range ids {
		pos, err := b.Get(ctx, namespace, id)
		if errors.Is(err, domain.ErrPositionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

func notFound(key string, err error) error {
	if errors.Is(err, port.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrPositionNotFound, key)
	}
	return err
}
