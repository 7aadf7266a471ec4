package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coinbook/internal/application/port"
	"coinbook/internal/domain"
)

// guardedStore bounds every RecordStore call with a timeout and maps failures onto
// domain.ErrStoreFailure. ErrKeyNotFound is passed through unchanged.
type guardedStore struct {
	store   port.RecordStore
	timeout time.Duration
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func storeErr(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", domain.ErrStoreFailure, op, key, err)
}

func (g guardedStore) get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	b, err := g.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, port.ErrKeyNotFound) {
			return nil, err
		}
		return nil, storeErr("get", key, err)
	}
	return b, nil
}

func (g guardedStore) set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.store.Set(ctx, key, value); err != nil {
		return storeErr("set", key, err)
	}
	return nil
}

func (g guardedStore) setIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	ok, err := g.store.SetIfAbsent(ctx, key, value)
	if err != nil {
		return false, storeErr("setnx", key, err)
	}
	return ok, nil
}

func (g guardedStore) getDelete(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	b, err := g.store.GetDelete(ctx, key)
	if err != nil {
		if errors.Is(err, port.ErrKeyNotFound) {
			return nil, err
		}
		return nil, storeErr("getdel", key, err)
	}
	return b, nil
}

func (g guardedStore) compareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	ok, err := g.store.CompareAndSwap(ctx, key, prev, next)
	if err != nil {
		return false, storeErr("cas", key, err)
	}
	return ok, nil
}

func (g guardedStore) delete(ctx context.Context, key string) error {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.store.Delete(ctx, key); err != nil {
		return storeErr("delete", key, err)
	}
	return nil
}

func (g guardedStore) keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	keys, err := g.store.Keys(ctx, prefix)
	if err != nil {
		return nil, storeErr("keys", prefix+"*", err)
	}
	return keys, nil
}
