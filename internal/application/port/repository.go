package port

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by RecordStore reads of an absent key.
var ErrKeyNotFound = errors.New("key not found")

// RecordStore is a durable key-value store. Every method is atomic with respect to
// the single key it touches.
type RecordStore interface {
	// Get returns the value of key or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value unconditionally.
	Set(ctx context.Context, key string, value []byte) error

	// SetIfAbsent writes value only if key does not exist. Reports whether it wrote.
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)

	// GetDelete reads and removes key in one step, or returns ErrKeyNotFound.
	GetDelete(ctx context.Context, key string) ([]byte, error)

	// CompareAndSwap replaces the value of key with next only if it currently equals
	// prev. Reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists keys starting with prefix. Keys written or removed during the scan
	// may or may not be reported.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Connection management
	Close() error
}
