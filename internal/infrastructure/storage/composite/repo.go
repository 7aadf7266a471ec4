package composite

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"coinbook/internal/application/port"
)

// Repo serves every read and atomic decision from a primary store and replays the
// resulting writes onto mirror stores. Mirror failures are logged, never returned.
type Repo struct {
	primary port.RecordStore
	mirrors []port.RecordStore
}

func New(primary port.RecordStore, mirrors ...port.RecordStore) *Repo {
	// nil mirrors are dropped
	out := make([]port.RecordStore, 0, len(mirrors))
	for _, m := range mirrors {
		if m != nil {
			out = append(out, m)
		}
	}
	return &Repo{primary: primary, mirrors: out}
}

func (r *Repo) mirrorSet(ctx context.Context, key string, value []byte) {
	for i, m := range r.mirrors {
		if err := m.Set(ctx, key, value); err != nil {
			log.Warn().Err(err).Int("mirror", i).Str("key", key).Msg("mirror set failed")
		}
	}
}

func (r *Repo) mirrorDelete(ctx context.Context, key string) {
	for i, m := range r.mirrors {
		if err := m.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Int("mirror", i).Str("key", key).Msg("mirror delete failed")
		}
	}
}

func (r *Repo) Get(ctx context.Context, key string) ([]byte, error) {
	return r.primary.Get(ctx, key)
}

func (r *Repo) Set(ctx context.Context, key string, value []byte) error {
	if err := r.primary.Set(ctx, key, value); err != nil {
		return err
	}
	r.mirrorSet(ctx, key, value)
	return nil
}

func (r *Repo) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := r.primary.SetIfAbsent(ctx, key, value)
	if err != nil || !ok {
		return ok, err
	}
	r.mirrorSet(ctx, key, value)
	return true, nil
}

func (r *Repo) GetDelete(ctx context.Context, key string) ([]byte, error) {
	v, err := r.primary.GetDelete(ctx, key)
	if err != nil {
		return nil, err
	}
	r.mirrorDelete(ctx, key)
	return v, nil
}

func (r *Repo) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	ok, err := r.primary.CompareAndSwap(ctx, key, prev, next)
	if err != nil || !ok {
		return ok, err
	}
	r.mirrorSet(ctx, key, next)
	return true, nil
}

func (r *Repo) Delete(ctx context.Context, key string) error {
	if err := r.primary.Delete(ctx, key); err != nil {
		return err
	}
	r.mirrorDelete(ctx, key)
	return nil
}

func (r *Repo) Keys(ctx context.Context, prefix string) ([]string, error) {
	return r.primary.Keys(ctx, prefix)
}

// Close closes the primary and every mirror.
func (r *Repo) Close() error {
	var errs []error
	if err := r.primary.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, m := range r.mirrors {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ port.RecordStore = (*Repo)(nil)
