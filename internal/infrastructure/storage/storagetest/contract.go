// Package storagetest checks RecordStore implementations against the behaviour the
// ledger relies on.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinbook/internal/application/port"
)

// Run exercises store. The store must start empty.
func Run(t *testing.T, store port.RecordStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "ct-missing")
		assert.ErrorIs(t, err, port.ErrKeyNotFound)
		_, err = store.GetDelete(ctx, "ct-missing")
		assert.ErrorIs(t, err, port.ErrKeyNotFound)
		assert.NoError(t, store.Delete(ctx, "ct-missing"))
	})

	t.Run("set get overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "ct-a", []byte(`{"v":1}`)))
		got, err := store.Get(ctx, "ct-a")
		require.NoError(t, err)
		assert.Equal(t, `{"v":1}`, string(got))

		require.NoError(t, store.Set(ctx, "ct-a", []byte(`{"v":2}`)))
		got, err = store.Get(ctx, "ct-a")
		require.NoError(t, err)
		assert.Equal(t, `{"v":2}`, string(got))
	})

	t.Run("set if absent", func(t *testing.T) {
		ok, err := store.SetIfAbsent(ctx, "ct-once", []byte("first"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.SetIfAbsent(ctx, "ct-once", []byte("second"))
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := store.Get(ctx, "ct-once")
		require.NoError(t, err)
		assert.Equal(t, "first", string(got))
	})

	t.Run("get delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "ct-gone", []byte("bye")))
		got, err := store.GetDelete(ctx, "ct-gone")
		require.NoError(t, err)
		assert.Equal(t, "bye", string(got))

		_, err = store.Get(ctx, "ct-gone")
		assert.ErrorIs(t, err, port.ErrKeyNotFound)
	})

	t.Run("compare and swap", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "ct-cas", []byte("v1")))

		ok, err := store.CompareAndSwap(ctx, "ct-cas", []byte("stale"), []byte("v2"))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.CompareAndSwap(ctx, "ct-cas", []byte("v1"), []byte("v2"))
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := store.Get(ctx, "ct-cas")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))

		ok, err = store.CompareAndSwap(ctx, "ct-cas-missing", []byte("v1"), []byte("v2"))
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = store.Get(ctx, "ct-cas-missing")
		assert.ErrorIs(t, err, port.ErrKeyNotFound)
	})

	t.Run("keys by prefix", func(t *testing.T) {
		for _, k := range []string{"ct-p-funds", "ct-p-position-1", "ct-p-position-2", "ct-px-funds", "ct-q*-funds"} {
			require.NoError(t, store.Set(ctx, k, []byte("x")))
		}

		keys, err := store.Keys(ctx, "ct-p-")
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"ct-p-funds", "ct-p-position-1", "ct-p-position-2"}, keys)

		keys, err = store.Keys(ctx, "ct-p-position-")
		require.NoError(t, err)
		assert.Len(t, keys, 2)

		// glob characters in the prefix are literal
		keys, err = store.Keys(ctx, "ct-q*")
		require.NoError(t, err)
		assert.Equal(t, []string{"ct-q*-funds"}, keys)

		keys, err = store.Keys(ctx, "ct-none-")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("concurrent increments", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "ct-counter", []byte("0")))

		const workers, perWorker = 4, 10
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					for {
						cur, err := store.Get(ctx, "ct-counter")
						if err != nil {
							t.Error(err)
							return
						}
						var n int
						_, _ = fmt.Sscanf(string(cur), "%d", &n)
						ok, err := store.CompareAndSwap(ctx, "ct-counter", cur, []byte(fmt.Sprint(n+1)))
						if err != nil {
							t.Error(err)
							return
						}
						if ok {
							break
						}
					}
				}
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, "ct-counter")
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(workers*perWorker), string(got))
	})
}
