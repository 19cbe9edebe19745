// Package kvtest holds the behaviour every kv.Backend must share.
package kvtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmkol/sharedlru/pkg/kv"
)

// NewPair returns two backends scoped to the same namespace and one
// scoped to a different namespace, all on the same store.
type NewPair func(t *testing.T) (a, b, other kv.Backend)

func keys(kvs []kv.KV) []string {
	out := make([]string, 0, len(kvs))
	for _, p := range kvs {
		out = append(out, p.Key)
	}
	return out
}

// Run runs the conformance tests against the backends built by f.
func Run(t *testing.T, f NewPair) {
	ctx := context.Background()

	t.Run("set_get", func(t *testing.T) {
		a, _, _ := f(t)
		require.NoError(t, a.Set(ctx, "k", "v"))
		v, err := a.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "v", v)

		require.NoError(t, a.Set(ctx, "k", "v2"))
		v, err = a.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "v2", v)

		_, err = a.Get(ctx, "missing")
		require.ErrorIs(t, err, kv.ErrNotFound)
		require.NotErrorIs(t, err, kv.ErrUnavailable)
	})

	t.Run("remove_idempotent", func(t *testing.T) {
		a, _, _ := f(t)
		require.NoError(t, a.Set(ctx, "k", "v"))
		require.NoError(t, a.Remove(ctx, "k"))
		require.NoError(t, a.Remove(ctx, "k"))
		require.NoError(t, a.Remove(ctx, "never_set"))
		_, err := a.Get(ctx, "k")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("get_all_write_order", func(t *testing.T) {
		a, _, _ := f(t)
		all, err := a.GetAll(ctx)
		require.NoError(t, err)
		require.Empty(t, all)

		for _, k := range []string{"c", "a", "b"} {
			require.NoError(t, a.Set(ctx, k, "v_"+k))
		}
		all, err = a.GetAll(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"c", "a", "b"}, keys(all))
		require.Equal(t, "v_c", all[0].Value)

		// Rewriting a key makes it the newest.
		require.NoError(t, a.Set(ctx, "c", "v_c"))
		all, err = a.GetAll(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b", "c"}, keys(all))
	})

	t.Run("shared_namespace", func(t *testing.T) {
		a, b, other := f(t)
		require.NoError(t, a.Set(ctx, "k", "v"))
		v, err := b.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "v", v)

		_, err = other.Get(ctx, "k")
		require.ErrorIs(t, err, kv.ErrNotFound)

		require.NoError(t, b.Remove(ctx, "k"))
		_, err = a.Get(ctx, "k")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("clear", func(t *testing.T) {
		a, b, other := f(t)
		require.NoError(t, a.Set(ctx, "k1", "v"))
		require.NoError(t, b.Set(ctx, "k2", "v"))
		require.NoError(t, other.Set(ctx, "k1", "kept"))

		require.NoError(t, a.Clear(ctx))
		all, err := b.GetAll(ctx)
		require.NoError(t, err)
		require.Empty(t, all)

		v, err := other.Get(ctx, "k1")
		require.NoError(t, err)
		require.Equal(t, "kept", v)

		// Usable after clear.
		require.NoError(t, a.Set(ctx, "k3", "v3"))
		all, err = b.GetAll(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"k3"}, keys(all))
	})
}
