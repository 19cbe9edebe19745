package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmkol/sharedlru/coremain"
	"github.com/pmkol/sharedlru/pkg/kv"
)

func newBackend(t *testing.T, dir, ns string) kv.Backend {
	t.Helper()
	b, err := coremain.NewBackend(&coremain.BackendConfig{
		Type:      BackendType,
		CacheName: ns,
		Args:      map[string]any{"dir": dir},
	}, nil)
	require.NoError(t, err)
	return b
}

func TestSharedDB(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a := newBackend(t, dir, "ns")
	b := newBackend(t, dir, "ns")
	require.Equal(t, 2, dbs.Refs(dir))

	require.NoError(t, a.Set(ctx, "k", "v"))
	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	require.Equal(t, 1, dbs.Refs(dir))
	require.NoError(t, b.Close())
	require.Equal(t, 0, dbs.Refs(dir))

	c := newBackend(t, dir, "ns")
	defer c.Close()
	v, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestDefaultDir(t *testing.T) {
	b, err := coremain.NewBackend(&coremain.BackendConfig{Type: BackendType, CacheName: "badger_default"}, nil)
	require.NoError(t, err)
	defer b.Close()
	_, err = b.Get(context.Background(), "missing")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestInvalidNamespace(t *testing.T) {
	_, err := coremain.NewBackend(&coremain.BackendConfig{Type: BackendType, CacheName: "a/b"}, nil)
	require.Error(t, err)
	require.Equal(t, 0, dbs.Refs(":memory:"))
}
