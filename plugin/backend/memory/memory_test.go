package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmkol/sharedlru/coremain"
)

func TestInit(t *testing.T) {
	c := &coremain.BackendConfig{Type: BackendType, CacheName: "memory_test"}
	a, err := coremain.NewBackend(c, nil)
	require.NoError(t, err)
	b, err := coremain.NewBackend(c, nil)
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "k", "v"))
	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
	require.Equal(t, 1, Store().Len("memory_test"))

	_, err = coremain.NewBackend(&coremain.BackendConfig{Type: BackendType}, nil)
	require.Error(t, err)
}
