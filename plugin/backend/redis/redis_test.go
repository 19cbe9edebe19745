package redis

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/pmkol/sharedlru/coremain"
	"github.com/pmkol/sharedlru/pkg/kv"
)

func TestInit(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if len(addr) == 0 {
		addr = miniredis.RunT(t).Addr()
	}
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	b, err := coremain.NewBackend(&coremain.BackendConfig{
		Type:      BackendType,
		CacheName: "sharedlru_plugin_test",
		Timeout:   1000,
		Args:      map[string]any{"host": host, "port": p, "compress": true},
	}, nil)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Clear(ctx))
	require.NoError(t, b.Set(ctx, "k", "v"))
	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
	require.NoError(t, b.Clear(ctx))
}

func TestInit_Unreachable(t *testing.T) {
	_, err := coremain.NewBackend(&coremain.BackendConfig{
		Type:      BackendType,
		CacheName: "sharedlru_plugin_test",
		Timeout:   100,
		Args:      map[string]any{"host": "127.0.0.1", "port": 1},
	}, nil)
	require.Error(t, err)
}

func TestArgs_UnknownField(t *testing.T) {
	_, err := coremain.NewBackend(&coremain.BackendConfig{
		Type: BackendType,
		Args: map[string]any{"addr": "127.0.0.1:6379"},
	}, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, kv.ErrUnavailable)
}
