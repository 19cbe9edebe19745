package coremain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunBench(t *testing.T) {
	cfg := &Config{
		Cache:   CacheConfig{Capacity: 8},
		Backend: BackendConfig{Type: "coremain_test", CacheName: "bench"},
	}
	require.NoError(t, cfg.init())

	res, err := runBench(context.Background(), cfg, &benchFlags{instances: 3, ops: 200, putRatio: 0.5}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, int64(600), res.hits+res.misses+res.puts)
	require.Positive(t, res.puts)
	ratio := res.hitRatio()
	require.True(t, ratio >= 0 && ratio <= 1)

	_, err = runBench(context.Background(), cfg, &benchFlags{instances: 0}, zap.NewNop())
	require.Error(t, err)
}
