package coremain

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/kv/mem_kv"
	"github.com/pmkol/sharedlru/pkg/safe_close"
)

type testArgs struct {
	Fail bool `yaml:"fail"`
}

var testStore = mem_kv.NewStore()

func init() {
	RegNewBackendFunc("coremain_test", func(bp *BP, args any) (kv.Backend, error) {
		if args.(*testArgs).Fail {
			return nil, kv.Unavailable("dial", context.DeadlineExceeded)
		}
		return testStore.Namespace(bp.CacheName())
	}, func() any { return new(testArgs) })
}

func writeConfig(t *testing.T, s string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(s), 0o644))
	return p
}

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{Cache: CacheConfig{Capacity: 10}}
	require.NoError(t, cfg.init())
	require.Equal(t, "redis", cfg.Backend.Type)
	require.Equal(t, "lru_cache", cfg.Backend.CacheName)
	require.Equal(t, 1000, cfg.Backend.Timeout)
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no capacity", Config{}},
		{"negative capacity", Config{Cache: CacheConfig{Capacity: -1}}},
		{"negative ttl", Config{Cache: CacheConfig{Capacity: 1, TTL: -1}}},
		{"negative timeout", Config{Cache: CacheConfig{Capacity: 1}, Backend: BackendConfig{Timeout: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.cfg.init())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	p := writeConfig(t, `
log:
  level: debug
cache:
  capacity: 3
  ttl: 60
backend:
  type: coremain_test
  cache_name: ns1
  timeout: 200
api:
  http: 127.0.0.1:0
`)
	cfg, v, err := loadConfig(p)
	require.NoError(t, err)
	require.Equal(t, p, v.ConfigFileUsed())
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 3, cfg.Cache.Capacity)
	require.Equal(t, 60, cfg.Cache.TTL)
	require.Equal(t, "coremain_test", cfg.Backend.Type)
	require.Equal(t, "ns1", cfg.Backend.CacheName)
	require.Equal(t, 200, cfg.Backend.Timeout)
	require.Equal(t, "127.0.0.1:0", cfg.API.HTTP)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, _, err = loadConfig(writeConfig(t, "cache:\n  capacity: 0\n"))
	require.Error(t, err)

	_, _, err = loadConfig(writeConfig(t, "cache:\n  capacity: 1\n  unknown_field: 1\n"))
	require.Error(t, err)
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(&BackendConfig{Type: "coremain_test", CacheName: "nb"}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Set(context.Background(), "k", "v"))
	require.Equal(t, 1, testStore.Len("nb"))

	_, err = NewBackend(&BackendConfig{Type: "no_such_type"}, nil)
	require.Error(t, err)

	_, err = NewBackend(&BackendConfig{Type: "coremain_test", CacheName: "nb", Args: map[string]any{"bad": 1}}, nil)
	require.Error(t, err)

	_, err = NewBackend(&BackendConfig{Type: "coremain_test", CacheName: "nb", Args: map[string]any{"fail": "true"}}, nil)
	require.ErrorIs(t, err, kv.ErrUnavailable)

	require.Contains(t, GetBackendTypes(), "coremain_test")
	require.Panics(t, func() {
		RegNewBackendFunc("coremain_test", nil, nil)
	})
}

func TestRunNode(t *testing.T) {
	cfg := &Config{
		Cache:   CacheConfig{Capacity: 2},
		Backend: BackendConfig{Type: "coremain_test", CacheName: "node"},
		API:     APIConfig{HTTP: "127.0.0.1:0"},
	}
	require.NoError(t, cfg.init())

	sc := safe_close.NewSafeClose()
	errChan := make(chan error, 1)
	go func() { errChan <- RunNode(cfg, nil, sc) }()

	time.Sleep(50 * time.Millisecond)
	closed := make(chan struct{})
	go func() {
		sc.CloseWait()
		close(closed)
	}()
	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not exit")
	}
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("CloseWait did not return after the node exited")
	}
}

func TestRunNode_BackendError(t *testing.T) {
	cfg := &Config{
		Cache:   CacheConfig{Capacity: 2},
		Backend: BackendConfig{Type: "coremain_test", CacheName: "node", Args: map[string]any{"fail": true}},
	}
	require.NoError(t, cfg.init())

	sc := safe_close.NewSafeClose()
	require.Error(t, RunNode(cfg, nil, sc))
	sc.CloseWait()
}
