package redis_kv

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/kv/kvtest"
)

// newTestClient connects to $REDIS_ADDR, or to an in process
// miniredis if it is unset.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if len(addr) == 0 {
		addr = miniredis.RunT(t).Addr()
	}
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newBackend(t *testing.T, c redis.Cmdable, ns string, compress bool) *Backend {
	t.Helper()
	b, err := NewRedisBackend(RedisOpts{Client: c, Namespace: ns, Compress: compress})
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Clear(context.Background())
		b.Close()
	})
	return b
}

func testNamespace(t *testing.T) string {
	return fmt.Sprintf("sharedlru_test_%d", time.Now().UnixNano())
}

func TestBackend(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprintf("compress_%v", compress), func(t *testing.T) {
			kvtest.Run(t, func(t *testing.T) (a, b, other kv.Backend) {
				c := newTestClient(t)
				ns := testNamespace(t)
				return newBackend(t, c, ns, compress), newBackend(t, c, ns, compress), newBackend(t, c, ns+"_other", compress)
			})
		})
	}
}

func TestBackend_Compressed(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	b := newBackend(t, c, testNamespace(t), true)

	v := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	require.NoError(t, b.Set(ctx, "k", v))
	raw, err := c.HGet(ctx, b.hashKey, "k").Result()
	require.NoError(t, err)
	require.Less(t, len(raw), len(v))

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestRedisOpts_Init(t *testing.T) {
	_, err := NewRedisBackend(RedisOpts{Namespace: "ns"})
	require.Error(t, err)

	c := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer c.Close()
	_, err = NewRedisBackend(RedisOpts{Client: c})
	require.Error(t, err)

	b, err := NewRedisBackend(RedisOpts{Client: c, Namespace: "ns"})
	require.NoError(t, err)
	require.Equal(t, time.Second, b.opts.ClientTimeout)
	require.Equal(t, "ns:seq", b.seqKey)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestBackend_Unreachable(t *testing.T) {
	c := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer c.Close()
	b, err := NewRedisBackend(RedisOpts{Client: c, Namespace: "ns", ClientTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.ErrorIs(t, b.Set(ctx, "k", "v"), kv.ErrUnavailable)
	require.True(t, b.disabled())

	// Fails fast while disabled.
	_, err = b.Get(ctx, "k")
	require.ErrorIs(t, err, kv.ErrUnavailable)
	_, err = b.GetAll(ctx)
	require.ErrorIs(t, err, kv.ErrUnavailable)
	require.ErrorIs(t, b.Remove(ctx, "k"), kv.ErrUnavailable)
	require.ErrorIs(t, b.Clear(ctx), kv.ErrUnavailable)
	require.ErrorIs(t, b.Ping(ctx), kv.ErrUnavailable)
}

func TestDial_Unreachable(t *testing.T) {
	_, err := Dial(context.Background(), ConnOpts{Host: "127.0.0.1", Port: 1}, RedisOpts{
		Namespace:     "ns",
		ClientTimeout: 100 * time.Millisecond,
	})
	require.ErrorIs(t, err, kv.ErrUnavailable)
}

func TestConnOpts_Addr(t *testing.T) {
	require.Equal(t, "127.0.0.1:6379", (&ConnOpts{}).addr())
	require.Equal(t, "redis.local:6380", (&ConnOpts{Host: "redis.local", Port: 6380}).addr())
}

func TestBackend_Codec(t *testing.T) {
	c := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer c.Close()
	b, err := NewRedisBackend(RedisOpts{Client: c, Namespace: "codec", Compress: true})
	require.NoError(t, err)
	defer b.Close()

	for _, v := range []string{"", "v", strings.Repeat("abc", 1<<19)} {
		raw := b.encode(v)
		got, err := b.decode(raw)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}

	_, err = b.decode("\xff\xff\xff\xff\xff")
	require.Error(t, err)
}
