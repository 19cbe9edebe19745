/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of mosdns.
 *
 * mosdns is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * mosdns is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package redis_kv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang/snappy"
	"go.uber.org/zap"

	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/pool"
	"github.com/pmkol/sharedlru/pkg/utils"
)

var (
	nopLogger = zap.NewNop()

	errDisabled = errors.New("redis temporarily disabled")
)

// setScript writes the value and bumps the key in the write order zset
// with a per namespace counter, atomically.
// KEYS: hash, zset, clock. ARGV: key, value.
var setScript = redis.NewScript(`
local s = redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], s, ARGV[1])
return s
`)

type RedisOpts struct {
	// Client cannot be nil.
	Client redis.Cmdable

	// ClientCloser closes Client when Backend.Close is called.
	// Optional.
	ClientCloser io.Closer

	// Namespace is the cache_name. Values live in the hash <Namespace>,
	// write order in the zset <Namespace>:seq.
	Namespace string

	// ClientTimeout specifies the timeout for read and write operations.
	// Default is 1s.
	ClientTimeout time.Duration

	// Compress enables snappy compression of stored values. All
	// instances sharing a namespace must agree on it.
	Compress bool

	// Logger is the *zap.Logger for this Backend.
	// A nil Logger will disable logging.
	Logger *zap.Logger
}

func (opts *RedisOpts) Init() error {
	if opts.Client == nil {
		return errors.New("nil client")
	}
	if err := kv.CheckNamespace(opts.Namespace); err != nil {
		return err
	}
	utils.SetDefaultNum(&opts.ClientTimeout, time.Second)
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

type Backend struct {
	opts           RedisOpts
	hashKey        string
	seqKey         string
	clockKey       string
	clientDisabled uint32
	closeOnce      sync.Once
	closeNotify    chan struct{}
}

var _ kv.Backend = (*Backend)(nil)

func NewRedisBackend(opts RedisOpts) (*Backend, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}
	return &Backend{
		opts:        opts,
		hashKey:     opts.Namespace,
		seqKey:      opts.Namespace + ":seq",
		clockKey:    opts.Namespace + ":clock",
		closeNotify: make(chan struct{}),
	}, nil
}

func (r *Backend) disabled() bool {
	return atomic.LoadUint32(&r.clientDisabled) != 0
}

// disableClient makes calls fail fast with kv.ErrUnavailable until a
// background ping succeeds.
func (r *Backend) disableClient() {
	if atomic.CompareAndSwapUint32(&r.clientDisabled, 0, 1) {
		r.opts.Logger.Warn("redis temporarily disabled", zap.String("namespace", r.opts.Namespace))
		go func() {
			const maxBackoff = time.Second * 30
			backoff := time.Millisecond * 100
			for {
				select {
				case <-time.After(backoff):
				case <-r.closeNotify:
					return
				}
				ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*500)
				err := r.opts.Client.Ping(ctx).Err()
				cancel()
				if err != nil {
					if backoff >= maxBackoff {
						backoff = maxBackoff
					} else {
						backoff += time.Duration(rand.Intn(1000))*time.Millisecond + time.Second
					}
					r.opts.Logger.Warn("redis ping failed", zap.Error(err), zap.Duration("next_ping", backoff))
					continue
				}
				atomic.StoreUint32(&r.clientDisabled, 0)
				r.opts.Logger.Info("redis enabled", zap.String("namespace", r.opts.Namespace))
				return
			}
		}()
	}
}

func (r *Backend) fail(op string, err error) error {
	r.opts.Logger.Warn("redis "+op, zap.String("namespace", r.opts.Namespace), zap.Error(err))
	r.disableClient()
	return kv.Unavailable(op, err)
}

func (r *Backend) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, r.opts.ClientTimeout)
}

func (r *Backend) Set(ctx context.Context, key, value string) error {
	if r.disabled() {
		return kv.Unavailable("set", errDisabled)
	}
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	keys := []string{r.hashKey, r.seqKey, r.clockKey}
	if err := setScript.Run(ctx, r.opts.Client, keys, key, r.encode(value)).Err(); err != nil {
		return r.fail("set", err)
	}
	return nil
}

func (r *Backend) Get(ctx context.Context, key string) (string, error) {
	if r.disabled() {
		return "", kv.Unavailable("get", errDisabled)
	}
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	b, err := r.opts.Client.HGet(ctx, r.hashKey, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", kv.ErrNotFound
		}
		return "", r.fail("get", err)
	}
	v, err := r.decode(b)
	if err != nil {
		return "", fmt.Errorf("redis data decode error, key %s, %w", key, err)
	}
	return v, nil
}

func (r *Backend) Remove(ctx context.Context, key string) error {
	if r.disabled() {
		return kv.Unavailable("remove", errDisabled)
	}
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	_, err := r.opts.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, r.hashKey, key)
		p.ZRem(ctx, r.seqKey, key)
		return nil
	})
	if err != nil {
		return r.fail("remove", err)
	}
	return nil
}

// GetAll reads the hash and the write order in one transaction.
// Hash fields missing from the zset are appended as the newest.
func (r *Backend) GetAll(ctx context.Context) ([]kv.KV, error) {
	if r.disabled() {
		return nil, kv.Unavailable("get_all", errDisabled)
	}
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var values *redis.StringStringMapCmd
	var order *redis.StringSliceCmd
	_, err := r.opts.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		values = p.HGetAll(ctx, r.hashKey)
		order = p.ZRange(ctx, r.seqKey, 0, -1)
		return nil
	})
	if err != nil {
		return nil, r.fail("get_all", err)
	}

	m := values.Val()
	out := make([]kv.KV, 0, len(m))
	appendKV := func(k, raw string) {
		v, err := r.decode(raw)
		if err != nil {
			r.opts.Logger.Warn("redis skip undecodable value", zap.String("key", k), zap.Error(err))
			return
		}
		out = append(out, kv.KV{Key: k, Value: v})
	}
	for _, k := range order.Val() {
		raw, ok := m[k]
		if !ok {
			continue
		}
		appendKV(k, raw)
		delete(m, k)
	}
	for k, raw := range m {
		appendKV(k, raw)
	}
	return out, nil
}

func (r *Backend) Clear(ctx context.Context) error {
	if r.disabled() {
		return kv.Unavailable("clear", errDisabled)
	}
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	if err := r.opts.Client.Del(ctx, r.hashKey, r.seqKey, r.clockKey).Err(); err != nil {
		return r.fail("clear", err)
	}
	return nil
}

// Ping checks the connection, regardless of the disabled state.
func (r *Backend) Ping(ctx context.Context) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	if err := r.opts.Client.Ping(ctx).Err(); err != nil {
		return kv.Unavailable("ping", err)
	}
	return nil
}

// Len returns the number of keys in the namespace.
func (r *Backend) Len(ctx context.Context) (int, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	n, err := r.opts.Client.HLen(ctx, r.hashKey).Result()
	if err != nil {
		return 0, kv.Unavailable("len", err)
	}
	return int(n), nil
}

// Close closes the redis client.
func (r *Backend) Close() error {
	r.closeOnce.Do(func() { close(r.closeNotify) })
	if f := r.opts.ClientCloser; f != nil {
		return f.Close()
	}
	return nil
}

func (r *Backend) encode(v string) string {
	if !r.opts.Compress {
		return v
	}
	n := snappy.MaxEncodedLen(len(v))
	if n < 0 {
		return string(snappy.Encode(nil, []byte(v)))
	}
	buf := pool.GetBuf(n)
	defer pool.ReleaseBuf(buf)
	return string(snappy.Encode(*buf, []byte(v)))
}

func (r *Backend) decode(raw string) (string, error) {
	if !r.opts.Compress {
		return raw, nil
	}
	src := []byte(raw)
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return "", err
	}
	buf := pool.GetBuf(n)
	defer pool.ReleaseBuf(buf)
	b, err := snappy.Decode(*buf, src)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
