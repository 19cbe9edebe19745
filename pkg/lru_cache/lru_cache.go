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

package lru_cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/lru"
	"github.com/pmkol/sharedlru/pkg/utils"
)

var (
	// ErrInvalidArgument is returned before any state is touched when
	// the caller passes a malformed key, value, ttl or capacity.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrClosed = errors.New("cache is closed")
)

var nopLogger = zap.NewNop()

type Opts struct {
	// Capacity is the maximum number of local entries. Must be >= 1.
	Capacity int

	// DefaultTTL applies to puts without their own ttl.
	// Zero means no expiry.
	DefaultTTL time.Duration

	// Backend cannot be nil. Caches configured with backends of the
	// same namespace share their membership. Close does not close it.
	Backend kv.Backend

	// OpTimeout bounds the backend call made when a ttl fires.
	// Default is 1s.
	OpTimeout time.Duration

	// Logger is the *zap.Logger for this Cache.
	// A nil Logger will disable logging.
	Logger *zap.Logger

	// Registerer registers the cache metrics. Optional.
	Registerer prometheus.Registerer
}

func (opts *Opts) Init() error {
	if opts.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be >= 1, got %d", ErrInvalidArgument, opts.Capacity)
	}
	if opts.DefaultTTL < 0 {
		return fmt.Errorf("%w: negative default ttl %s", ErrInvalidArgument, opts.DefaultTTL)
	}
	if opts.Backend == nil {
		return fmt.Errorf("%w: nil backend", ErrInvalidArgument)
	}
	utils.SetDefaultNum(&opts.OpTimeout, time.Second)
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

// Cache is a bounded, recency ordered view of a backend namespace.
//
// Every Get first reconciles the local view with a backend snapshot,
// so writes and removals made by other caches on the same namespace
// become visible. Cross cache ordering is best effort: the backend's
// last write wins and nothing is locked across caches.
//
// Cache is safe for concurrent use. Each method holds the cache lock
// for its whole duration, backend calls included.
type Cache struct {
	opts Opts
	m    *metrics

	mu       sync.Mutex
	capacity int
	q        *lru.Queue[string, string]
	timers   map[string]*ttlTimer
	timerGen uint64
	closed   bool
}

func New(opts Opts) (*Cache, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}
	m, err := newMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics, %w", err)
	}
	return &Cache{
		opts:     opts,
		m:        m,
		capacity: opts.Capacity,
		q:        lru.NewQueue[string, string](opts.Capacity),
		timers:   make(map[string]*ttlTimer),
	}, nil
}

// Get returns the value of key after refreshing from the backend, and
// marks key as the most recently used one. ok is false if key is absent.
func (c *Cache) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", false, ErrClosed
	}

	if err := c.refreshLocked(ctx, key); err != nil {
		return "", false, err
	}

	e, ok := c.q.Get(key)
	if !ok {
		c.m.misses.Inc()
		return "", false, nil
	}

	// Rewriting bumps the key in the backend write order, which is what
	// other caches rebuild their recency from.
	if err := c.opts.Backend.Set(ctx, key, e.Value); err != nil {
		c.m.backendErrors.Inc()
		return "", false, err
	}
	c.q.Touch(key)
	c.m.hits.Inc()
	return e.Value, true, nil
}

// Peek returns the locally known value of key. It neither refreshes
// nor changes recency.
func (c *Cache) Peek(key string) (value string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.q.Get(key)
	if !ok {
		return "", false
	}
	return e.Value, true
}

// Put stores key as the most recently used entry and returns value.
// A positive ttl overrides the default one. Any previous expiry of key
// is cancelled.
func (c *Cache) Put(ctx context.Context, key, value string, ttl time.Duration) (string, error) {
	if len(key) == 0 || len(value) == 0 {
		return "", fmt.Errorf("%w: key/value must be provided", ErrInvalidArgument)
	}
	if ttl < 0 {
		return "", fmt.Errorf("%w: negative ttl %s", ErrInvalidArgument, ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}

	if !c.q.Contains(key) {
		for c.q.Len() >= c.capacity {
			if err := c.evictOldestLocked(ctx); err != nil {
				return "", err
			}
		}
	}

	if err := c.opts.Backend.Set(ctx, key, value); err != nil {
		c.m.backendErrors.Inc()
		return "", err
	}
	c.q.PushBack(&lru.Entry[string, string]{Key: key, Value: value})
	c.scheduleLocked(key, ttl)
	c.m.size.Set(float64(c.q.Len()))
	return value, nil
}

// Remove deletes key locally and from the backend.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: key must be provided", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if err := c.opts.Backend.Remove(ctx, key); err != nil {
		c.m.backendErrors.Inc()
		return err
	}
	c.dropLocked(key)
	return nil
}

// SetCapacity changes the bound, evicting the least recently used
// entries until the cache fits. If a backend removal fails, eviction
// stops there and the error is returned with the new bound in place.
func (c *Cache) SetCapacity(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("%w: capacity must be >= 1, got %d", ErrInvalidArgument, n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.capacity = n
	for c.q.Len() > n {
		if err := c.evictOldestLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ClearCacheInstance clears the whole backend namespace, which affects
// every cache sharing it, then the local state.
func (c *Cache) ClearCacheInstance(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if err := c.opts.Backend.Clear(ctx); err != nil {
		c.m.backendErrors.Inc()
		return err
	}
	c.q.Reset()
	c.stopTimersLocked()
	c.m.size.Set(0)
	c.opts.Logger.Info("cache namespace cleared")
	return nil
}

// Len returns the local occupancy.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Len()
}

func (c *Cache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// Keys returns the local keys from the least to the most recently used.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Keys()
}

// Close stops all pending expiries. Later calls return ErrClosed,
// except Peek and the inspection methods.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.stopTimersLocked()
	if c.opts.Registerer != nil {
		c.m.unregister(c.opts.Registerer)
	}
	return nil
}

// refreshLocked reconciles the local view with a backend snapshot.
// Keys still in the backend keep their local position, keys gone from
// the backend are dropped and unknown keys are appended in snapshot
// order. accessed, if present, is then moved to the back so the
// overflow evicted from the front never includes it.
func (c *Cache) refreshLocked(ctx context.Context, accessed string) error {
	snapshot, err := c.opts.Backend.GetAll(ctx)
	if err != nil {
		c.m.backendErrors.Inc()
		return err
	}
	c.m.refreshes.Inc()

	remote := make(map[string]string, len(snapshot))
	for _, p := range snapshot {
		remote[p.Key] = p.Value
	}

	var gone []string
	var changed []*lru.Entry[string, string]
	c.q.Range(func(e *lru.Entry[string, string]) bool {
		v, ok := remote[e.Key]
		switch {
		case !ok:
			gone = append(gone, e.Key)
		case v != e.Value:
			changed = append(changed, &lru.Entry[string, string]{Key: e.Key, Value: v})
		}
		return true
	})
	for _, k := range gone {
		c.dropLocked(k)
	}
	for _, e := range changed {
		c.q.Swap(e)
	}

	added := 0
	for _, p := range snapshot {
		if c.q.Contains(p.Key) {
			continue
		}
		c.q.PushBack(&lru.Entry[string, string]{Key: p.Key, Value: p.Value})
		added++
	}

	if len(gone) > 0 || len(changed) > 0 || added > 0 {
		c.opts.Logger.Debug(
			"cache refreshed",
			zap.Int("dropped", len(gone)),
			zap.Int("changed", len(changed)),
			zap.Int("added", added),
		)
	}

	c.q.Touch(accessed)
	for c.q.Len() > c.capacity {
		if err := c.evictOldestLocked(ctx); err != nil {
			return err
		}
	}
	c.m.size.Set(float64(c.q.Len()))
	return nil
}

// evictOldestLocked removes the least recently used entry from the
// backend and, only if that succeeded, locally.
func (c *Cache) evictOldestLocked(ctx context.Context) error {
	e, ok := c.q.Oldest()
	if !ok {
		return nil
	}
	if err := c.opts.Backend.Remove(ctx, e.Key); err != nil {
		c.m.backendErrors.Inc()
		return fmt.Errorf("failed to evict %s, %w", e.Key, err)
	}
	c.dropLocked(e.Key)
	c.m.evictions.Inc()
	c.opts.Logger.Debug("cache evicted", zap.String("key", e.Key))
	return nil
}

// dropLocked removes key from local state only.
func (c *Cache) dropLocked(key string) {
	c.q.Del(key)
	c.cancelTimerLocked(key)
	c.m.size.Set(float64(c.q.Len()))
}
