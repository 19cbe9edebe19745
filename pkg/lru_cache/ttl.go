package lru_cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ttlTimer is the single live expiry of a key. gen tells a firing
// timer apart from the one that replaced it.
type ttlTimer struct {
	t   *time.Timer
	gen uint64
}

// scheduleLocked replaces the expiry of key. ttl wins over the default
// ttl; with neither set the key does not expire.
func (c *Cache) scheduleLocked(key string, ttl time.Duration) {
	c.cancelTimerLocked(key)
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	if ttl <= 0 {
		return
	}

	c.timerGen++
	gen := c.timerGen
	c.timers[key] = &ttlTimer{
		t:   time.AfterFunc(ttl, func() { c.expire(key, gen) }),
		gen: gen,
	}
}

func (c *Cache) cancelTimerLocked(key string) {
	if tt, ok := c.timers[key]; ok {
		tt.t.Stop()
		delete(c.timers, key)
	}
}

func (c *Cache) stopTimersLocked() {
	for _, tt := range c.timers {
		tt.t.Stop()
	}
	clear(c.timers)
}

// expire removes key from the backend only. The local entry goes away
// on the next refresh, which no longer sees it in the snapshot.
func (c *Cache) expire(key string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tt, ok := c.timers[key]
	if !ok || tt.gen != gen {
		return
	}
	delete(c.timers, key)
	if c.closed || !c.q.Contains(key) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.OpTimeout)
	defer cancel()
	if err := c.opts.Backend.Remove(ctx, key); err != nil {
		c.m.backendErrors.Inc()
		c.opts.Logger.Warn("failed to expire key", zap.String("key", key), zap.Error(err))
		return
	}
	c.m.expirations.Inc()
	c.opts.Logger.Debug("cache key expired", zap.String("key", key))
}

// pendingTimers returns the number of live expiries.
func (c *Cache) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
