// Package cache implements the read-side policy cache: single-entity keys
// written through on every mutation, page keys filled lazily and evicted
// wholesale whenever any policy changes. Redis being down never fails a
// request; every cache error is logged and the caller falls back to the
// store.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"policy-management-service/internal/domain"
	"policy-management-service/shared/cachex"
	"policy-management-service/shared/lockx"
	"policy-management-service/shared/logx"
	"policy-management-service/shared/metricsx"
)

const (
	cacheName = "policy"

	keyIDFormat   = "policy:id:%d"
	keyPageFormat = "policy:page:p=%d_s=%d_sort=%s"
	keyLockFormat = "policy:lock:%d"
	pagePrefix    = "policy:page:"

	lockTTL = 5 * time.Second
)

type PolicyCache struct {
	client *cachex.Client
	ttl    time.Duration
	logger logx.Logger
}

func New(client *cachex.Client, ttl time.Duration, logger logx.Logger) *PolicyCache {
	return &PolicyCache{client: client, ttl: ttl, logger: logger}
}

func KeyByID(id int64) string {
	return fmt.Sprintf(keyIDFormat, id)
}

func KeyPage(page, size int, sort string) string {
	return fmt.Sprintf(keyPageFormat, page, size, sort)
}

// GetByID returns the cached policy, or ok=false on a miss or any redis
// failure.
func (c *PolicyCache) GetByID(ctx context.Context, id int64) (domain.Policy, bool) {
	var p domain.Policy
	found, err := c.client.GetJSON(ctx, KeyByID(id), &p)
	if err != nil {
		c.warn(ctx, "cache_read_failed", KeyByID(id), err)
		metricsx.IncCacheOp(cacheName, "error")
		return domain.Policy{}, false
	}
	if !found {
		metricsx.IncCacheOp(cacheName, "miss")
		return domain.Policy{}, false
	}
	metricsx.IncCacheOp(cacheName, "hit")
	return p, true
}

// PutByID writes the policy through under its id key. Callers invoke this
// after every successful load and after every mutation, so a read that
// follows a write observes the new state without touching the store.
func (c *PolicyCache) PutByID(ctx context.Context, p domain.Policy) {
	if err := c.client.SetJSON(ctx, KeyByID(p.ID), p, c.ttl); err != nil {
		c.warn(ctx, "cache_write_failed", KeyByID(p.ID), err)
		metricsx.IncCacheOp(cacheName, "error")
		return
	}
	metricsx.IncCacheOp(cacheName, "set")
}

// GetPage returns the cached listing page, or ok=false on a miss or any
// redis failure.
func (c *PolicyCache) GetPage(ctx context.Context, page, size int, sort string) (domain.PolicyPage, bool) {
	key := KeyPage(page, size, sort)
	var result domain.PolicyPage
	found, err := c.client.GetJSON(ctx, key, &result)
	if err != nil {
		c.warn(ctx, "cache_read_failed", key, err)
		metricsx.IncCacheOp(cacheName, "error")
		return domain.PolicyPage{}, false
	}
	if !found {
		metricsx.IncCacheOp(cacheName, "miss")
		return domain.PolicyPage{}, false
	}
	metricsx.IncCacheOp(cacheName, "hit")
	return result, true
}

func (c *PolicyCache) PutPage(ctx context.Context, result domain.PolicyPage) {
	key := KeyPage(result.Page, result.Size, result.Sort)
	if err := c.client.SetJSON(ctx, key, result, c.ttl); err != nil {
		c.warn(ctx, "cache_write_failed", key, err)
		metricsx.IncCacheOp(cacheName, "error")
		return
	}
	metricsx.IncCacheOp(cacheName, "set")
}

// EvictPages drops every listing page. Page membership depends on the whole
// table, so any policy mutation invalidates all of them; the next list call
// repopulates from the store.
func (c *PolicyCache) EvictPages(ctx context.Context) {
	if err := c.client.DeleteByPrefix(ctx, pagePrefix); err != nil {
		c.warn(ctx, "cache_evict_failed", pagePrefix, err)
		metricsx.IncCacheOp(cacheName, "error")
		return
	}
	metricsx.IncCacheOp(cacheName, "evict")
}

// Lock serializes mutations of one policy across instances. ok=false
// means another mutation holds the lock right now. A redis failure
// degrades to an unguarded mutation rather than a failed request; the
// returned release is then a no-op.
func (c *PolicyCache) Lock(ctx context.Context, id int64) (release func(), ok bool) {
	key := fmt.Sprintf(keyLockFormat, id)
	lock, acquired, err := lockx.Acquire(ctx, c.client.Client(), key, lockTTL)
	if err != nil {
		c.warn(ctx, "lock_unavailable", key, err)
		metricsx.IncCacheOp(cacheName, "error")
		return func() {}, true
	}
	if !acquired {
		return nil, false
	}
	return func() {
		if err := lockx.Release(context.WithoutCancel(ctx), c.client.Client(), lock); err != nil {
			c.warn(ctx, "lock_release_failed", key, err)
		}
	}, true
}

func (c *PolicyCache) warn(ctx context.Context, event string, key string, err error) {
	c.logger.Warn(ctx, event, "cache unavailable, falling back to store",
		slog.String("error_code", "UNAVAILABLE"),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}
