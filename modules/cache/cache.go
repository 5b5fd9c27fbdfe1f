// Package cache provides a Redis-backed cache for follower lists with a
// cache-aside pattern. Presence fan-out hits the follower graph on every
// online/offline flip, so misses are collapsed through singleflight.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Loader is the source of truth consulted on cache miss.
type Loader interface {
	FetchFollowerIDs(ctx context.Context, identityID string) ([]string, error)
}

// Stats tracks cache statistics.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// FollowerCache caches follower-id lists per identity.
type FollowerCache struct {
	client *redis.Client
	loader Loader
	prefix string
	ttl    time.Duration
	group  singleflight.Group
	stats  Stats
}

// New creates a follower cache.
func New(client *redis.Client, loader Loader, prefix string, ttl time.Duration) *FollowerCache {
	return &FollowerCache{
		client: client,
		loader: loader,
		prefix: prefix,
		ttl:    ttl,
	}
}

// FollowerIDs returns the follower list for an identity, from Redis
// when fresh, loading from storage otherwise. Concurrent misses for the
// same identity share a single storage load. Redis errors degrade to a
// direct storage read; they are counted, not surfaced.
func (c *FollowerCache) FollowerIDs(ctx context.Context, identityID string) ([]string, error) {
	key := c.prefix + identityID

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var ids []string
		if err := json.Unmarshal(data, &ids); err == nil {
			atomic.AddUint64(&c.stats.Hits, 1)
			return ids, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
	} else if err != redis.Nil {
		atomic.AddUint64(&c.stats.Errors, 1)
	}
	atomic.AddUint64(&c.stats.Misses, 1)

	v, err, _ := c.group.Do(identityID, func() (any, error) {
		ids, err := c.loader.FetchFollowerIDs(ctx, identityID)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(ids); err == nil {
			if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
				atomic.AddUint64(&c.stats.Errors, 1)
			}
		}
		return ids, nil
	})
	if err != nil {
		return nil, fmt.Errorf("follower load error: %w", err)
	}
	return v.([]string), nil
}

// Invalidate drops the cached list for an identity. Called when the
// follower graph changes out-of-band.
func (c *FollowerCache) Invalidate(ctx context.Context, identityID string) error {
	if err := c.client.Del(ctx, c.prefix+identityID).Err(); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache invalidate error: %w", err)
	}
	return nil
}

// GetStats returns a snapshot of the cache statistics.
func (c *FollowerCache) GetStats() Stats {
	return Stats{
		Hits:   atomic.LoadUint64(&c.stats.Hits),
		Misses: atomic.LoadUint64(&c.stats.Misses),
		Errors: atomic.LoadUint64(&c.stats.Errors),
	}
}

// Ping checks the Redis connection.
func (c *FollowerCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *FollowerCache) Close() error {
	return c.client.Close()
}
