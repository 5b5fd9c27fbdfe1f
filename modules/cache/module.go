package cache

import (
	"context"
	"log"
	"time"

	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
)

// CacheModule owns the Redis client and the follower cache.
type CacheModule struct {
	redisAddr string
	prefix    string
	ttl       time.Duration
	client    *redis.Client
	cache     *FollowerCache
	loader    Loader
}

// Compile-time interface checks.
var _ mono.Module = (*CacheModule)(nil)
var _ mono.HealthCheckableModule = (*CacheModule)(nil)

// NewModule creates a new CacheModule. The loader is wired after the
// storage module starts.
func NewModule(redisAddr, prefix string, ttl time.Duration) *CacheModule {
	return &CacheModule{
		redisAddr: redisAddr,
		prefix:    prefix,
		ttl:       ttl,
	}
}

// Name returns the module name.
func (m *CacheModule) Name() string {
	return "cache"
}

// SetLoader wires the storage repository as the cache-miss source
// (called from main.go after start).
func (m *CacheModule) SetLoader(loader Loader) {
	m.loader = loader
	m.cache = New(m.client, loader, m.prefix, m.ttl)
}

// Start connects to Redis.
func (m *CacheModule) Start(ctx context.Context) error {
	m.client = redis.NewClient(&redis.Options{Addr: m.redisAddr})

	if err := m.client.Ping(ctx).Err(); err != nil {
		// Presence fan-out falls back to direct storage reads when
		// Redis is unreachable, so startup proceeds.
		log.Printf("[cache] Redis unreachable at %s: %v (degrading to storage reads)", m.redisAddr, err)
	} else {
		log.Printf("[cache] Connected to Redis at %s", m.redisAddr)
	}
	return nil
}

// Stop closes the Redis client.
func (m *CacheModule) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return err
		}
	}
	log.Println("[cache] Module stopped")
	return nil
}

// Health pings Redis.
func (m *CacheModule) Health(ctx context.Context) mono.HealthStatus {
	if m.client == nil {
		return mono.HealthStatus{Healthy: false, Message: "redis client not initialized"}
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return mono.HealthStatus{Healthy: false, Message: err.Error()}
	}
	stats := Stats{}
	if m.cache != nil {
		stats = m.cache.GetStats()
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"hits":   stats.Hits,
			"misses": stats.Misses,
			"errors": stats.Errors,
		},
	}
}

// Cache returns the follower cache, nil until SetLoader is called.
func (m *CacheModule) Cache() *FollowerCache {
	return m.cache
}
