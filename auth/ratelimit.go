// Copyright 2025 XXAI
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"xxai/platform/shared/logger"
	"xxai/platform/store"
)

// Limiter decides whether a tenant may make one more request right now
type Limiter interface {
	Allow(ctx context.Context, tenantID string) (bool, error)
}

type limitEntry struct {
	rps       int
	expiresAt time.Time
}

// limitCache caches configured per-tenant caps so the hot path does not hit
// user_rate_limits on every request.
type limitCache struct {
	limits *store.RateLimitRepository
	mu     sync.RWMutex
	cache  map[string]*limitEntry
	ttl    time.Duration
}

func newLimitCache(limits *store.RateLimitRepository) *limitCache {
	return &limitCache{
		limits: limits,
		cache:  make(map[string]*limitEntry),
		ttl:    30 * time.Second,
	}
}

// rps returns the tenant's configured cap, 0 when unlimited
func (c *limitCache) rps(ctx context.Context, tenantID string) (int, error) {
	c.mu.RLock()
	entry, ok := c.cache[tenantID]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.rps, nil
	}

	rps := 0
	limit, err := c.limits.GetLimit(ctx, tenantID)
	switch {
	case err == store.ErrNotFound:
		// No row means unlimited
	case err != nil:
		return 0, err
	case limit.IsActive:
		rps = limit.RequestsPerSecond
	}

	c.mu.Lock()
	c.cache[tenantID] = &limitEntry{rps: rps, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return rps, nil
}

func (c *limitCache) invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.cache, tenantID)
	c.mu.Unlock()
}

// DBLimiter enforces caps through the shared counter row so limits hold
// across worker processes.
type DBLimiter struct {
	limits *store.RateLimitRepository
	caps   *limitCache
	log    *logger.Logger
}

// NewDBLimiter creates a database-backed limiter
func NewDBLimiter(limits *store.RateLimitRepository, log *logger.Logger) *DBLimiter {
	return &DBLimiter{limits: limits, caps: newLimitCache(limits), log: log}
}

// Allow consumes one request from the tenant's one-second window
func (l *DBLimiter) Allow(ctx context.Context, tenantID string) (bool, error) {
	rps, err := l.caps.rps(ctx, tenantID)
	if err != nil {
		// Fail open on config read errors
		l.log.Warn(tenantID, "", "rate limit config read failed", map[string]interface{}{"error": err.Error()})
		return true, nil
	}
	if rps <= 0 {
		return true, nil
	}
	allowed, err := l.limits.Allow(ctx, tenantID, rps)
	if err != nil {
		l.log.Warn(tenantID, "", "rate limit counter update failed", map[string]interface{}{"error": err.Error()})
		return true, nil
	}
	return allowed, nil
}

// Invalidate drops a tenant's cached cap after an admin update
func (l *DBLimiter) Invalidate(tenantID string) { l.caps.invalidate(tenantID) }

// RedisLimiter enforces caps with a Redis sliding window. Used when REDIS_URL
// is configured; Redis errors fail open.
type RedisLimiter struct {
	client *redis.Client
	caps   *limitCache
	log    *logger.Logger
}

// NewRedisLimiter connects to Redis and returns a sliding-window limiter
func NewRedisLimiter(redisURL string, limits *store.RateLimitRepository, log *logger.Logger) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLimiter{client: client, caps: newLimitCache(limits), log: log}, nil
}

// Allow checks the tenant's one-second sliding window in Redis
func (l *RedisLimiter) Allow(ctx context.Context, tenantID string) (bool, error) {
	rps, err := l.caps.rps(ctx, tenantID)
	if err != nil {
		l.log.Warn(tenantID, "", "rate limit config read failed", map[string]interface{}{"error": err.Error()})
		return true, nil
	}
	if rps <= 0 {
		return true, nil
	}

	now := time.Now()
	key := fmt.Sprintf("ratelimit:%s", tenantID)

	pipe := l.client.Pipeline()
	minScore := now.Add(-time.Second).UnixNano()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open on Redis errors
		l.log.Warn(tenantID, "", "redis rate limit check failed", map[string]interface{}{"error": err.Error()})
		return true, nil
	}

	return card.Val() < int64(rps), nil
}

// Invalidate drops a tenant's cached cap after an admin update
func (l *RedisLimiter) Invalidate(tenantID string) { l.caps.invalidate(tenantID) }

// Close releases the Redis connection pool
func (l *RedisLimiter) Close() error { return l.client.Close() }
