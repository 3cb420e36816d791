// Package distcache is the distributed cache layer from spec §4.F: a Redis
// adapter in front of the store, shared across process instances. Every
// operation is best-effort — a Redis failure degrades to a cache miss
// rather than failing the caller, per spec §4.F's stated fallback.
package distcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jordigilh/urlshort/internal/model"
)

const (
	mappingPrefix = "url:"
	expiredPrefix = "expired:"
	minTTL        = 60 * time.Second
)

// Cache wraps a redis client with the spec's TTL and negative-cache rules.
type Cache struct {
	rdb        *redis.Client
	defaultTTL time.Duration
	log        *zap.Logger
}

// New builds a Cache over an already-configured redis client.
func New(rdb *redis.Client, defaultTTL time.Duration, log *zap.Logger) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Cache{rdb: rdb, defaultTTL: defaultTTL, log: log}
}

// Get returns the cached mapping for shortCode, or (nil, false) on a miss
// or a Redis error (logged and swallowed).
func (c *Cache) Get(ctx context.Context, shortCode string) (*model.Mapping, bool) {
	raw, err := c.rdb.Get(ctx, mappingPrefix+shortCode).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("distcache get failed", zap.String("shortCode", shortCode), zap.Error(err))
		}
		return nil, false
	}
	var m model.Mapping
	if err := json.Unmarshal(raw, &m); err != nil {
		c.log.Warn("distcache corrupt value", zap.String("shortCode", shortCode), zap.Error(err))
		return nil, false
	}
	return &m, true
}

// Set caches m with a TTL aligned to its expiry: min(defaultTTL,
// time-until-expiry). Per spec, mappings expiring within minTTL are not
// cached at all, to avoid serving a near-stale entry past its expiry.
func (c *Cache) Set(ctx context.Context, m *model.Mapping) {
	ttl := c.defaultTTL
	if m.ExpiresAt != nil {
		remaining := time.Until(*m.ExpiresAt)
		if remaining <= minTTL {
			return
		}
		if remaining < ttl {
			ttl = remaining
		}
	}

	raw, err := json.Marshal(m)
	if err != nil {
		c.log.Warn("distcache marshal failed", zap.String("shortCode", m.ShortCode), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, mappingPrefix+m.ShortCode, raw, ttl).Err(); err != nil {
		c.log.Warn("distcache set failed", zap.String("shortCode", m.ShortCode), zap.Error(err))
	}
}

// BatchSet caches several mappings in one pipeline round trip, used by the
// warm-up path over the hottest rows.
func (c *Cache) BatchSet(ctx context.Context, mappings []*model.Mapping) {
	if len(mappings) == 0 {
		return
	}
	pipe := c.rdb.Pipeline()
	now := time.Now()
	for _, m := range mappings {
		ttl := c.defaultTTL
		if m.ExpiresAt != nil {
			remaining := m.ExpiresAt.Sub(now)
			if remaining <= minTTL {
				continue
			}
			if remaining < ttl {
				ttl = remaining
			}
		}
		raw, err := json.Marshal(m)
		if err != nil {
			continue
		}
		pipe.Set(ctx, mappingPrefix+m.ShortCode, raw, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("distcache batch set failed", zap.Error(err))
	}
}

// Remove evicts a cached mapping, used on invalidation after an update.
func (c *Cache) Remove(ctx context.Context, shortCode string) {
	if err := c.rdb.Del(ctx, mappingPrefix+shortCode).Err(); err != nil {
		c.log.Warn("distcache remove failed", zap.String("shortCode", shortCode), zap.Error(err))
	}
}

// MarkExpired sets a negative marker so subsequent lookups short-circuit
// to not-found without re-querying the store, per spec §4.F.
func (c *Cache) MarkExpired(ctx context.Context, shortCode string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.rdb.Set(ctx, expiredPrefix+shortCode, "1", ttl).Err(); err != nil {
		c.log.Warn("distcache mark-expired failed", zap.String("shortCode", shortCode), zap.Error(err))
	}
	c.Remove(ctx, shortCode)
}

// IsMarkedExpired reports whether shortCode carries a negative marker.
func (c *Cache) IsMarkedExpired(ctx context.Context, shortCode string) bool {
	n, err := c.rdb.Exists(ctx, expiredPrefix+shortCode).Result()
	if err != nil {
		c.log.Warn("distcache expired-check failed", zap.String("shortCode", shortCode), zap.Error(err))
		return false
	}
	return n > 0
}
