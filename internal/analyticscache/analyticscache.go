// Package analyticscache memoizes analytics read-path results in Redis
// (spec §4.L). Keys are parameter-order-independent: callers pass a
// params map and the cache hashes the sorted key=value pairs, so
// equivalent queries issued with differently ordered parameters still
// share a cache entry.
package analyticscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "analytics:"

// Cache memoizes arbitrary JSON-able analytics results.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

// New builds a Cache whose Set calls all use defaultTTL (5 minutes when
// defaultTTL is not positive); Set takes no per-call TTL.
func New(rdb *redis.Client, defaultTTL time.Duration, log *zap.Logger) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: defaultTTL, log: log}
}

// Key builds the parameter-order-independent cache key for a named query
// scoped to one short code. shortCode is kept in plaintext so
// InvalidateShortCode can target it with a prefix scan; the remaining
// params are folded into a sorted hash so parameter order never matters.
func Key(name, shortCode string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return keyPrefix + shortCode + ":" + name + ":" + hex.EncodeToString(sum[:])
}

// Get decodes a cached value into dst, reporting whether it was present.
func (c *Cache) Get(ctx context.Context, key string, dst interface{}) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("analytics cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn("analytics cache corrupt value", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set stores value under key with the cache's default TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("analytics cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("analytics cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateShortCode drops every cached analytics result whose key Key
// built for shortCode, used after a hard delete or dispute.
func (c *Cache) InvalidateShortCode(ctx context.Context, shortCode string) {
	pattern := keyPrefix + shortCode + ":*"
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Warn("analytics cache invalidate failed", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("analytics cache scan failed", zap.String("shortCode", shortCode), zap.Error(err))
	}
}
