package distcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jordigilh/urlshort/internal/model"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, time.Hour, zap.NewNop()), mr
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	exp := time.Now().Add(2 * time.Hour)
	m := &model.Mapping{ShortCode: "abc1234", LongURL: "https://example.com", ExpiresAt: &exp}

	c.Set(ctx, m)
	got, ok := c.Get(ctx, "abc1234")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.LongURL != m.LongURL {
		t.Fatalf("got %q, want %q", got.LongURL, m.LongURL)
	}
}

func TestSetSkipsMappingsExpiringWithinFloor(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	exp := time.Now().Add(30 * time.Second) // under the 60s floor
	m := &model.Mapping{ShortCode: "soon0001", LongURL: "https://example.com", ExpiresAt: &exp}

	c.Set(ctx, m)
	if _, ok := c.Get(ctx, "soon0001"); ok {
		t.Fatal("expected no cache entry for a mapping expiring within the floor")
	}
}

func TestMarkExpiredThenIsMarkedExpired(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	m := &model.Mapping{ShortCode: "gone0001", LongURL: "https://example.com", ExpiresAt: &exp}
	c.Set(ctx, m)

	c.MarkExpired(ctx, "gone0001", time.Minute)

	if _, ok := c.Get(ctx, "gone0001"); ok {
		t.Fatal("expected mapping removed after MarkExpired")
	}
	if !c.IsMarkedExpired(ctx, "gone0001") {
		t.Fatal("expected negative marker to be set")
	}
}

func TestGetMissOnUnknownKey(t *testing.T) {
	c, _ := newTestCache(t)
	if _, ok := c.Get(context.Background(), "nope0001"); ok {
		t.Fatal("expected miss on unknown key")
	}
}

func TestRemoveDropsEntry(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	m := &model.Mapping{ShortCode: "rm000001", LongURL: "https://example.com", ExpiresAt: &exp}
	c.Set(ctx, m)
	c.Remove(ctx, "rm000001")
	if _, ok := c.Get(ctx, "rm000001"); ok {
		t.Fatal("expected entry removed")
	}
}
