// Package lookup implements the multi-layer lookup orchestration from
// spec §4.G: process-local LRU (E) -> distributed Redis cache (F) ->
// Postgres store, with golang.org/x/sync/singleflight collapsing
// concurrent misses for the same short code into one store query.
package lookup

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jordigilh/urlshort/internal/apierrors"
	"github.com/jordigilh/urlshort/internal/distcache"
	"github.com/jordigilh/urlshort/internal/lrucache"
	"github.com/jordigilh/urlshort/internal/model"
)

// Store is the persistence dependency.
type Store interface {
	GetMapping(ctx context.Context, shortCode string) (*model.Mapping, error)
	TouchAccess(ctx context.Context, shortCode string, at time.Time) error
	HottestMappings(ctx context.Context, limit int) ([]model.Mapping, error)
}

// Service orchestrates the three lookup layers behind a single Resolve call.
type Service struct {
	local  *lrucache.Cache
	remote *distcache.Cache
	store  Store
	group  singleflight.Group
	log    *zap.Logger
}

// New builds a Service. local and remote may be nil-valued fields inside
// their own types but must not be nil pointers here — callers always wire
// both layers per spec §4.G.
func New(local *lrucache.Cache, remote *distcache.Cache, store Store, log *zap.Logger) *Service {
	return &Service{local: local, remote: remote, store: store, log: log}
}

// Resolve returns the live mapping for shortCode, checking the LRU, then
// Redis, then Postgres, populating the faster layers on the way back up.
// A mapping past its expiry is treated as not-found and evicted from both
// caches so it never hands out a dead redirect.
func (s *Service) Resolve(ctx context.Context, shortCode string) (*model.Mapping, error) {
	if v, ok := s.local.Get(shortCode); ok {
		m := v.(*model.Mapping)
		if m.Expired(time.Now()) {
			s.invalidate(ctx, shortCode)
			return nil, apierrors.NotFound("mapping-expired", shortCode)
		}
		return m, nil
	}

	if s.remote.IsMarkedExpired(ctx, shortCode) {
		return nil, apierrors.NotFound("mapping-expired", shortCode)
	}

	if m, ok := s.remote.Get(ctx, shortCode); ok {
		if m.Expired(time.Now()) {
			s.invalidate(ctx, shortCode)
			return nil, apierrors.NotFound("mapping-expired", shortCode)
		}
		s.local.Set(shortCode, m)
		return m, nil
	}

	v, err, _ := s.group.Do(shortCode, func() (interface{}, error) {
		return s.store.GetMapping(ctx, shortCode)
	})
	if err != nil {
		return nil, err
	}
	m := v.(*model.Mapping)
	if m.Expired(time.Now()) {
		s.markExpiredLocked(ctx, shortCode)
		return nil, apierrors.NotFound("mapping-expired", shortCode)
	}

	s.populate(ctx, m)
	return m, nil
}

// populate pushes a freshly fetched mapping into both cache layers.
func (s *Service) populate(ctx context.Context, m *model.Mapping) {
	s.local.Set(m.ShortCode, m)
	s.remote.Set(ctx, m)
}

// invalidate drops a short code from both cache layers without marking it
// expired (used when the mapping is merely stale, e.g. after an update).
func (s *Service) invalidate(ctx context.Context, shortCode string) {
	s.local.Delete(shortCode)
	s.remote.Remove(ctx, shortCode)
}

// markExpiredLocked drops the LRU entry and writes a negative marker to
// Redis so subsequent misses short-circuit without hitting the store.
func (s *Service) markExpiredLocked(ctx context.Context, shortCode string) {
	s.local.Delete(shortCode)
	s.remote.MarkExpired(ctx, shortCode, time.Hour)
}

// Update invalidates a mapping's cache entries after it changes out from
// under the cache (e.g. an expiry sweep or an administrative edit).
func (s *Service) Update(ctx context.Context, m *model.Mapping) {
	s.invalidate(ctx, m.ShortCode)
	s.populate(ctx, m)
}

// MarkExpired is the public entry point used by the expiry sweeper.
func (s *Service) MarkExpired(ctx context.Context, shortCode string) {
	s.markExpiredLocked(ctx, shortCode)
}

// RecordAccess fires the store's access-count bump fire-and-forget; a
// failure here is logged but never propagated to the redirect caller.
func (s *Service) RecordAccess(ctx context.Context, shortCode string) {
	if err := s.store.TouchAccess(ctx, shortCode, time.Now()); err != nil {
		s.log.Warn("touch access failed", zap.String("shortCode", shortCode), zap.Error(err))
	}
}

// WarmUp preloads both cache layers with the hottest mappings, used on
// process start so a cold cache doesn't stampede the store.
func (s *Service) WarmUp(ctx context.Context, limit int) error {
	hottest, err := s.store.HottestMappings(ctx, limit)
	if err != nil {
		return apierrors.Wrap(apierrors.KindTransient, "warmup", err, "loading hottest mappings")
	}
	batch := make([]*model.Mapping, 0, len(hottest))
	for i := range hottest {
		m := hottest[i]
		s.local.Set(m.ShortCode, &m)
		batch = append(batch, &m)
	}
	s.remote.BatchSet(ctx, batch)
	s.log.Info("lookup cache warmed", zap.Int("count", len(batch)))
	return nil
}
