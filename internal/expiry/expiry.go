// Package expiry implements the expiry lifecycle manager from spec §4.J:
// a soft-expire sweep that tombstones mappings past their expiry, and a
// hard-delete sweep that permanently removes old tombstones after the
// retention window, optionally archiving them first.
package expiry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jordigilh/urlshort/internal/archive"
	"github.com/jordigilh/urlshort/internal/model"
)

// Store is the persistence dependency.
type Store interface {
	SoftExpireBatch(ctx context.Context, now time.Time, batchSize int) ([]string, error)
	HardDeleteBatch(ctx context.Context, deletedBefore time.Time, batchSize int) ([]model.Mapping, error)
}

// Invalidator is the cache layer notified as codes are soft-expired.
type Invalidator interface {
	MarkExpired(ctx context.Context, shortCode string)
}

// Options configures both sweeps per spec §4.J's documented defaults.
type Options struct {
	SoftExpireInterval time.Duration
	SoftExpireLimit    int // max rows considered per sweep
	SoftExpireChunk    int // batch size per UPDATE
	HardDeleteInterval time.Duration
	RetentionPeriod    time.Duration
	HardDeleteChunk    int
}

// DefaultOptions mirrors the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		SoftExpireInterval: 5 * time.Minute,
		SoftExpireLimit:    10_000,
		SoftExpireChunk:    1_000,
		HardDeleteInterval: 24 * time.Hour,
		RetentionPeriod:    30 * 24 * time.Hour,
		HardDeleteChunk:    1_000,
	}
}

// Manager runs both sweeps on independent tickers.
type Manager struct {
	store    Store
	cache    Invalidator
	archiver archive.Archiver
	opts     Options
	log      *zap.Logger
}

// New builds a Manager. archiver may be archive.NoOp{} when cold storage
// isn't configured.
func New(store Store, cache Invalidator, archiver archive.Archiver, opts Options, log *zap.Logger) *Manager {
	if archiver == nil {
		archiver = archive.NoOp{}
	}
	return &Manager{store: store, cache: cache, archiver: archiver, opts: opts, log: log}
}

// Run drives both sweeps on their own tickers until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	softTicker := time.NewTicker(m.opts.SoftExpireInterval)
	hardTicker := time.NewTicker(m.opts.HardDeleteInterval)
	defer softTicker.Stop()
	defer hardTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-softTicker.C:
			if err := m.RunSoftExpire(ctx); err != nil {
				m.log.Warn("soft expire sweep failed", zap.Error(err))
			}
		case <-hardTicker.C:
			if err := m.RunHardDelete(ctx); err != nil {
				m.log.Warn("hard delete sweep failed", zap.Error(err))
			}
		}
	}
}

// RunSoftExpire tombstones up to SoftExpireLimit expired rows, chunked
// into SoftExpireChunk-sized batches, invalidating each code's cache
// entries as it goes.
func (m *Manager) RunSoftExpire(ctx context.Context) error {
	now := time.Now()
	total := 0
	for total < m.opts.SoftExpireLimit {
		codes, err := m.store.SoftExpireBatch(ctx, now, m.opts.SoftExpireChunk)
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			break
		}
		for _, code := range codes {
			m.cache.MarkExpired(ctx, code)
		}
		total += len(codes)
		if len(codes) < m.opts.SoftExpireChunk {
			break
		}
	}
	if total > 0 {
		m.log.Info("soft expire sweep complete", zap.Int("tombstoned", total))
	}
	return nil
}

// RunHardDelete permanently removes tombstones older than the retention
// period, chunked into HardDeleteChunk-sized batches. The store deletes
// each batch first and returns the removed rows, which are then passed to
// the archiver; an archival failure is logged and the rows stay deleted.
func (m *Manager) RunHardDelete(ctx context.Context) error {
	cutoff := time.Now().Add(-m.opts.RetentionPeriod)
	total := 0
	for {
		batch, err := m.store.HardDeleteBatch(ctx, cutoff, m.opts.HardDeleteChunk)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		if err := m.archiver.Archive(ctx, batch); err != nil {
			m.log.Warn("hard delete archival failed, rows already removed", zap.Error(err))
		}
		total += len(batch)
		if len(batch) < m.opts.HardDeleteChunk {
			break
		}
	}
	if total > 0 {
		m.log.Info("hard delete sweep complete", zap.Int("removed", total))
	}
	return nil
}
