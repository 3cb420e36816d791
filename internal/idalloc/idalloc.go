// Package idalloc implements the counter allocator from spec §4.B: an
// in-process monotonic range backed by a serialized Postgres reservation
// transaction (internal/store.ReserveRange). Unused IDs in an abandoned
// range are simply skipped on crash — gaps are acceptable per spec.
package idalloc

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jordigilh/urlshort/internal/apierrors"
	"github.com/jordigilh/urlshort/internal/model"
)

// RangeReserver is the store dependency: reserve a fresh [start, start+size)
// range, serialized by the store's row lock.
type RangeReserver interface {
	ReserveRange(ctx context.Context, seed, rangeSize int64) (int64, error)
}

// Allocator hands out strictly monotonic IDs within one process. Two
// Allocator instances (in different processes) never share a range,
// since each reservation strictly advances the shared counter row.
type Allocator struct {
	mu        sync.Mutex
	store     RangeReserver
	seed      int64
	rangeSize int64
	current   model.CounterRange
	log       *zap.Logger
}

// New builds an Allocator. The in-process range starts exhausted so the
// first NextID call reserves a fresh range lazily.
func New(store RangeReserver, seed, rangeSize int64, log *zap.Logger) *Allocator {
	if rangeSize <= 0 {
		rangeSize = 10_000
	}
	return &Allocator{
		store:     store,
		seed:      seed,
		rangeSize: rangeSize,
		log:       log,
	}
}

// NextID returns the next monotonic ID, reserving a new range from the
// store when the current one is exhausted.
func (a *Allocator) NextID(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current.Exhausted() {
		if err := a.reserveLocked(ctx); err != nil {
			return 0, err
		}
	}

	id := a.current.Cursor
	a.current.Cursor++
	return id, nil
}

func (a *Allocator) reserveLocked(ctx context.Context) error {
	newStart, err := a.store.ReserveRange(ctx, a.seed, a.rangeSize)
	if err != nil {
		a.log.Warn("counter range reservation failed", zap.Error(err))
		return apierrors.Wrap(apierrors.KindTransient, "counter-reserve", err, "reserving id range")
	}
	a.current = model.CounterRange{Start: newStart, End: newStart + a.rangeSize, Cursor: newStart}
	a.log.Info("reserved counter range",
		zap.Int64("start", a.current.Start), zap.Int64("end", a.current.End))
	return nil
}

// Snapshot returns the current in-process range for diagnostics/tests.
func (a *Allocator) Snapshot() model.CounterRange {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
