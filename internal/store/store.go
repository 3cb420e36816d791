// Package store is the authoritative Postgres-backed persistence layer
// (spec §6): url_mappings, id_counter, analytics_events and
// analytics_daily_summaries. It is the only component permitted to fail
// the primary operation (create, lookup) — everything above it degrades
// instead of propagating (spec §7).
package store

import (
	"context"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"

	"github.com/jordigilh/urlshort/internal/apierrors"
	"github.com/jordigilh/urlshort/internal/model"
)

// Store bundles the four repositories behind one Postgres connection
// pool. Individual repositories are also exposed as narrow interfaces
// (MappingStore, CounterStore, EventStore, SummaryStore) so components
// only declare the slice of the store they actually use.
type Store struct {
	db           *sqlx.DB
	queryTimeout time.Duration
}

// Open connects to Postgres via pgx's database/sql driver and wraps the
// connection in sqlx for struct scanning.
func Open(dsn string, maxOpenConns int, connMaxLifetime, queryTimeout time.Duration) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindFatal, "store-open", err, "opening store connection")
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if connMaxLifetime > 0 {
		db.SetConnMaxLifetime(connMaxLifetime)
	}
	return &Store{db: db, queryTimeout: queryTimeout}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, s.queryTimeout)
}

// MappingStore is the slice of Store needed by the lookup and mint paths.
type MappingStore interface {
	GetMapping(ctx context.Context, shortCode string) (*model.Mapping, error)
	InsertMapping(ctx context.Context, m *model.Mapping) error
	ExistsByShortCode(ctx context.Context, shortCode string) (bool, error)
	TouchAccess(ctx context.Context, shortCode string, at time.Time) error
	HottestMappings(ctx context.Context, limit int) ([]model.Mapping, error)
	SoftExpireBatch(ctx context.Context, now time.Time, batchSize int) ([]string, error)
	HardDeleteBatch(ctx context.Context, deletedBefore time.Time, batchSize int) ([]model.Mapping, error)
}

// CounterStore is the slice of Store needed by the counter allocator.
type CounterStore interface {
	ReserveRange(ctx context.Context, seed, rangeSize int64) (int64, error)
}

// EventStore is the slice of Store needed by the aggregation consumer (raw
// event retention is operator-discretionary per spec §6; writes here are
// best-effort and never block the aggregate upsert).
type EventStore interface {
	InsertEvent(ctx context.Context, ev model.ClickEvent) error
}

// SummaryStore is the slice of Store needed by the aggregation consumer's
// flusher and the analytics read path.
type SummaryStore interface {
	UpsertSummaryHour(ctx context.Context, shortCode string, date time.Time, hour int, delta HourDelta) error
	GetSummary(ctx context.Context, shortCode string, date time.Time) (*model.DailySummary, error)
}

// HourDelta is the additive contribution one flushed window makes to a
// daily summary's hour bucket. Summing HourDeltas for the same
// (shortCode, date, hour) must be commutative (spec §3 invariant).
type HourDelta struct {
	Clicks      int64
	UniqueIPs   int64
	Referrers   map[string]int64
	Countries   map[string]int64
	Devices     map[string]int64
	Browsers    map[string]int64
}
