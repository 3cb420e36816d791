package store

import (
	"context"
	"database/sql"

	"github.com/jordigilh/urlshort/internal/apierrors"
)

// ReserveRange implements the serialized counter reservation transaction
// from spec §4.B:
//
//  1. acquire an exclusive row lock on the singleton id_counter row,
//     initializing it to seed if absent;
//  2. read current-value as new-start;
//  3. write current-value <- new-start + rangeSize;
//  4. commit.
//
// Any failure rolls the transaction back and propagates; the caller
// (internal/idalloc) treats that as a single counter-reservation failure
// toward the circuit breaker's consecutive-failure count.
func (s *Store) ReserveRange(ctx context.Context, seed, rangeSize int64) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.KindTransient, "counter-begin", err, "beginning counter transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	var current int64
	err = tx.GetContext(ctx, &current,
		`SELECT current_value FROM id_counter WHERE counter_id = 1 FOR UPDATE`)
	switch {
	case err == sql.ErrNoRows:
		current = seed
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO id_counter (counter_id, current_value, last_updated)
			 VALUES (1, $1, now())`, seed); err != nil {
			return 0, apierrors.Wrap(apierrors.KindTransient, "counter-init", err, "initializing counter row")
		}
	case err != nil:
		return 0, apierrors.Wrap(apierrors.KindTransient, "counter-lock", err, "locking counter row")
	}

	newStart := current
	if _, err := tx.ExecContext(ctx,
		`UPDATE id_counter SET current_value = $1, last_updated = now() WHERE counter_id = 1`,
		newStart+rangeSize); err != nil {
		return 0, apierrors.Wrap(apierrors.KindTransient, "counter-advance", err, "advancing counter")
	}

	if err := tx.Commit(); err != nil {
		return 0, apierrors.Wrap(apierrors.KindTransient, "counter-commit", err, "committing counter reservation")
	}
	return newStart, nil
}
