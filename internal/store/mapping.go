package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jordigilh/urlshort/internal/apierrors"
	"github.com/jordigilh/urlshort/internal/model"
)

// GetMapping fetches one non-tombstoned mapping by short code.
func (s *Store) GetMapping(ctx context.Context, shortCode string) (*model.Mapping, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var m model.Mapping
	err := s.db.GetContext(ctx, &m, `
		SELECT short_code, long_url, long_url_hash, created_at, expires_at,
		       user_id, is_custom_alias, is_deleted, deleted_at,
		       last_accessed_at, access_count
		FROM url_mappings
		WHERE short_code = $1 AND NOT is_deleted`, shortCode)
	if err == sql.ErrNoRows {
		return nil, apierrors.NotFound("mapping-not-found", shortCode)
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindTransient, "mapping-get", err, "fetching mapping")
	}
	return &m, nil
}

// InsertMapping persists a newly minted mapping. A unique-violation on
// short_code surfaces as a conflict, not a transient store error, since
// the caller (the alias path) needs to distinguish "already taken" from
// "the database is unhappy".
func (s *Store) InsertMapping(ctx context.Context, m *model.Mapping) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO url_mappings
			(short_code, long_url, long_url_hash, created_at, expires_at,
			 user_id, is_custom_alias, is_deleted, access_count)
		VALUES
			(:short_code, :long_url, :long_url_hash, :created_at, :expires_at,
			 :user_id, :is_custom_alias, false, 0)`, m)
	if isUniqueViolation(err) {
		return apierrors.Conflict("alias-taken", m.ShortCode)
	}
	if err != nil {
		return apierrors.Wrap(apierrors.KindTransient, "mapping-insert", err, "inserting mapping")
	}
	return nil
}

// ExistsByShortCode is used by the hash fallback generator and the alias
// path to probe for collisions without fetching the full row.
func (s *Store) ExistsByShortCode(ctx context.Context, shortCode string) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM url_mappings WHERE short_code = $1)`, shortCode)
	if err != nil {
		return false, apierrors.Wrap(apierrors.KindTransient, "mapping-exists", err, "probing short code")
	}
	return exists, nil
}

// TouchAccess bumps last_accessed_at and access_count after a redirect
// hit. Called fire-and-forget by the lookup path; failures here must
// never fail a redirect.
func (s *Store) TouchAccess(ctx context.Context, shortCode string, at time.Time) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE url_mappings
		SET last_accessed_at = $2, access_count = access_count + 1
		WHERE short_code = $1`, shortCode, at)
	if err != nil {
		return apierrors.Wrap(apierrors.KindTransient, "mapping-touch", err, "touching access stats")
	}
	return nil
}

// HottestMappings supports the lookup layer's warm-up path (spec §4.G).
func (s *Store) HottestMappings(ctx context.Context, limit int) ([]model.Mapping, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var out []model.Mapping
	err := s.db.SelectContext(ctx, &out, `
		SELECT short_code, long_url, long_url_hash, created_at, expires_at,
		       user_id, is_custom_alias, is_deleted, deleted_at,
		       last_accessed_at, access_count
		FROM url_mappings
		WHERE NOT is_deleted
		ORDER BY access_count DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindTransient, "mapping-warmup", err, "listing hottest mappings")
	}
	return out, nil
}

// SoftExpireBatch tombstones up to batchSize expired, non-deleted
// mappings and returns the affected short codes. Used by the expiry
// manager's soft-expire sweep (spec §4.J).
func (s *Store) SoftExpireBatch(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		UPDATE url_mappings
		SET is_deleted = true, deleted_at = $1
		WHERE short_code IN (
			SELECT short_code FROM url_mappings
			WHERE expires_at <= $1 AND NOT is_deleted
			ORDER BY short_code
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING short_code`, now, batchSize)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindTransient, "soft-expire-batch", err, "soft-expiring batch")
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, apierrors.Wrap(apierrors.KindTransient, "soft-expire-scan", err, "scanning soft-expire result")
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// HardDeleteBatch permanently removes tombstoned rows older than
// deletedBefore and returns the removed rows, so the caller can archive
// them after the delete (the optional cold-storage step).
func (s *Store) HardDeleteBatch(ctx context.Context, deletedBefore time.Time, batchSize int) ([]model.Mapping, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, `
		DELETE FROM url_mappings
		WHERE short_code IN (
			SELECT short_code FROM url_mappings
			WHERE is_deleted AND deleted_at < $1
			ORDER BY short_code
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING short_code, long_url, long_url_hash, created_at, expires_at,
		          user_id, is_custom_alias, is_deleted, deleted_at,
		          last_accessed_at, access_count`, deletedBefore, batchSize)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindTransient, "hard-delete-batch", err, "hard-deleting batch")
	}
	defer rows.Close()

	var out []model.Mapping
	for rows.Next() {
		var m model.Mapping
		if err := rows.StructScan(&m); err != nil {
			return nil, apierrors.Wrap(apierrors.KindTransient, "hard-delete-scan", err, "scanning hard-delete result")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	type sqlState interface{ SQLState() string }
	if pe, ok := err.(sqlState); ok {
		return pe.SQLState() == "23505"
	}
	return false
}
