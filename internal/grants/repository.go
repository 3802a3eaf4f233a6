package grants

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scholaris/scholaris-access/internal/catalog"
)

// Repository provides PostgreSQL backed persistence for user grants.
//
// The unique index on (user_id, resource, action) makes the upsert atomic
// per tuple; concurrent grants to the same tuple serialize on the index and
// the last writer wins, which is exactly the superseding semantic.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert inserts the grant or supersedes the existing one for the tuple.
func (r *Repository) Upsert(ctx context.Context, g Grant) (Grant, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO user_grants (id, user_id, resource, action, granted_by, reason, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, resource, action)
		 DO UPDATE SET id = EXCLUDED.id,
		               granted_by = EXCLUDED.granted_by,
		               reason = EXCLUDED.reason,
		               expires_at = EXCLUDED.expires_at,
		               revoked_at = NULL,
		               created_at = NOW()
		 RETURNING id, user_id, resource, action, granted_by, reason, expires_at, created_at, revoked_at`,
		g.ID, g.UserID, g.Resource, g.Action, g.GrantedBy, g.Reason, g.ExpiresAt)
	var out Grant
	if err := row.Scan(&out.ID, &out.UserID, &out.Resource, &out.Action, &out.GrantedBy, &out.Reason, &out.ExpiresAt, &out.CreatedAt, &out.RevokedAt); err != nil {
		return Grant{}, err
	}
	return out, nil
}

// Revoke marks the matching active grant revoked. Reports whether a row
// changed; revoking a grant the user never held is a no-op, not an error.
func (r *Repository) Revoke(ctx context.Context, userID int64, resource catalog.Resource, action catalog.Action) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_grants SET revoked_at = NOW()
		 WHERE user_id = $1 AND resource = $2 AND action = $3 AND revoked_at IS NULL`,
		userID, resource, action)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ActiveGrantsFor returns the pairs held by the user at the given time.
// Passive expiry lives in this predicate.
func (r *Repository) ActiveGrantsFor(ctx context.Context, userID int64, at time.Time) ([]catalog.Pair, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT resource, action FROM user_grants
		 WHERE user_id = $1 AND revoked_at IS NULL
		   AND (expires_at IS NULL OR expires_at > $2)
		 ORDER BY resource, action`, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pairs []catalog.Pair
	for rows.Next() {
		var p catalog.Pair
		if err := rows.Scan(&p.Resource, &p.Action); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// ActiveGrantDetails returns full active grant rows for the user.
func (r *Repository) ActiveGrantDetails(ctx context.Context, userID int64, at time.Time) ([]Grant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, resource, action, granted_by, reason, expires_at, created_at, revoked_at
		 FROM user_grants
		 WHERE user_id = $1 AND revoked_at IS NULL
		   AND (expires_at IS NULL OR expires_at > $2)
		 ORDER BY resource, action`, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGrants(rows)
}

// ListForUser returns the user's retained grant rows, newest first, including
// revoked and expired ones. Superseding rewrites a tuple's row in place, so
// per-tuple history beyond the latest grant lives in audit_logs.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, resource, action, granted_by, reason, expires_at, created_at, revoked_at
		 FROM user_grants WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGrants(rows)
}

// DeleteExpiredBefore removes grants whose expiry passed before the cutoff.
// Storage hygiene only; the resolver never counts them regardless.
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_grants WHERE expires_at IS NOT NULL AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanGrants(rows rowScanner) ([]Grant, error) {
	var out []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.ID, &g.UserID, &g.Resource, &g.Action, &g.GrantedBy, &g.Reason, &g.ExpiresAt, &g.CreatedAt, &g.RevokedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
