package catalog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActive returns all active catalog entries.
func (r *Repository) ListActive(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT resource, action, allowed_roles, is_active, created_at, updated_at
		 FROM permissions WHERE is_active ORDER BY resource, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Resource, &p.Action, &p.AllowedRoles, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// DefaultsForRole returns active (resource, action) pairs granted to role.
func (r *Repository) DefaultsForRole(ctx context.Context, role string) ([]Pair, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT resource, action FROM permissions
		 WHERE is_active AND $1 = ANY(allowed_roles)
		 ORDER BY resource, action`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Resource, &p.Action); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// Upsert creates or replaces the tuple identified by (resource, action).
func (r *Repository) Upsert(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (resource, action, allowed_roles, is_active)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (resource, action)
		 DO UPDATE SET allowed_roles = EXCLUDED.allowed_roles,
		               is_active = EXCLUDED.is_active,
		               updated_at = NOW()
		 RETURNING resource, action, allowed_roles, is_active, created_at, updated_at`,
		p.Resource, p.Action, p.AllowedRoles, p.IsActive)
	var out Permission
	if err := row.Scan(&out.Resource, &out.Action, &out.AllowedRoles, &out.IsActive, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Permission{}, err
	}
	return out, nil
}

// Deactivate flips is_active off without deleting the row.
func (r *Repository) Deactivate(ctx context.Context, resource Resource, action Action) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE permissions SET is_active = FALSE, updated_at = NOW()
		 WHERE resource = $1 AND action = $2`, resource, action)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
