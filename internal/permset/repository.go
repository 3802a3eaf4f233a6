package permset

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/platform/db"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for permission sets.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Define inserts a set and its pairs in one transaction.
func (r *Repository) Define(ctx context.Context, set PermissionSet) (PermissionSet, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO permission_sets (name, description) VALUES ($1, $2)
			 RETURNING id, created_at`, set.Name, set.Description)
		if err := row.Scan(&set.ID, &set.CreatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ErrDuplicateName
			}
			return err
		}
		for _, pair := range set.Pairs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO permission_set_items (set_id, resource, action) VALUES ($1, $2, $3)`,
				set.ID, pair.Resource, pair.Action); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PermissionSet{}, err
	}
	return set, nil
}

// Resolve returns a snapshot copy of the named set's pairs.
func (r *Repository) Resolve(ctx context.Context, name string) ([]catalog.Pair, error) {
	var setID int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM permission_sets WHERE name = $1`, name).Scan(&setID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownSet
		}
		return nil, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT resource, action FROM permission_set_items WHERE set_id = $1 ORDER BY resource, action`, setID)
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

// List returns all sets with their pairs.
func (r *Repository) List(ctx context.Context) ([]PermissionSet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name, s.description, s.created_at, i.resource, i.action
		 FROM permission_sets s
		 LEFT JOIN permission_set_items i ON i.set_id = s.id
		 ORDER BY s.name, i.resource, i.action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []PermissionSet
	index := make(map[int64]int)
	for rows.Next() {
		var (
			set      PermissionSet
			resource *string
			action   *string
		)
		if err := rows.Scan(&set.ID, &set.Name, &set.Description, &set.CreatedAt, &resource, &action); err != nil {
			return nil, err
		}
		pos, ok := index[set.ID]
		if !ok {
			pos = len(sets)
			index[set.ID] = pos
			sets = append(sets, set)
		}
		if resource != nil && action != nil {
			sets[pos].Pairs = append(sets[pos].Pairs, catalog.Pair{
				Resource: catalog.Resource(*resource),
				Action:   catalog.Action(*action),
			})
		}
	}
	return sets, rows.Err()
}
