package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/sitepress/internal/repository"
)

// Repository implements the pipeline key/value store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var _ repository.KV = (*Repository)(nil)

// Get fetches the document stored under key.
func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM pipeline_state WHERE key = $1`
	var value []byte
	if err := r.pool.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Put replaces the document stored under key.
func (r *Repository) Put(ctx context.Context, key string, value []byte) error {
	const query = `INSERT INTO pipeline_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, query, key, value)
	return err
}

// PutIfAbsent inserts the document only when key is unset.
func (r *Repository) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	const query = `INSERT INTO pipeline_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, key, value)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the document stored under key.
func (r *Repository) Delete(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pipeline_state WHERE key = $1`, key)
	return err
}

// List returns every entry whose key starts with prefix.
func (r *Repository) List(ctx context.Context, prefix string) ([]repository.Entry, error) {
	const query = `SELECT key, value, updated_at FROM pipeline_state
		WHERE key LIKE $1 || '%'
		ORDER BY key`
	rows, err := r.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	entries := make([]repository.Entry, 0)
	for rows.Next() {
		var entry repository.Entry
		if err := rows.Scan(&entry.Key, &entry.Value, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
