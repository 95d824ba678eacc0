package pharmacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists pharmacies in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindOrCreate returns the pharmacy for a (name, number) pair, creating it
// with empty contact details when the pair is new.
func (r *Repository) FindOrCreate(ctx context.Context, name, number string) (Pharmacy, error) {
	if r == nil || r.pool == nil {
		return Pharmacy{}, fmt.Errorf("pharmacy repo not initialised")
	}
	const find = `
SELECT id, name, number, address, phone, email, created_at
FROM pharmacies WHERE name = $1 AND number = $2`
	var p Pharmacy
	err := r.pool.QueryRow(ctx, find, name, number).
		Scan(&p.ID, &p.Name, &p.Number, &p.Address, &p.Phone, &p.Email, &p.CreatedAt)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Pharmacy{}, fmt.Errorf("pharmacy: find: %w", err)
	}

	// Concurrent first uploads for the same pharmacy race here; the
	// unique (name, number) constraint keeps a single row either way.
	const insert = `
INSERT INTO pharmacies (name, number, address, phone, email)
VALUES ($1, $2, '', '', '')
ON CONFLICT (name, number) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name, number, address, phone, email, created_at`
	err = r.pool.QueryRow(ctx, insert, name, number).
		Scan(&p.ID, &p.Name, &p.Number, &p.Address, &p.Phone, &p.Email, &p.CreatedAt)
	if err != nil {
		return Pharmacy{}, fmt.Errorf("pharmacy: create: %w", err)
	}
	return p, nil
}
