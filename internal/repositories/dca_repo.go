package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/debt-recovery/backend/internal/models"
)

type DCARepo struct {
	pool *pgxpool.Pool
}

func NewDCARepo(pool *pgxpool.Pool) *DCARepo {
	return &DCARepo{pool: pool}
}

func (r *DCARepo) GetByID(ctx context.Context, id uuid.UUID) (*models.DCA, error) {
	var d models.DCA
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, active, capacity, active_cases, created_at
		FROM dcas WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Active, &d.Capacity, &d.ActiveCases, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// IncrementActiveCases bumps the agency's load counter after a successful
// allocation.
func (r *DCARepo) IncrementActiveCases(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE dcas SET active_cases = active_cases + 1 WHERE id = $1
	`, id)
	return err
}
