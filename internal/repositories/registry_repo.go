package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/debt-recovery/backend/internal/models"
)

// RegistryRepo reads the active-service registry used to validate service
// tokens.
type RegistryRepo struct {
	pool *pgxpool.Pool
}

func NewRegistryRepo(pool *pgxpool.Pool) *RegistryRepo {
	return &RegistryRepo{pool: pool}
}

// FindService returns the registry record for the name regardless of the
// active flag; callers distinguish "not found" from "inactive".
func (r *RegistryRepo) FindService(ctx context.Context, name string) (*models.ServiceRecord, error) {
	var s models.ServiceRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, active, allowed_ops, ip_allowlist, last_used_at, created_at
		FROM service_registry WHERE name = $1
	`, name).Scan(&s.ID, &s.Name, &s.Active, &s.AllowedOps, &s.IPAllowlist, &s.LastUsedAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TouchLastUsed stamps the registry row. Best-effort: callers ignore the
// error and two racing services may overwrite each other harmlessly.
func (r *RegistryRepo) TouchLastUsed(ctx context.Context, name string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE service_registry SET last_used_at = now() WHERE name = $1
	`, name)
	return err
}
