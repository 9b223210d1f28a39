package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegionRepo reads region grants. Grant lifecycle is owned by the admin
// workflow; this core never writes here.
type RegionRepo struct {
	pool *pgxpool.Pool
}

func NewRegionRepo(pool *pgxpool.Pool) *RegionRepo {
	return &RegionRepo{pool: pool}
}

// GetAccessibleRegions returns the region ids granted to the user. An empty
// result is meaningful: it denies all region-scoped access for non-global
// roles. Resolved on every request so revocations take effect immediately.
func (r *RegionRepo) GetAccessibleRegions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT region_id FROM region_grants WHERE user_id = $1 ORDER BY region_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regions []string
	for rows.Next() {
		var region string
		if err := rows.Scan(&region); err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}
	return regions, nil
}

func (r *RegionRepo) HasRegionAccess(ctx context.Context, userID uuid.UUID, regionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM region_grants WHERE user_id = $1 AND region_id = $2)
	`, userID, regionID).Scan(&exists)
	return exists, err
}
