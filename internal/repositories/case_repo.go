package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/debt-recovery/backend/internal/models"
)

// ErrNotFound reports a missing row.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict reports a compare-and-swap update that lost the race:
// the row's updated_at no longer matches the version the caller read.
var ErrVersionConflict = errors.New("version conflict")

const caseColumns = `id, reference, status, debtor_name, original_amount, outstanding_amount,
	       recovered_amount, currency, dca_id, agent_id, region_id, days_past_due, segment,
	       closure_reason, closed_at, last_contact_at, created_at, updated_at`

type CaseRepo struct {
	pool *pgxpool.Pool
}

func NewCaseRepo(pool *pgxpool.Pool) *CaseRepo {
	return &CaseRepo{pool: pool}
}

func scanCase(row pgx.Row, c *models.Case) error {
	return row.Scan(&c.ID, &c.Reference, &c.Status, &c.DebtorName, &c.OriginalAmount, &c.OutstandingAmount,
		&c.RecoveredAmount, &c.Currency, &c.DCAID, &c.AgentID, &c.RegionID, &c.DaysPastDue, &c.Segment,
		&c.ClosureReason, &c.ClosedAt, &c.LastContactAt, &c.CreatedAt, &c.UpdatedAt)
}

func (r *CaseRepo) Create(ctx context.Context, c *models.Case) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO cases (reference, status, debtor_name, original_amount, outstanding_amount,
		                   recovered_amount, currency, dca_id, agent_id, region_id, days_past_due, segment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`, c.Reference, c.Status, c.DebtorName, c.OriginalAmount, c.OutstandingAmount,
		c.RecoveredAmount, c.Currency, c.DCAID, c.AgentID, c.RegionID, c.DaysPastDue, c.Segment,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *CaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	var c models.Case
	err := scanCase(r.pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id), &c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepo) GetMany(ctx context.Context, ids []uuid.UUID) ([]models.Case, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []models.Case
	for rows.Next() {
		var c models.Case
		if err := scanCase(rows, &c); err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// UpdateWithVersion writes the case's mutable fields only if the row still
// carries the version (updated_at) the caller read. Returns the new version
// on success and ErrVersionConflict when a concurrent writer got there
// first.
func (r *CaseRepo) UpdateWithVersion(ctx context.Context, c *models.Case, version time.Time) (time.Time, error) {
	var newVersion time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE cases SET status = $1, outstanding_amount = $2, recovered_amount = $3,
		       dca_id = $4, agent_id = $5, closure_reason = $6, closed_at = $7,
		       last_contact_at = $8, updated_at = clock_timestamp()
		WHERE id = $9 AND updated_at = $10
		RETURNING updated_at
	`, c.Status, c.OutstandingAmount, c.RecoveredAmount,
		c.DCAID, c.AgentID, c.ClosureReason, c.ClosedAt,
		c.LastContactAt, c.ID, version,
	).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row matched: either the case is gone or the version moved.
		var exists bool
		if checkErr := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cases WHERE id = $1)`, c.ID).Scan(&exists); checkErr != nil {
			return time.Time{}, checkErr
		}
		if !exists {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, ErrVersionConflict
	}
	if err != nil {
		return time.Time{}, err
	}
	return newVersion, nil
}

// CaseRestore carries the pre-write values of every field a bulk write can
// touch. Rollback puts all of them back, not just the status: a compensated
// close must not leave closure fields behind.
type CaseRestore struct {
	CaseID        uuid.UUID
	Status        string
	ClosureReason *string
	ClosedAt      *time.Time
	DCAID         *uuid.UUID
}

// RestoreSnapshot unconditionally rewrites the snapshot fields. Used only by
// the bulk rollback path, which compensates already-applied writes.
func (r *CaseRepo) RestoreSnapshot(ctx context.Context, snap CaseRestore) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE cases SET status = $1, closure_reason = $2, closed_at = $3, dca_id = $4,
		       updated_at = clock_timestamp()
		WHERE id = $5
	`, snap.Status, snap.ClosureReason, snap.ClosedAt, snap.DCAID, snap.CaseID)
	return err
}

type CaseFilter struct {
	Statuses []string
	Regions  []string // empty = unrestricted; scope is enforced before the repo is reached
	DCAID    *uuid.UUID
	AgentID  *uuid.UUID
	Limit    int
	Offset   int
}

func (r *CaseRepo) List(ctx context.Context, f CaseFilter) ([]models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases`
	args := []any{}
	argIdx := 1
	where := []string{}

	if len(f.Statuses) > 0 {
		where = append(where, fmt.Sprintf("status = ANY($%d)", argIdx))
		args = append(args, f.Statuses)
		argIdx++
	}
	if len(f.Regions) > 0 {
		where = append(where, fmt.Sprintf("region_id = ANY($%d)", argIdx))
		args = append(args, f.Regions)
		argIdx++
	}
	if f.DCAID != nil {
		where = append(where, fmt.Sprintf("dca_id = $%d", argIdx))
		args = append(args, *f.DCAID)
		argIdx++
	}
	if f.AgentID != nil {
		where = append(where, fmt.Sprintf("agent_id = $%d", argIdx))
		args = append(args, *f.AgentID)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []models.Case
	for rows.Next() {
		var c models.Case
		if err := scanCase(rows, &c); err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// GetStaleContactCases returns active cases whose last contact is older than
// the SLA window. Used by the worker's SLA sweep.
func (r *CaseRepo) GetStaleContactCases(ctx context.Context, activeStatuses []string, olderThan time.Duration) ([]models.Case, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+caseColumns+` FROM cases
		WHERE status = ANY($1)
		  AND COALESCE(last_contact_at, created_at) < now() - ($2 || ' seconds')::interval
	`, activeStatuses, fmt.Sprintf("%d", int(olderThan.Seconds())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []models.Case
	for rows.Next() {
		var c models.Case
		if err := scanCase(rows, &c); err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}
