package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/debt-recovery/backend/internal/models"
)

// TimelineRepo is append-only: rows are never updated or deleted.
type TimelineRepo struct {
	pool *pgxpool.Pool
}

func NewTimelineRepo(pool *pgxpool.Pool) *TimelineRepo {
	return &TimelineRepo{pool: pool}
}

func (r *TimelineRepo) Append(ctx context.Context, ev *models.TimelineEvent) error {
	metaBytes, _ := json.Marshal(ev.Metadata)
	return r.pool.QueryRow(ctx, `
		INSERT INTO timeline_events (case_id, category, event_type, description, old_value, new_value,
		                             metadata, performer_id, performer_role, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`, ev.CaseID, ev.Category, ev.EventType, ev.Description, ev.OldValue, ev.NewValue,
		metaBytes, ev.PerformerID, ev.PerformerRole, ev.IdempotencyKey,
	).Scan(&ev.ID, &ev.CreatedAt)
}

// FindByIdempotencyKey looks up a prior event for (key, case id), the dedup
// probe for retried mutation requests. ErrNotFound means no prior attempt.
func (r *TimelineRepo) FindByIdempotencyKey(ctx context.Context, key string, caseID uuid.UUID) (*models.TimelineEvent, error) {
	var ev models.TimelineEvent
	var metaBytes []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, case_id, category, event_type, description, old_value, new_value,
		       metadata, performer_id, performer_role, idempotency_key, created_at
		FROM timeline_events WHERE idempotency_key = $1 AND case_id = $2
		ORDER BY created_at ASC LIMIT 1
	`, key, caseID).Scan(&ev.ID, &ev.CaseID, &ev.Category, &ev.EventType, &ev.Description, &ev.OldValue, &ev.NewValue,
		&metaBytes, &ev.PerformerID, &ev.PerformerRole, &ev.IdempotencyKey, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(metaBytes, &ev.Metadata)
	return &ev, nil
}

func (r *TimelineRepo) ListByCase(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]models.TimelineEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, case_id, category, event_type, description, old_value, new_value,
		       metadata, performer_id, performer_role, idempotency_key, created_at
		FROM timeline_events WHERE case_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, caseID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.TimelineEvent
	for rows.Next() {
		var ev models.TimelineEvent
		var metaBytes []byte
		if err := rows.Scan(&ev.ID, &ev.CaseID, &ev.Category, &ev.EventType, &ev.Description, &ev.OldValue, &ev.NewValue,
			&metaBytes, &ev.PerformerID, &ev.PerformerRole, &ev.IdempotencyKey, &ev.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(metaBytes, &ev.Metadata)
		events = append(events, ev)
	}
	return events, nil
}
