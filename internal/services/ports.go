package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/debt-recovery/backend/internal/models"
	"github.com/debt-recovery/backend/internal/repositories"
)

// Persistence ports. The pgx repositories satisfy them in production; tests
// swap in in-memory fakes. UpdateWithVersion must honor "update only if
// version unchanged" and report repositories.ErrVersionConflict on a lost
// race.

type CaseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error)
	GetMany(ctx context.Context, ids []uuid.UUID) ([]models.Case, error)
	UpdateWithVersion(ctx context.Context, c *models.Case, version time.Time) (time.Time, error)
	RestoreSnapshot(ctx context.Context, snap repositories.CaseRestore) error
}

type TimelineStore interface {
	Append(ctx context.Context, ev *models.TimelineEvent) error
	FindByIdempotencyKey(ctx context.Context, key string, caseID uuid.UUID) (*models.TimelineEvent, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type DCAStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.DCA, error)
	IncrementActiveCases(ctx context.Context, id uuid.UUID) error
}

// Allocator picks a collection agency for a case. Backed by the external
// scoring service in production.
type Allocator interface {
	Allocate(ctx context.Context, summary CaseSummary) (*AllocationDecision, error)
}
