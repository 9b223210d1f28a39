package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/debt-recovery/backend/internal/events"
	"github.com/debt-recovery/backend/internal/models"
	"github.com/debt-recovery/backend/internal/repositories"
)

// In-memory ports for service tests. fakeCaseStore honors the same
// compare-and-swap contract as the pgx repository: a write only lands when
// the caller's version matches the stored row.

type fakeCaseStore struct {
	mu       sync.Mutex
	cases    map[uuid.UUID]*models.Case
	updates  int
	restores []uuid.UUID

	failUpdateFor map[uuid.UUID]error
}

func newFakeCaseStore(cases ...*models.Case) *fakeCaseStore {
	s := &fakeCaseStore{
		cases:         make(map[uuid.UUID]*models.Case),
		failUpdateFor: make(map[uuid.UUID]error),
	}
	for _, c := range cases {
		cp := *c
		s.cases[c.ID] = &cp
	}
	return s
}

func (s *fakeCaseStore) GetByID(_ context.Context, id uuid.UUID) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCaseStore) GetMany(_ context.Context, ids []uuid.UUID) ([]models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Case
	for _, id := range ids {
		if c, ok := s.cases[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeCaseStore) UpdateWithVersion(_ context.Context, c *models.Case, version time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failUpdateFor[c.ID]; ok {
		return time.Time{}, err
	}
	stored, ok := s.cases[c.ID]
	if !ok {
		return time.Time{}, repositories.ErrNotFound
	}
	if !stored.UpdatedAt.Equal(version) {
		return time.Time{}, repositories.ErrVersionConflict
	}

	cp := *c
	cp.UpdatedAt = stored.UpdatedAt.Add(time.Millisecond)
	s.cases[c.ID] = &cp
	c.UpdatedAt = cp.UpdatedAt
	s.updates++
	return cp.UpdatedAt, nil
}

func (s *fakeCaseStore) RestoreSnapshot(_ context.Context, snap repositories.CaseRestore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.cases[snap.CaseID]
	if !ok {
		return repositories.ErrNotFound
	}
	stored.Status = snap.Status
	stored.ClosureReason = snap.ClosureReason
	stored.ClosedAt = snap.ClosedAt
	stored.DCAID = snap.DCAID
	stored.UpdatedAt = stored.UpdatedAt.Add(time.Millisecond)
	s.restores = append(s.restores, snap.CaseID)
	return nil
}

func (s *fakeCaseStore) current(id uuid.UUID) *models.Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cases[id]
	cp := *c
	return &cp
}

type fakeTimelineStore struct {
	mu        sync.Mutex
	events    []models.TimelineEvent
	appendErr error
}

func (s *fakeTimelineStore) Append(_ context.Context, ev *models.TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now()
	s.events = append(s.events, *ev)
	return nil
}

func (s *fakeTimelineStore) FindByIdempotencyKey(_ context.Context, key string, caseID uuid.UUID) (*models.TimelineEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		ev := s.events[i]
		if ev.CaseID == caseID && ev.IdempotencyKey != nil && *ev.IdempotencyKey == key {
			return &ev, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *fakeTimelineStore) byType(eventType string) []models.TimelineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TimelineEvent
	for _, ev := range s.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
	logErr  error
}

func (s *fakeAuditStore) Log(_ context.Context, entry models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logErr != nil {
		return s.logErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, _ string, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, ev)
	return nil
}

type fakeDCAStore struct {
	mu         sync.Mutex
	increments []uuid.UUID
	getErr     error
}

func (s *fakeDCAStore) GetByID(_ context.Context, id uuid.UUID) (*models.DCA, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &models.DCA{ID: id, Name: "test-dca", Active: true}, nil
}

func (s *fakeDCAStore) IncrementActiveCases(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.increments = append(s.increments, id)
	return nil
}

type fakeAllocator struct {
	decision *AllocationDecision
	err      error
	calls    int
}

func (a *fakeAllocator) Allocate(_ context.Context, _ CaseSummary) (*AllocationDecision, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	if a.decision != nil {
		return a.decision, nil
	}
	return &AllocationDecision{DCAID: uuid.New(), DCAName: "scored-dca", Reason: "best fit"}, nil
}

var errStoreDown = errors.New("store down")
