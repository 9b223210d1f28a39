package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/auth"
	"github.com/debt-recovery/backend/internal/events"
	"github.com/debt-recovery/backend/internal/models"
	"github.com/debt-recovery/backend/internal/repositories"
	"github.com/debt-recovery/backend/internal/statemachine"
	"github.com/google/uuid"
)

// ActionService applies exactly one case mutation at a time: idempotency
// probe, state-machine validation, compare-and-swap write, then best-effort
// timeline and audit emission. The case update is the only transactional
// step; emit failures are logged, never rolled back into the caller.
type ActionService struct {
	cases     CaseStore
	timeline  TimelineStore
	audit     AuditStore
	publisher events.Publisher
	log       *zap.Logger
}

func NewActionService(cases CaseStore, timeline TimelineStore, audit AuditStore, publisher events.Publisher, log *zap.Logger) *ActionService {
	return &ActionService{
		cases:     cases,
		timeline:  timeline,
		audit:     audit,
		publisher: publisher,
		log:       log,
	}
}

type ChangeStatusInput struct {
	CaseID          uuid.UUID
	NewStatus       string
	Reason          string
	RecoveredAmount int64
	IdempotencyKey  string
}

type ContactAttemptInput struct {
	CaseID         uuid.UUID
	Method         string
	Outcome        string
	Notes          string
	IdempotencyKey string
}

type PaymentInput struct {
	CaseID         uuid.UUID
	Amount         int64
	Method         string
	Reference      string
	IdempotencyKey string
}

// ReplayData is the payload of an idempotent retry: the mutation exactly as
// it was recorded when the keyed request first committed, plus the case's
// present state. The case may have moved on since, so the recorded values
// are authoritative for what this key did.
type ReplayData struct {
	Case       *models.Case `json:"case"`
	EventType  string       `json:"event_type"`
	OldValue   *string      `json:"old_value,omitempty"`
	NewValue   *string      `json:"new_value,omitempty"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// replayCheck short-circuits retried requests: a prior timeline event for
// (key, case id) means the mutation already committed once.
func (s *ActionService) replayCheck(ctx context.Context, key string, caseID uuid.UUID) (*ActionResult, error) {
	if key == "" {
		return nil, nil
	}
	ev, err := s.timeline.FindByIdempotencyKey(ctx, key, caseID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return &ActionResult{Success: true, Idempotent: true, Data: ReplayData{
		Case:       c,
		EventType:  ev.EventType,
		OldValue:   ev.OldValue,
		NewValue:   ev.NewValue,
		RecordedAt: ev.CreatedAt,
	}}, nil
}

func (s *ActionService) ChangeStatus(ctx context.Context, in ChangeStatusInput, actor auth.Actor) ActionResult {
	if replay, err := s.replayCheck(ctx, in.IdempotencyKey, in.CaseID); err != nil {
		return failure(CodeInternalError, "idempotency lookup failed", nil)
	} else if replay != nil {
		return *replay
	}

	c, err := s.cases.GetByID(ctx, in.CaseID)
	if errors.Is(err, repositories.ErrNotFound) {
		return failure(CodeNotFound, "case not found", nil)
	}
	if err != nil {
		return failure(CodeInternalError, "failed to load case", nil)
	}
	version := c.UpdatedAt

	// A terminal case accepts no further mutation. Replays of the closing
	// request are already answered by the idempotency probe above.
	if statemachine.IsTerminal(c.Status) {
		return failure(CodeInvalidTransition, "case is in a terminal status", map[string]any{
			"from": c.Status,
		})
	}

	// A same-state request is legal but changes nothing. Answer without
	// touching the row: a repeated submission must not re-stamp closure
	// fields or advance the version.
	if c.Status == in.NewStatus {
		return ActionResult{Success: true, Data: c}
	}

	check, smErr := statemachine.ValidateBusinessRules(c.Status, in.NewStatus, statemachine.RuleContext{
		UserRole:        actor.PerformerRole(),
		Reason:          in.Reason,
		RecoveredAmount: in.RecoveredAmount,
	})
	if smErr != nil {
		s.log.Error("unknown status in transition", zap.Error(smErr),
			zap.String("case_id", in.CaseID.String()))
		return failure(CodeInternalError, smErr.Error(), nil)
	}
	if !check.Valid {
		return failure(CodeInvalidTransition, check.Reason, map[string]any{
			"from":                c.Status,
			"to":                  in.NewStatus,
			"allowed_transitions": check.AllowedTransitions,
		})
	}

	oldStatus := c.Status
	c.Status = in.NewStatus
	applyRecovery(c, in.NewStatus, in.RecoveredAmount)
	applyClosure(c, in.NewStatus, in.Reason)

	if _, err := s.cases.UpdateWithVersion(ctx, c, version); err != nil {
		return casWriteFailure(err)
	}

	s.emit(ctx, c, actor, &models.TimelineEvent{
		CaseID:      c.ID,
		Category:    models.TimelineCategoryUser,
		EventType:   models.EventStatusChanged,
		Description: fmt.Sprintf("status changed from %s to %s", oldStatus, c.Status),
		OldValue:    &oldStatus,
		NewValue:    &c.Status,
		Metadata: map[string]any{
			"reason":           in.Reason,
			"recovered_amount": in.RecoveredAmount,
		},
		IdempotencyKey: optionalKey(in.IdempotencyKey),
	}, fmt.Sprintf("case_status_%s_to_%s", oldStatus, c.Status))

	_ = s.publisher.Publish(ctx, events.StreamCase, events.Event{
		Type: events.EventCaseStatusChanged,
		Payload: map[string]any{
			"case_id":    c.ID.String(),
			"old_status": oldStatus,
			"new_status": c.Status,
		},
	})

	return ActionResult{Success: true, Data: c}
}

func (s *ActionService) LogContactAttempt(ctx context.Context, in ContactAttemptInput, actor auth.Actor) ActionResult {
	if replay, err := s.replayCheck(ctx, in.IdempotencyKey, in.CaseID); err != nil {
		return failure(CodeInternalError, "idempotency lookup failed", nil)
	} else if replay != nil {
		return *replay
	}

	c, err := s.cases.GetByID(ctx, in.CaseID)
	if errors.Is(err, repositories.ErrNotFound) {
		return failure(CodeNotFound, "case not found", nil)
	}
	if err != nil {
		return failure(CodeInternalError, "failed to load case", nil)
	}
	version := c.UpdatedAt

	if statemachine.IsTerminal(c.Status) {
		return failure(CodeInvalidTransition, "case is in a terminal status", map[string]any{
			"from": c.Status,
		})
	}

	// Move to CUSTOMER_CONTACTED when the table allows it, otherwise stay
	// put (a same-state transition is always legal).
	target := c.Status
	if check, smErr := statemachine.CanTransition(c.Status, statemachine.StatusCustomerContacted); smErr == nil && check.Valid {
		target = statemachine.StatusCustomerContacted
	}

	oldStatus := c.Status
	now := time.Now()
	c.Status = target
	c.LastContactAt = &now

	if _, err := s.cases.UpdateWithVersion(ctx, c, version); err != nil {
		return casWriteFailure(err)
	}

	s.emit(ctx, c, actor, &models.TimelineEvent{
		CaseID:      c.ID,
		Category:    models.TimelineCategoryUser,
		EventType:   models.EventContactAttempt,
		Description: fmt.Sprintf("contact attempt via %s: %s", in.Method, in.Outcome),
		OldValue:    &oldStatus,
		NewValue:    &c.Status,
		Metadata: map[string]any{
			"method":  in.Method,
			"outcome": in.Outcome,
			"notes":   in.Notes,
		},
		IdempotencyKey: optionalKey(in.IdempotencyKey),
	}, "case_contact_attempt")

	return ActionResult{Success: true, Data: c}
}

func (s *ActionService) RecordPayment(ctx context.Context, in PaymentInput, actor auth.Actor) ActionResult {
	if replay, err := s.replayCheck(ctx, in.IdempotencyKey, in.CaseID); err != nil {
		return failure(CodeInternalError, "idempotency lookup failed", nil)
	} else if replay != nil {
		return *replay
	}

	c, err := s.cases.GetByID(ctx, in.CaseID)
	if errors.Is(err, repositories.ErrNotFound) {
		return failure(CodeNotFound, "case not found", nil)
	}
	if err != nil {
		return failure(CodeInternalError, "failed to load case", nil)
	}
	version := c.UpdatedAt

	// Derive the target status from the remaining balance and re-validate
	// that derived transition like any other.
	target := statemachine.StatusPartialRecovery
	if c.OutstandingAmount-in.Amount <= 0 {
		target = statemachine.StatusFullRecovery
	}

	check, smErr := statemachine.ValidateBusinessRules(c.Status, target, statemachine.RuleContext{
		UserRole:        actor.PerformerRole(),
		RecoveredAmount: in.Amount,
	})
	if smErr != nil {
		return failure(CodeInternalError, smErr.Error(), nil)
	}
	if !check.Valid {
		return failure(CodeInvalidTransition, check.Reason, map[string]any{
			"from":                c.Status,
			"to":                  target,
			"allowed_transitions": check.AllowedTransitions,
		})
	}

	oldStatus := c.Status
	c.Status = target
	applyRecovery(c, target, in.Amount)

	if _, err := s.cases.UpdateWithVersion(ctx, c, version); err != nil {
		return casWriteFailure(err)
	}

	s.emit(ctx, c, actor, &models.TimelineEvent{
		CaseID:      c.ID,
		Category:    models.TimelineCategoryUser,
		EventType:   models.EventPaymentReceived,
		Description: fmt.Sprintf("payment of %d %s received via %s", in.Amount, c.Currency, in.Method),
		OldValue:    &oldStatus,
		NewValue:    &c.Status,
		Metadata: map[string]any{
			"amount":    in.Amount,
			"method":    in.Method,
			"reference": in.Reference,
		},
		IdempotencyKey: optionalKey(in.IdempotencyKey),
	}, "case_payment_received")

	_ = s.publisher.Publish(ctx, events.StreamCase, events.Event{
		Type: events.EventPaymentReceived,
		Payload: map[string]any{
			"case_id": c.ID.String(),
			"amount":  in.Amount,
			"status":  c.Status,
		},
	})

	return ActionResult{Success: true, Data: c}
}

// WriteSystemEvent appends an AI/SLA timeline entry under the SYSTEM
// performer. It never touches case fields and so never competes for the
// optimistic lock.
func (s *ActionService) WriteSystemEvent(ctx context.Context, caseID uuid.UUID, category, eventType, description string, metadata map[string]any) error {
	return s.timeline.Append(ctx, &models.TimelineEvent{
		CaseID:        caseID,
		Category:      category,
		EventType:     eventType,
		Description:   description,
		Metadata:      metadata,
		PerformerID:   models.PerformerSystem,
		PerformerRole: models.PerformerSystem,
	})
}

// emit appends the timeline event and an audit row after the case update has
// committed. At-least-once best effort: failures are surfaced to the log and
// nowhere else.
func (s *ActionService) emit(ctx context.Context, c *models.Case, actor auth.Actor, ev *models.TimelineEvent, auditAction string) {
	ev.PerformerID = actor.PerformerID()
	ev.PerformerRole = actor.PerformerRole()
	if err := s.timeline.Append(ctx, ev); err != nil {
		s.log.Error("timeline append failed after committed case update",
			zap.Error(err), zap.String("case_id", c.ID.String()), zap.String("event_type", ev.EventType))
	}
	if err := s.audit.Log(ctx, models.AuditLog{
		ActorID:    actor.PerformerID(),
		ActorType:  auth.AuditActorType(actor),
		Action:     auditAction,
		EntityType: "case",
		EntityID:   &c.ID,
		Meta:       ev.Metadata,
	}); err != nil {
		s.log.Error("audit write failed after committed case update",
			zap.Error(err), zap.String("case_id", c.ID.String()))
	}
}

// applyRecovery books a recovered amount on a recovery-bearing transition.
// The applied amount is capped so recovered + outstanding always equals the
// original amount.
func applyRecovery(c *models.Case, target string, amount int64) {
	if amount <= 0 {
		return
	}
	if target != statemachine.StatusPartialRecovery && target != statemachine.StatusFullRecovery {
		return
	}
	applied := amount
	if applied > c.OutstandingAmount {
		applied = c.OutstandingAmount
	}
	c.RecoveredAmount += applied
	c.OutstandingAmount -= applied
}

// applyClosure stamps closure fields on terminal and write-off transitions.
func applyClosure(c *models.Case, target, reason string) {
	if target == statemachine.StatusWrittenOff && reason != "" {
		c.ClosureReason = &reason
	}
	if statemachine.IsTerminal(target) {
		now := time.Now()
		c.ClosedAt = &now
		if reason != "" {
			c.ClosureReason = &reason
		}
	}
}

func casWriteFailure(err error) ActionResult {
	switch {
	case errors.Is(err, repositories.ErrVersionConflict):
		return failure(CodeConcurrencyConflict, "case was modified concurrently, re-fetch and resubmit", nil)
	case errors.Is(err, repositories.ErrNotFound):
		return failure(CodeNotFound, "case not found", nil)
	default:
		return failure(CodeInternalError, "failed to update case", nil)
	}
}

func optionalKey(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}
