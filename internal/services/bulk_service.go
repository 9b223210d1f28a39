package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/auth"
	"github.com/debt-recovery/backend/internal/events"
	"github.com/debt-recovery/backend/internal/models"
	"github.com/debt-recovery/backend/internal/repositories"
	"github.com/debt-recovery/backend/internal/statemachine"
)

// DefaultFailureThreshold aborts a batch once more than half of it fails.
const DefaultFailureThreshold = 0.5

// BulkService applies one transition or allocation across many cases.
// Writes are strictly sequential so the running failure rate and the
// rollback decision stay easy to reason about; that costs latency and is
// deliberate.
type BulkService struct {
	cases     CaseStore
	timeline  TimelineStore
	audit     AuditStore
	dcas      DCAStore
	allocator Allocator
	publisher events.Publisher
	log       *zap.Logger
}

func NewBulkService(cases CaseStore, timeline TimelineStore, audit AuditStore, dcas DCAStore, allocator Allocator, publisher events.Publisher, log *zap.Logger) *BulkService {
	return &BulkService{
		cases:     cases,
		timeline:  timeline,
		audit:     audit,
		dcas:      dcas,
		allocator: allocator,
		publisher: publisher,
		log:       log,
	}
}

type BulkStatusInput struct {
	CaseIDs          []uuid.UUID
	NewStatus        string
	Reason           string
	FailureThreshold float64 // 0 means DefaultFailureThreshold
}

type BulkAllocateInput struct {
	CaseIDs          []uuid.UUID
	DCAID            *uuid.UUID // nil = ask the allocation scorer per case
	Method           string
	FailureThreshold float64
}

// snapshotOf captures the fields the write phase may touch, taken before the
// mutation so rollback can put the whole prior state back.
func snapshotOf(c *models.Case) repositories.CaseRestore {
	return repositories.CaseRestore{
		CaseID:        c.ID,
		Status:        c.Status,
		ClosureReason: c.ClosureReason,
		ClosedAt:      c.ClosedAt,
		DCAID:         c.DCAID,
	}
}

// restoreInMemory undoes the in-place mutation of a loaded case after its
// write failed, so a later pass over the same slice sees clean values.
func restoreInMemory(c *models.Case, snap repositories.CaseRestore) {
	c.Status = snap.Status
	c.ClosureReason = snap.ClosureReason
	c.ClosedAt = snap.ClosedAt
	c.DCAID = snap.DCAID
}

func (s *BulkService) BulkChangeStatus(ctx context.Context, in BulkStatusInput, actor auth.Actor) BulkResult {
	threshold := in.FailureThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFailureThreshold
	}

	res := BulkResult{TotalProcessed: len(in.CaseIDs)}
	if len(in.CaseIDs) == 0 {
		res.Success = true
		return res
	}

	loaded, err := s.cases.GetMany(ctx, in.CaseIDs)
	if err != nil {
		s.log.Error("bulk fetch failed", zap.Error(err))
		return s.allFailed(in.CaseIDs, CodeInternalError, "failed to load cases")
	}
	byID := make(map[uuid.UUID]*models.Case, len(loaded))
	for i := range loaded {
		byID[loaded[i].ID] = &loaded[i]
	}

	// Fail-fast phase: validate every transition before any write. Cases
	// failing here are excluded from the write phase.
	type candidate struct {
		c *models.Case
	}
	var candidates []candidate
	var noops []uuid.UUID
	preFailed := map[uuid.UUID]*AppError{}
	for _, id := range in.CaseIDs {
		c, ok := byID[id]
		if !ok {
			preFailed[id] = &AppError{Code: CodeNotFound, Message: "case not found"}
			continue
		}
		if statemachine.IsTerminal(c.Status) {
			preFailed[id] = &AppError{Code: CodeInvalidTransition, Message: "case is in a terminal status", Details: map[string]any{
				"from": c.Status,
			}}
			continue
		}
		if c.Status == in.NewStatus {
			// Legal no-op, excluded from the write phase.
			noops = append(noops, id)
			continue
		}
		check, smErr := statemachine.ValidateBusinessRules(c.Status, in.NewStatus, statemachine.RuleContext{
			UserRole: actor.PerformerRole(),
			Reason:   in.Reason,
		})
		if smErr != nil {
			preFailed[id] = &AppError{Code: CodeInternalError, Message: smErr.Error()}
			continue
		}
		if !check.Valid {
			preFailed[id] = &AppError{Code: CodeInvalidTransition, Message: check.Reason, Details: map[string]any{
				"from":                c.Status,
				"allowed_transitions": check.AllowedTransitions,
			}}
			continue
		}
		candidates = append(candidates, candidate{c: c})
	}

	if rate(len(preFailed), len(in.CaseIDs)) > threshold {
		// Abort before the first write: zero successes, nothing to roll back.
		for _, id := range in.CaseIDs {
			appErr := preFailed[id]
			if appErr == nil {
				appErr = &AppError{Code: CodeInternalError, Message: "batch aborted by pre-validation failure threshold"}
			}
			res.Results = append(res.Results, BulkItemResult{CaseID: id.String(), Error: appErr})
		}
		res.FailureCount = len(in.CaseIDs)
		return res
	}

	// Write phase, sequential. The running failure rate counts every case
	// attempted so far, pre-validation failures included.
	var applied []repositories.CaseRestore
	itemResults := map[uuid.UUID]BulkItemResult{}
	for id, appErr := range preFailed {
		itemResults[id] = BulkItemResult{CaseID: id.String(), Error: appErr}
	}
	for _, id := range noops {
		itemResults[id] = BulkItemResult{CaseID: id.String(), Success: true}
	}
	failures := len(preFailed)
	attempted := len(preFailed) + len(noops)

	rollback := func() BulkResult {
		s.rollbackApplied(ctx, applied, actor)
		return s.allFailedWithRollback(in.CaseIDs, itemResults)
	}

	for _, cand := range candidates {
		c := cand.c
		attempted++

		snap := snapshotOf(c)
		version := c.UpdatedAt
		c.Status = in.NewStatus
		applyClosure(c, in.NewStatus, in.Reason)

		if _, err := s.cases.UpdateWithVersion(ctx, c, version); err != nil {
			restoreInMemory(c, snap)
			failures++
			itemResults[c.ID] = BulkItemResult{CaseID: c.ID.String(), Error: casWriteFailure(err).Error}
			if rate(failures, attempted) > threshold && len(applied) > 0 {
				return rollback()
			}
			continue
		}

		applied = append(applied, snap)
		itemResults[c.ID] = BulkItemResult{CaseID: c.ID.String(), Success: true}

		s.emitBulkWrite(ctx, c, actor, snap.Status, in.Reason)

		if rate(failures, attempted) > threshold && len(applied) > 0 {
			return rollback()
		}
	}

	return s.finish(in.CaseIDs, itemResults)
}

func (s *BulkService) BulkAllocate(ctx context.Context, in BulkAllocateInput, actor auth.Actor) BulkResult {
	threshold := in.FailureThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFailureThreshold
	}

	res := BulkResult{TotalProcessed: len(in.CaseIDs)}
	if len(in.CaseIDs) == 0 {
		res.Success = true
		return res
	}

	loaded, err := s.cases.GetMany(ctx, in.CaseIDs)
	if err != nil {
		s.log.Error("bulk fetch failed", zap.Error(err))
		return s.allFailed(in.CaseIDs, CodeInternalError, "failed to load cases")
	}
	byID := make(map[uuid.UUID]*models.Case, len(loaded))
	for i := range loaded {
		byID[loaded[i].ID] = &loaded[i]
	}

	// An explicit target must exist in the DCA registry before anything is
	// written; a bad id fails the whole batch up front.
	targetName := ""
	if in.DCAID != nil {
		dca, err := s.dcas.GetByID(ctx, *in.DCAID)
		if errors.Is(err, repositories.ErrNotFound) {
			return s.allFailed(in.CaseIDs, CodeNotFound, "target DCA not found")
		}
		if err != nil {
			s.log.Error("dca lookup failed", zap.Error(err), zap.String("dca_id", in.DCAID.String()))
			return s.allFailed(in.CaseIDs, CodeInternalError, "failed to load target DCA")
		}
		targetName = dca.Name
	}

	preFailed := map[uuid.UUID]*AppError{}
	var candidates []*models.Case
	for _, id := range in.CaseIDs {
		c, ok := byID[id]
		if !ok {
			preFailed[id] = &AppError{Code: CodeNotFound, Message: "case not found"}
			continue
		}
		check, smErr := statemachine.CanTransition(c.Status, statemachine.StatusAllocated)
		if smErr != nil {
			preFailed[id] = &AppError{Code: CodeInternalError, Message: smErr.Error()}
			continue
		}
		if !check.Valid {
			preFailed[id] = &AppError{Code: CodeInvalidTransition, Message: check.Reason, Details: map[string]any{
				"from":                c.Status,
				"allowed_transitions": check.AllowedTransitions,
			}}
			continue
		}
		candidates = append(candidates, c)
	}

	if rate(len(preFailed), len(in.CaseIDs)) > threshold {
		for _, id := range in.CaseIDs {
			appErr := preFailed[id]
			if appErr == nil {
				appErr = &AppError{Code: CodeInternalError, Message: "batch aborted by pre-validation failure threshold"}
			}
			res.Results = append(res.Results, BulkItemResult{CaseID: id.String(), Error: appErr})
		}
		res.FailureCount = len(in.CaseIDs)
		return res
	}

	var applied []repositories.CaseRestore
	itemResults := map[uuid.UUID]BulkItemResult{}
	for id, appErr := range preFailed {
		itemResults[id] = BulkItemResult{CaseID: id.String(), Error: appErr}
	}
	failures := len(preFailed)
	attempted := len(preFailed)

	for _, c := range candidates {
		attempted++

		dcaID := in.DCAID
		dcaName := targetName
		allocReason := in.Method
		if dcaID == nil {
			decision, err := s.allocator.Allocate(ctx, CaseSummary{
				CaseID:            c.ID,
				OutstandingAmount: c.OutstandingAmount,
				DaysPastDue:       c.DaysPastDue,
				Segment:           c.Segment,
				RegionID:          c.RegionID,
			})
			if err != nil {
				failures++
				itemResults[c.ID] = BulkItemResult{CaseID: c.ID.String(), Error: &AppError{
					Code: CodeInternalError, Message: fmt.Sprintf("allocation scorer failed: %v", err),
				}}
				if rate(failures, attempted) > threshold && len(applied) > 0 {
					s.rollbackApplied(ctx, applied, actor)
					return s.allFailedWithRollback(in.CaseIDs, itemResults)
				}
				continue
			}
			dcaID = &decision.DCAID
			dcaName = decision.DCAName
			allocReason = decision.Reason
		}

		snap := snapshotOf(c)
		oldStatus := c.Status
		version := c.UpdatedAt
		c.Status = statemachine.StatusAllocated
		c.DCAID = dcaID

		if _, err := s.cases.UpdateWithVersion(ctx, c, version); err != nil {
			restoreInMemory(c, snap)
			failures++
			itemResults[c.ID] = BulkItemResult{CaseID: c.ID.String(), Error: casWriteFailure(err).Error}
			if rate(failures, attempted) > threshold && len(applied) > 0 {
				s.rollbackApplied(ctx, applied, actor)
				return s.allFailedWithRollback(in.CaseIDs, itemResults)
			}
			continue
		}

		applied = append(applied, snap)
		itemResults[c.ID] = BulkItemResult{CaseID: c.ID.String(), Success: true}

		if err := s.dcas.IncrementActiveCases(ctx, *dcaID); err != nil {
			s.log.Warn("dca capacity increment failed", zap.Error(err), zap.String("dca_id", dcaID.String()))
		}

		if err := s.timeline.Append(ctx, &models.TimelineEvent{
			CaseID:      c.ID,
			Category:    models.TimelineCategoryDCA,
			EventType:   models.EventCaseAllocated,
			Description: fmt.Sprintf("case allocated to DCA %s", dcaID.String()),
			OldValue:    &oldStatus,
			NewValue:    &c.Status,
			Metadata: map[string]any{
				"dca_id":   dcaID.String(),
				"dca_name": dcaName,
				"reason":   allocReason,
			},
			PerformerID:   actor.PerformerID(),
			PerformerRole: actor.PerformerRole(),
		}); err != nil {
			s.log.Error("timeline append failed after committed allocation", zap.Error(err))
		}

		_ = s.publisher.Publish(ctx, events.StreamCase, events.Event{
			Type: events.EventCaseAllocated,
			Payload: map[string]any{
				"case_id": c.ID.String(),
				"dca_id":  dcaID.String(),
			},
		})

		if rate(failures, attempted) > threshold && len(applied) > 0 {
			s.rollbackApplied(ctx, applied, actor)
			return s.allFailedWithRollback(in.CaseIDs, itemResults)
		}
	}

	return s.finish(in.CaseIDs, itemResults)
}

// rollbackApplied restores the pre-batch snapshot of every already-applied
// write, closure and allocation fields included. Best-effort compensation: a
// case that refuses to roll back is logged and skipped, the rest still roll
// back.
func (s *BulkService) rollbackApplied(ctx context.Context, applied []repositories.CaseRestore, actor auth.Actor) {
	for _, snap := range applied {
		if err := s.cases.RestoreSnapshot(ctx, snap); err != nil {
			s.log.Error("rollback failed for case",
				zap.Error(err), zap.String("case_id", snap.CaseID.String()), zap.String("restore_status", snap.Status))
			continue
		}
		restoredStatus := snap.Status
		if err := s.timeline.Append(ctx, &models.TimelineEvent{
			CaseID:      snap.CaseID,
			Category:    models.TimelineCategorySystem,
			EventType:   models.EventStatusRestored,
			Description: fmt.Sprintf("bulk operation rolled back, status restored to %s", restoredStatus),
			NewValue:    &restoredStatus,
			Metadata: map[string]any{
				"initiated_by": actor.PerformerID(),
			},
			PerformerID:   models.PerformerSystem,
			PerformerRole: models.PerformerSystem,
		}); err != nil {
			s.log.Error("rollback timeline append failed", zap.Error(err), zap.String("case_id", snap.CaseID.String()))
		}
	}
}

func (s *BulkService) emitBulkWrite(ctx context.Context, c *models.Case, actor auth.Actor, oldStatus, reason string) {
	if err := s.timeline.Append(ctx, &models.TimelineEvent{
		CaseID:      c.ID,
		Category:    models.TimelineCategoryUser,
		EventType:   models.EventStatusChanged,
		Description: fmt.Sprintf("status changed from %s to %s (bulk)", oldStatus, c.Status),
		OldValue:    &oldStatus,
		NewValue:    &c.Status,
		Metadata: map[string]any{
			"reason": reason,
			"bulk":   true,
		},
		PerformerID:   actor.PerformerID(),
		PerformerRole: actor.PerformerRole(),
	}); err != nil {
		s.log.Error("timeline append failed after committed bulk write", zap.Error(err))
	}
	if err := s.audit.Log(ctx, models.AuditLog{
		ActorID:    actor.PerformerID(),
		ActorType:  auth.AuditActorType(actor),
		Action:     fmt.Sprintf("bulk_case_status_%s_to_%s", oldStatus, c.Status),
		EntityType: "case",
		EntityID:   &c.ID,
	}); err != nil {
		s.log.Error("audit write failed after committed bulk write", zap.Error(err))
	}
}

// allFailedWithRollback reports every case as failed after a rollback.
// Cases that had succeeded before the breach are marked failed because
// their writes were compensated away.
func (s *BulkService) allFailedWithRollback(ids []uuid.UUID, itemResults map[uuid.UUID]BulkItemResult) BulkResult {
	res := BulkResult{TotalProcessed: len(ids), RollbackPerformed: true}
	for _, id := range ids {
		item, ok := itemResults[id]
		if !ok || item.Success {
			item = BulkItemResult{CaseID: id.String(), Error: &AppError{
				Code: CodeInternalError, Message: "batch rolled back after failure threshold breach",
			}}
		}
		res.Results = append(res.Results, item)
	}
	res.FailureCount = len(ids)
	return res
}

func (s *BulkService) allFailed(ids []uuid.UUID, code, message string) BulkResult {
	res := BulkResult{TotalProcessed: len(ids), FailureCount: len(ids)}
	for _, id := range ids {
		res.Results = append(res.Results, BulkItemResult{CaseID: id.String(), Error: &AppError{Code: code, Message: message}})
	}
	return res
}

func (s *BulkService) finish(ids []uuid.UUID, itemResults map[uuid.UUID]BulkItemResult) BulkResult {
	res := BulkResult{TotalProcessed: len(ids)}
	for _, id := range ids {
		item := itemResults[id]
		if item.CaseID == "" {
			item = BulkItemResult{CaseID: id.String(), Error: &AppError{Code: CodeInternalError, Message: "case was not processed"}}
		}
		res.Results = append(res.Results, item)
		if item.Success {
			res.SuccessCount++
		} else {
			res.FailureCount++
		}
	}
	res.Success = res.FailureCount == 0
	return res
}

func rate(failures, attempted int) float64 {
	if attempted == 0 {
		return 0
	}
	return float64(failures) / float64(attempted)
}
