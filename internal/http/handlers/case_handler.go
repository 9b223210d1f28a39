package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/http/dto"
	"github.com/debt-recovery/backend/internal/middleware"
	"github.com/debt-recovery/backend/internal/models"
	"github.com/debt-recovery/backend/internal/repositories"
	"github.com/debt-recovery/backend/internal/services"
	"github.com/debt-recovery/backend/internal/statemachine"
)

type CaseHandler struct {
	actions   *services.ActionService
	cases     *repositories.CaseRepo
	timeline  *repositories.TimelineRepo
	audit     *repositories.AuditRepo
	allocator *services.AllocationClient
	log       *zap.Logger
}

func NewCaseHandler(actions *services.ActionService, cases *repositories.CaseRepo, timeline *repositories.TimelineRepo, audit *repositories.AuditRepo, allocator *services.AllocationClient, log *zap.Logger) *CaseHandler {
	return &CaseHandler{
		actions:   actions,
		cases:     cases,
		timeline:  timeline,
		audit:     audit,
		allocator: allocator,
		log:       log,
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: dto.ErrorBody{Code: "BAD_REQUEST", Message: message},
	})
}

// writeActionResult maps an ActionResult onto an HTTP status.
func writeActionResult(c *fiber.Ctx, res services.ActionResult) error {
	if res.Success {
		return c.JSON(res)
	}
	status := fiber.StatusInternalServerError
	switch res.Error.Code {
	case services.CodeNotFound:
		status = fiber.StatusNotFound
	case services.CodeInvalidTransition:
		status = fiber.StatusUnprocessableEntity
	case services.CodeConcurrencyConflict:
		status = fiber.StatusConflict
	case services.CodeForbidden, services.CodeRegionAccessDenied:
		status = fiber.StatusForbidden
	}
	return c.Status(status).JSON(res)
}

func (h *CaseHandler) caseIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

// loadScoped loads the case and enforces the actor's region scope. When ok
// is false the rejection response has already been written.
func (h *CaseHandler) loadScoped(c *fiber.Ctx, id uuid.UUID) (*models.Case, bool) {
	cs, err := h.cases.GetByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: dto.ErrorBody{Code: services.CodeNotFound, Message: "case not found"},
			})
		} else {
			_ = c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error: dto.ErrorBody{Code: services.CodeInternalError, Message: "failed to load case"},
			})
		}
		return nil, false
	}
	if appErr := services.CanAccessCase(middleware.GetActor(c), cs); appErr != nil {
		_ = c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: dto.ErrorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details},
		})
		return nil, false
	}
	return cs, true
}

func (h *CaseHandler) ChangeStatus(c *fiber.Ctx) error {
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.NewStatus == "" {
		return badRequest(c, "new_status is required")
	}
	id, err := h.caseIDParam(c)
	if err != nil {
		return badRequest(c, "invalid case id")
	}
	if _, ok := h.loadScoped(c, id); !ok {
		return nil
	}

	res := h.actions.ChangeStatus(c.Context(), services.ChangeStatusInput{
		CaseID:          id,
		NewStatus:       req.NewStatus,
		Reason:          req.Reason,
		RecoveredAmount: req.RecoveredAmount,
		IdempotencyKey:  req.IdempotencyKey,
	}, middleware.GetActor(c))
	return writeActionResult(c, res)
}

func (h *CaseHandler) LogContactAttempt(c *fiber.Ctx) error {
	var req dto.ContactAttemptRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.Method == "" || req.Outcome == "" {
		return badRequest(c, "method and outcome are required")
	}
	id, err := h.caseIDParam(c)
	if err != nil {
		return badRequest(c, "invalid case id")
	}
	if _, ok := h.loadScoped(c, id); !ok {
		return nil
	}

	res := h.actions.LogContactAttempt(c.Context(), services.ContactAttemptInput{
		CaseID:         id,
		Method:         req.Method,
		Outcome:        req.Outcome,
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
	}, middleware.GetActor(c))
	return writeActionResult(c, res)
}

func (h *CaseHandler) RecordPayment(c *fiber.Ctx) error {
	var req dto.RecordPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.Amount <= 0 {
		return badRequest(c, "amount must be positive")
	}
	if req.Method == "" {
		return badRequest(c, "method is required")
	}
	id, err := h.caseIDParam(c)
	if err != nil {
		return badRequest(c, "invalid case id")
	}
	if _, ok := h.loadScoped(c, id); !ok {
		return nil
	}

	res := h.actions.RecordPayment(c.Context(), services.PaymentInput{
		CaseID:         id,
		Amount:         req.Amount,
		Method:         req.Method,
		Reference:      req.Reference,
		IdempotencyKey: req.IdempotencyKey,
	}, middleware.GetActor(c))
	return writeActionResult(c, res)
}

func (h *CaseHandler) GetCase(c *fiber.Ctx) error {
	id, err := h.caseIDParam(c)
	if err != nil {
		return badRequest(c, "invalid case id")
	}
	cs, ok := h.loadScoped(c, id)
	if !ok {
		return nil
	}

	next, err := statemachine.NextStatuses(cs.Status)
	if err != nil {
		h.log.Error("case carries unknown status", zap.Error(err), zap.String("case_id", id.String()))
		next = nil
	}

	resp := dto.CaseDetailResponse{Case: cs, NextStatuses: next}
	// Enrichment only: a dead scorer must not break the detail view.
	if priority, err := h.allocator.PriorityScore(c.Context(), services.CaseSummary{
		CaseID:            cs.ID,
		OutstandingAmount: cs.OutstandingAmount,
		DaysPastDue:       cs.DaysPastDue,
		Segment:           cs.Segment,
		RegionID:          cs.RegionID,
	}); err == nil {
		resp.Priority = priority
	} else {
		h.log.Debug("priority enrichment skipped", zap.Error(err))
	}

	return c.JSON(dto.SuccessResponse{Success: true, Data: resp})
}

func (h *CaseHandler) ListCases(c *fiber.Ctx) error {
	base := repositories.CaseFilter{
		Limit:  c.QueryInt("limit", 20),
		Offset: c.QueryInt("offset", 0),
	}
	if status := c.Query("status"); status != "" {
		base.Statuses = []string{status}
	}

	filter, appErr := services.ScopedCaseFilter(middleware.GetActor(c), base)
	if appErr != nil {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: dto.ErrorBody{Code: appErr.Code, Message: appErr.Message},
		})
	}

	cases, err := h.cases.List(c.Context(), filter)
	if err != nil {
		h.log.Error("case list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: dto.ErrorBody{Code: services.CodeInternalError, Message: "failed to list cases"},
		})
	}
	return c.JSON(dto.SuccessResponse{Success: true, Data: cases})
}

func (h *CaseHandler) GetTimeline(c *fiber.Ctx) error {
	id, err := h.caseIDParam(c)
	if err != nil {
		return badRequest(c, "invalid case id")
	}
	if _, ok := h.loadScoped(c, id); !ok {
		return nil
	}

	events, err := h.timeline.ListByCase(c.Context(), id, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		h.log.Error("timeline list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: dto.ErrorBody{Code: services.CodeInternalError, Message: "failed to load timeline"},
		})
	}
	return c.JSON(dto.SuccessResponse{Success: true, Data: events})
}

func (h *CaseHandler) GetActions(c *fiber.Ctx) error {
	id, err := h.caseIDParam(c)
	if err != nil {
		return badRequest(c, "invalid case id")
	}
	cs, ok := h.loadScoped(c, id)
	if !ok {
		return nil
	}

	next, smErr := statemachine.NextStatuses(cs.Status)
	if smErr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: dto.ErrorBody{Code: services.CodeInternalError, Message: smErr.Error()},
		})
	}
	return c.JSON(dto.SuccessResponse{Success: true, Data: fiber.Map{
		"status":        cs.Status,
		"terminal":      statemachine.IsTerminal(cs.Status),
		"next_statuses": next,
	}})
}

func (h *CaseHandler) GetAudit(c *fiber.Ctx) error {
	id, err := h.caseIDParam(c)
	if err != nil {
		return badRequest(c, "invalid case id")
	}
	if _, ok := h.loadScoped(c, id); !ok {
		return nil
	}

	logs, err := h.audit.GetByEntity(c.Context(), "case", id, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		h.log.Error("audit list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: dto.ErrorBody{Code: services.CodeInternalError, Message: "failed to load audit log"},
		})
	}
	return c.JSON(dto.SuccessResponse{Success: true, Data: logs})
}
