package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/http/dto"
	"github.com/debt-recovery/backend/internal/middleware"
	"github.com/debt-recovery/backend/internal/services"
)

// maxBatchSize bounds one bulk request.
const maxBatchSize = 500

type BulkHandler struct {
	bulk *services.BulkService
	log  *zap.Logger
}

func NewBulkHandler(bulk *services.BulkService, log *zap.Logger) *BulkHandler {
	return &BulkHandler{bulk: bulk, log: log}
}

func parseCaseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeBulkResult(c *fiber.Ctx, res services.BulkResult) error {
	if res.Success {
		return c.JSON(res)
	}
	// Partial or total failure still returns the structured batch report.
	return c.Status(fiber.StatusMultiStatus).JSON(res)
}

func (h *BulkHandler) BulkChangeStatus(c *fiber.Ctx) error {
	var req dto.BulkStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if len(req.CaseIDs) == 0 {
		return badRequest(c, "case_ids is required")
	}
	if len(req.CaseIDs) > maxBatchSize {
		return badRequest(c, "too many cases in one batch")
	}
	if req.NewStatus == "" {
		return badRequest(c, "new_status is required")
	}
	ids, err := parseCaseIDs(req.CaseIDs)
	if err != nil {
		return badRequest(c, "invalid case id in case_ids")
	}

	res := h.bulk.BulkChangeStatus(c.Context(), services.BulkStatusInput{
		CaseIDs:          ids,
		NewStatus:        req.NewStatus,
		Reason:           req.Reason,
		FailureThreshold: req.FailureThreshold,
	}, middleware.GetActor(c))
	return writeBulkResult(c, res)
}

func (h *BulkHandler) BulkAllocate(c *fiber.Ctx) error {
	var req dto.BulkAllocateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if len(req.CaseIDs) == 0 {
		return badRequest(c, "case_ids is required")
	}
	if len(req.CaseIDs) > maxBatchSize {
		return badRequest(c, "too many cases in one batch")
	}
	ids, err := parseCaseIDs(req.CaseIDs)
	if err != nil {
		return badRequest(c, "invalid case id in case_ids")
	}

	var dcaID *uuid.UUID
	if req.DCAID != nil && *req.DCAID != "" {
		parsed, err := uuid.Parse(*req.DCAID)
		if err != nil {
			return badRequest(c, "invalid dca_id")
		}
		dcaID = &parsed
	}

	res := h.bulk.BulkAllocate(c.Context(), services.BulkAllocateInput{
		CaseIDs:          ids,
		DCAID:            dcaID,
		Method:           req.Method,
		FailureThreshold: req.FailureThreshold,
	}, middleware.GetActor(c))
	return writeBulkResult(c, res)
}
