package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/http/dto"
	"github.com/debt-recovery/backend/internal/models"
	"github.com/debt-recovery/backend/internal/services"
)

// InternalHandler serves automated callers. The AI and SLA services append
// timeline entries here under the SYSTEM performer; those writes never touch
// case fields and never contend with the optimistic lock.
type InternalHandler struct {
	actions *services.ActionService
	log     *zap.Logger
}

func NewInternalHandler(actions *services.ActionService, log *zap.Logger) *InternalHandler {
	return &InternalHandler{actions: actions, log: log}
}

var systemCategories = map[string]bool{
	models.TimelineCategoryAI:  true,
	models.TimelineCategorySLA: true,
}

func (h *InternalHandler) AppendSystemEvent(c *fiber.Ctx) error {
	var req dto.SystemTimelineRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if !systemCategories[req.Category] {
		return badRequest(c, "category must be AI or SLA")
	}
	if req.EventType == "" || req.Description == "" {
		return badRequest(c, "event_type and description are required")
	}
	caseID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid case id")
	}

	if err := h.actions.WriteSystemEvent(c.Context(), caseID, req.Category, req.EventType, req.Description, req.Metadata); err != nil {
		h.log.Error("system timeline append failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: dto.ErrorBody{Code: services.CodeInternalError, Message: "failed to append timeline event"},
		})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{Success: true})
}
