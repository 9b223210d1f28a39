package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/config"
	"github.com/debt-recovery/backend/internal/http/handlers"
	"github.com/debt-recovery/backend/internal/middleware"
	"github.com/debt-recovery/backend/internal/rbac"
	"github.com/debt-recovery/backend/internal/services"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	resolver *middleware.ActorResolver,
	seclog *services.SecurityLogger,
	caseHandler *handlers.CaseHandler,
	bulkHandler *handlers.BulkHandler,
	internalHandler *handlers.InternalHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Service-Token, Idempotency-Key",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	if rdb != nil {
		api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))
	}

	// Everything below requires a resolved actor (session or service token).
	protected := api.Group("", resolver.Middleware())

	// Bulk operations (registered before /cases/:id so "bulk" is not
	// swallowed by the :id parameter)
	protected.Post("/cases/bulk/status",
		middleware.RequirePermission(rbac.PermCaseBulkUpdate, seclog), bulkHandler.BulkChangeStatus)
	protected.Post("/cases/bulk/allocate",
		middleware.RequirePermission(rbac.PermCaseAllocate, seclog), bulkHandler.BulkAllocate)

	// Cases
	protected.Get("/cases",
		middleware.RequirePermission(rbac.PermCaseRead, seclog), caseHandler.ListCases)
	protected.Get("/cases/:id",
		middleware.RequirePermission(rbac.PermCaseRead, seclog), caseHandler.GetCase)
	protected.Get("/cases/:id/timeline",
		middleware.RequirePermission(rbac.PermCaseRead, seclog), caseHandler.GetTimeline)
	protected.Get("/cases/:id/actions",
		middleware.RequirePermission(rbac.PermCaseRead, seclog), caseHandler.GetActions)
	protected.Get("/cases/:id/audit",
		middleware.RequirePermission(rbac.PermAuditRead, seclog), caseHandler.GetAudit)
	protected.Post("/cases/:id/status",
		middleware.RequirePermission(rbac.PermCaseUpdateStatus, seclog), caseHandler.ChangeStatus)
	protected.Post("/cases/:id/contact-attempts",
		middleware.RequirePermission(rbac.PermCaseLogContact, seclog), caseHandler.LogContactAttempt)
	protected.Post("/cases/:id/payments",
		middleware.RequirePermission(rbac.PermCaseRecordPayment, seclog), caseHandler.RecordPayment)

	// Internal (service-to-service) timeline writes
	protected.Post("/internal/cases/:id/timeline",
		middleware.RequirePermission(rbac.PermTimelineWrite, seclog), internalHandler.AppendSystemEvent)

	// WebSocket live feed
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws/feed", websocket.New(wsHub.HandleWS))
}
