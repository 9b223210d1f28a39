package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/auth"
	"github.com/debt-recovery/backend/internal/config"
	"github.com/debt-recovery/backend/internal/db"
	"github.com/debt-recovery/backend/internal/events"
	apphttp "github.com/debt-recovery/backend/internal/http"
	"github.com/debt-recovery/backend/internal/http/handlers"
	"github.com/debt-recovery/backend/internal/middleware"
	"github.com/debt-recovery/backend/internal/repositories"
	"github.com/debt-recovery/backend/internal/services"
	"github.com/debt-recovery/backend/internal/statemachine"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	// Fail at boot rather than on the first request if the transition
	// table references a status it does not define.
	statemachine.MustValidate()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	caseRepo := repositories.NewCaseRepo(pool)
	timelineRepo := repositories.NewTimelineRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	regionRepo := repositories.NewRegionRepo(pool)
	registryRepo := repositories.NewRegistryRepo(pool)
	dcaRepo := repositories.NewDCARepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	allocator := services.NewAllocationClient(cfg.MLServiceURL, log)
	actionService := services.NewActionService(caseRepo, timelineRepo, auditRepo, publisher, log)
	bulkService := services.NewBulkService(caseRepo, timelineRepo, auditRepo, dcaRepo, allocator, publisher, log)
	seclog := services.NewSecurityLogger(auditRepo, publisher, log)

	// Auth
	tracker := auth.NewRedisTracker(rdb, cfg.AuthFailWindow, cfg.AuthBlockDuration, cfg.AuthFailThreshold, log)
	resolver := middleware.NewActorResolver(cfg, regionRepo, registryRepo, tracker, seclog, log)

	// Handlers
	caseHandler := handlers.NewCaseHandler(actionService, caseRepo, timelineRepo, auditRepo, allocator, log)
	bulkHandler := handlers.NewBulkHandler(bulkService, log)
	internalHandler := handlers.NewInternalHandler(actionService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"error":   fiber.Map{"code": services.CodeInternalError, "message": err.Error()},
			})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, resolver, seclog, caseHandler, bulkHandler, internalHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
