package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/config"
	"github.com/debt-recovery/backend/internal/db"
	"github.com/debt-recovery/backend/internal/events"
	"github.com/debt-recovery/backend/internal/models"
	"github.com/debt-recovery/backend/internal/repositories"
	"github.com/debt-recovery/backend/internal/services"
	"github.com/debt-recovery/backend/internal/statemachine"
)

// Statuses where a contact-attempt SLA applies. Terminal and
// pre-allocation cases are not swept.
var slaStatuses = []string{
	statemachine.StatusInProgress,
	statemachine.StatusCustomerContacted,
	statemachine.StatusPaymentPromised,
	statemachine.StatusPartialRecovery,
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	caseRepo := repositories.NewCaseRepo(pool)
	timelineRepo := repositories.NewTimelineRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	actionService := services.NewActionService(caseRepo, timelineRepo, auditRepo, publisher, log)

	log.Info("worker started")

	slaTicker := time.NewTicker(15 * time.Minute)
	defer slaTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-slaTicker.C:
			runSLASweep(ctx, caseRepo, timelineRepo, actionService, cfg, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runSLASweep(ctx context.Context, caseRepo *repositories.CaseRepo, timelineRepo *repositories.TimelineRepo, actions *services.ActionService, cfg *config.Config, log *zap.Logger) {
	stale, err := caseRepo.GetStaleContactCases(ctx, slaStatuses, cfg.SLAContactWindow)
	if err != nil {
		log.Error("failed to get stale contact cases", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	log.Info("sla sweep found stale cases", zap.Int("count", len(stale)))

	for _, cs := range stale {
		// One breach entry per sweep window; skip cases already flagged
		// since their last contact.
		flagged, err := hasBreachSinceContact(ctx, timelineRepo, cs)
		if err != nil {
			log.Error("failed to check existing breach entries",
				zap.String("case_id", cs.ID.String()), zap.Error(err))
			continue
		}
		if flagged {
			continue
		}

		desc := fmt.Sprintf("no contact attempt in %s (status %s)", cfg.SLAContactWindow, cs.Status)
		meta := map[string]any{
			"status":        cs.Status,
			"window_hours":  int(cfg.SLAContactWindow.Hours()),
			"last_contact":  cs.LastContactAt,
			"days_past_due": cs.DaysPastDue,
		}
		if err := actions.WriteSystemEvent(ctx, cs.ID, models.TimelineCategorySLA, models.EventSLABreach, desc, meta); err != nil {
			log.Error("failed to write sla breach event",
				zap.String("case_id", cs.ID.String()), zap.Error(err))
		}
	}
}

func hasBreachSinceContact(ctx context.Context, timelineRepo *repositories.TimelineRepo, cs models.Case) (bool, error) {
	entries, err := timelineRepo.ListByCase(ctx, cs.ID, 20, 0)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.EventType != models.EventSLABreach {
			continue
		}
		if cs.LastContactAt == nil || e.CreatedAt.After(*cs.LastContactAt) {
			return true, nil
		}
	}
	return false, nil
}
