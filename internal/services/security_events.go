package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/events"
	"github.com/debt-recovery/backend/internal/models"
)

// SecurityLogger records security incidents: a structured warn log, an
// audit row, and a published event. Fire-and-forget from the caller's
// perspective; none of the three sinks can fail a request.
type SecurityLogger struct {
	audit     AuditStore
	publisher events.Publisher
	log       *zap.Logger
}

func NewSecurityLogger(audit AuditStore, publisher events.Publisher, log *zap.Logger) *SecurityLogger {
	return &SecurityLogger{audit: audit, publisher: publisher, log: log}
}

// LogEvent records one incident. severity may be empty for plain permission
// denials.
func (s *SecurityLogger) LogEvent(ctx context.Context, eventType, severity, actorID, ip string, payload map[string]any) {
	fields := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("actor_id", actorID),
		zap.String("ip", ip),
	}
	if severity != "" {
		fields = append(fields, zap.String("severity", severity))
	}
	s.log.Warn("security event", fields...)

	meta := map[string]any{"severity": severity}
	for k, v := range payload {
		meta[k] = v
	}
	if err := s.audit.Log(ctx, models.AuditLog{
		ActorID:    actorID,
		ActorType:  models.ActorTypeSystem,
		Action:     eventType,
		EntityType: "security",
		IP:         ip,
		Meta:       meta,
	}); err != nil {
		s.log.Error("security audit write failed", zap.Error(err))
	}

	_ = s.publisher.Publish(ctx, events.StreamSecurity, events.Event{
		Type: events.EventSecurityIncident,
		Payload: map[string]any{
			"event_type": eventType,
			"severity":   severity,
			"actor_id":   actorID,
			"ip":         ip,
		},
	})
}
