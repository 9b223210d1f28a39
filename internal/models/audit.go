package models

import (
	"time"

	"github.com/google/uuid"
)

// Actor types for audit rows
const (
	ActorTypeUser    = "user"
	ActorTypeService = "service"
	ActorTypeSystem  = "system"
)

type AuditLog struct {
	ID         uuid.UUID  `json:"id"`
	ActorID    string     `json:"actor_id"`
	ActorType  string     `json:"actor_type"`
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	IP         string     `json:"ip,omitempty"`
	Meta       any        `json:"meta,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
