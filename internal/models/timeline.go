package models

import (
	"time"

	"github.com/google/uuid"
)

// Timeline event categories
const (
	TimelineCategoryUser   = "USER"
	TimelineCategorySystem = "SYSTEM"
	TimelineCategoryDCA    = "DCA"
	TimelineCategoryAI     = "AI"
	TimelineCategorySLA    = "SLA"
)

// Timeline event types
const (
	EventStatusChanged   = "STATUS_CHANGED"
	EventContactAttempt  = "CONTACT_ATTEMPT"
	EventPaymentReceived = "PAYMENT_RECEIVED"
	EventCaseAllocated   = "CASE_ALLOCATED"
	EventStatusRestored  = "STATUS_RESTORED"
	EventAIInsight       = "AI_INSIGHT"
	EventSLABreach       = "SLA_BREACH"
)

// PerformerSystem identifies automated writers on the timeline.
const PerformerSystem = "SYSTEM"

// TimelineEvent is an immutable append-only audit record on a case. Rows are
// created on every attempted and successful mutation and never updated or
// deleted. IdempotencyKey, when set, dedupes retried mutation requests
// against (key, case id).
type TimelineEvent struct {
	ID             uuid.UUID      `json:"id"`
	CaseID         uuid.UUID      `json:"case_id"`
	Category       string         `json:"category"`
	EventType      string         `json:"event_type"`
	Description    string         `json:"description"`
	OldValue       *string        `json:"old_value,omitempty"`
	NewValue       *string        `json:"new_value,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	PerformerID    string         `json:"performer_id"`
	PerformerRole  string         `json:"performer_role"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
