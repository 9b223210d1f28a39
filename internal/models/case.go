package models

import (
	"time"

	"github.com/google/uuid"
)

// Case is one debt-recovery unit of work. Amounts are integer minor units
// (cents); RecoveredAmount + OutstandingAmount == OriginalAmount at every
// committed state. UpdatedAt doubles as the optimistic-lock version.
type Case struct {
	ID                uuid.UUID  `json:"id"`
	Reference         string     `json:"reference"`
	Status            string     `json:"status"`
	DebtorName        string     `json:"debtor_name"`
	OriginalAmount    int64      `json:"original_amount"`
	OutstandingAmount int64      `json:"outstanding_amount"`
	RecoveredAmount   int64      `json:"recovered_amount"`
	Currency          string     `json:"currency"`
	DCAID             *uuid.UUID `json:"dca_id,omitempty"`
	AgentID           *uuid.UUID `json:"agent_id,omitempty"`
	RegionID          string     `json:"region_id"`
	DaysPastDue       int        `json:"days_past_due"`
	Segment           string     `json:"segment"`
	ClosureReason     *string    `json:"closure_reason,omitempty"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
	LastContactAt     *time.Time `json:"last_contact_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// DCA is a debt-collection agency taking case allocations.
type DCA struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Active      bool      `json:"active"`
	Capacity    int       `json:"capacity"`
	ActiveCases int       `json:"active_cases"`
	CreatedAt   time.Time `json:"created_at"`
}

// RegionGrant links a human user to a region. Lifecycle is owned by the
// admin workflow; this core only reads grants.
type RegionGrant struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	RegionID  string    `json:"region_id"`
	GrantedBy uuid.UUID `json:"granted_by"`
	CreatedAt time.Time `json:"created_at"`
}
