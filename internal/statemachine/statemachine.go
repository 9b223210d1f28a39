package statemachine

import (
	"fmt"

	"github.com/debt-recovery/backend/internal/rbac"
)

// Case statuses
const (
	StatusPendingAllocation = "PENDING_ALLOCATION"
	StatusAllocated         = "ALLOCATED"
	StatusInProgress        = "IN_PROGRESS"
	StatusCustomerContacted = "CUSTOMER_CONTACTED"
	StatusPaymentPromised   = "PAYMENT_PROMISED"
	StatusPartialRecovery   = "PARTIAL_RECOVERY"
	StatusFullRecovery      = "FULL_RECOVERY"
	StatusDisputed          = "DISPUTED"
	StatusEscalated         = "ESCALATED"
	StatusLegalAction       = "LEGAL_ACTION"
	StatusWrittenOff        = "WRITTEN_OFF"
	StatusClosed            = "CLOSED"
)

// Valid status transitions: from -> []to. CLOSED is the only terminal state.
var ValidTransitions = map[string][]string{
	StatusPendingAllocation: {StatusAllocated, StatusWrittenOff, StatusClosed},
	StatusAllocated:         {StatusInProgress, StatusPendingAllocation, StatusDisputed, StatusClosed},
	StatusInProgress:        {StatusCustomerContacted, StatusDisputed, StatusEscalated, StatusWrittenOff},
	StatusCustomerContacted: {StatusPaymentPromised, StatusInProgress, StatusDisputed, StatusEscalated},
	StatusPaymentPromised:   {StatusPartialRecovery, StatusFullRecovery, StatusCustomerContacted, StatusEscalated},
	StatusPartialRecovery:   {StatusFullRecovery, StatusPaymentPromised, StatusCustomerContacted, StatusWrittenOff},
	StatusFullRecovery:      {StatusClosed},
	StatusDisputed:          {StatusInProgress, StatusEscalated, StatusLegalAction, StatusClosed},
	StatusEscalated:         {StatusLegalAction, StatusInProgress, StatusWrittenOff},
	StatusLegalAction:       {StatusPartialRecovery, StatusFullRecovery, StatusWrittenOff, StatusClosed},
	StatusWrittenOff:        {StatusClosed},
	StatusClosed:            {},
}

// AllStatuses returns every known case status in declaration order.
func AllStatuses() []string {
	return []string{
		StatusPendingAllocation, StatusAllocated, StatusInProgress,
		StatusCustomerContacted, StatusPaymentPromised, StatusPartialRecovery,
		StatusFullRecovery, StatusDisputed, StatusEscalated,
		StatusLegalAction, StatusWrittenOff, StatusClosed,
	}
}

// UnknownStatusError signals a status value missing from the transition table.
// This is a programmer error, not a business-rule rejection.
type UnknownStatusError struct {
	FromStatus string
	ToStatus   string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown case status in transition %q -> %q", e.FromStatus, e.ToStatus)
}

// Check is the outcome of a transition validation. Rule violations are
// reported here, never as errors.
type Check struct {
	Valid              bool     `json:"valid"`
	Reason             string   `json:"reason,omitempty"`
	AllowedTransitions []string `json:"allowed_transitions,omitempty"`
}

// RuleContext carries the request attributes business rules gate on.
type RuleContext struct {
	UserRole        string
	Reason          string
	RecoveredAmount int64
}

// CanTransition validates a transition against the table alone. A same-state
// transition is always legal (no-op).
func CanTransition(from, to string) (Check, error) {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return Check{}, &UnknownStatusError{FromStatus: from, ToStatus: to}
	}
	if _, ok := ValidTransitions[to]; !ok {
		return Check{}, &UnknownStatusError{FromStatus: from, ToStatus: to}
	}
	if from == to {
		return Check{Valid: true}, nil
	}
	for _, s := range allowed {
		if s == to {
			return Check{Valid: true}, nil
		}
	}
	return Check{
		Valid:              false,
		Reason:             fmt.Sprintf("cannot transition from %s to %s", from, to),
		AllowedTransitions: allowed,
	}, nil
}

// ValidateBusinessRules runs CanTransition and then the per-target gates:
// FULL_RECOVERY needs a positive recovered amount, WRITTEN_OFF needs a
// reason, LEGAL_ACTION is restricted to management roles.
func ValidateBusinessRules(from, to string, rc RuleContext) (Check, error) {
	check, err := CanTransition(from, to)
	if err != nil || !check.Valid {
		return check, err
	}

	switch to {
	case StatusFullRecovery:
		if rc.RecoveredAmount <= 0 {
			return Check{
				Valid:  false,
				Reason: "transition to FULL_RECOVERY requires a recovered amount greater than zero",
			}, nil
		}
	case StatusWrittenOff:
		if rc.Reason == "" {
			return Check{
				Valid:  false,
				Reason: "transition to WRITTEN_OFF requires a reason",
			}, nil
		}
	case StatusLegalAction:
		if !rbac.IsManagementRole(rc.UserRole) {
			return Check{
				Valid:  false,
				Reason: fmt.Sprintf("role %q is not permitted to initiate legal action", rc.UserRole),
			}, nil
		}
	}

	return Check{Valid: true}, nil
}

// IsTerminal reports whether the status has no outgoing transitions.
func IsTerminal(status string) bool {
	allowed, ok := ValidTransitions[status]
	return ok && len(allowed) == 0
}

// NextStatuses returns the ordered set of legal next statuses.
func NextStatuses(status string) ([]string, error) {
	allowed, ok := ValidTransitions[status]
	if !ok {
		return nil, &UnknownStatusError{FromStatus: status}
	}
	out := make([]string, len(allowed))
	copy(out, allowed)
	return out, nil
}

// MustValidate checks the transition table for completeness: every known
// status has an entry and every target is itself a known status. Called once
// at startup.
func MustValidate() {
	for _, s := range AllStatuses() {
		allowed, ok := ValidTransitions[s]
		if !ok {
			panic(fmt.Sprintf("statemachine: status %q missing from transition table", s))
		}
		for _, to := range allowed {
			if _, ok := ValidTransitions[to]; !ok {
				panic(fmt.Sprintf("statemachine: transition %s -> %s targets unknown status", s, to))
			}
		}
	}
}
