package statemachine

import (
	"errors"
	"testing"

	"github.com/debt-recovery/backend/internal/rbac"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{StatusPendingAllocation, StatusAllocated, true},
		{StatusAllocated, StatusInProgress, true},
		{StatusInProgress, StatusCustomerContacted, true},
		{StatusCustomerContacted, StatusPaymentPromised, true},
		{StatusPaymentPromised, StatusPartialRecovery, true},
		{StatusPaymentPromised, StatusFullRecovery, true},
		{StatusPartialRecovery, StatusFullRecovery, true},
		{StatusFullRecovery, StatusClosed, true},

		// Backward movement
		{StatusAllocated, StatusPendingAllocation, true},
		{StatusCustomerContacted, StatusInProgress, true},
		{StatusPaymentPromised, StatusCustomerContacted, true},
		{StatusPartialRecovery, StatusPaymentPromised, true},

		// Dispute and escalation paths
		{StatusInProgress, StatusDisputed, true},
		{StatusDisputed, StatusLegalAction, true},
		{StatusDisputed, StatusInProgress, true},
		{StatusEscalated, StatusLegalAction, true},
		{StatusEscalated, StatusWrittenOff, true},
		{StatusLegalAction, StatusFullRecovery, true},
		{StatusLegalAction, StatusWrittenOff, true},

		// Write-off and closure
		{StatusPendingAllocation, StatusWrittenOff, true},
		{StatusWrittenOff, StatusClosed, true},
		{StatusDisputed, StatusClosed, true},

		// Invalid transitions
		{StatusPendingAllocation, StatusFullRecovery, false},
		{StatusAllocated, StatusPaymentPromised, false},
		{StatusInProgress, StatusFullRecovery, false},
		{StatusFullRecovery, StatusInProgress, false},
		{StatusWrittenOff, StatusInProgress, false},
		{StatusClosed, StatusInProgress, false},
		{StatusClosed, StatusPendingAllocation, false},
		{StatusCustomerContacted, StatusClosed, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			check, err := CanTransition(tt.from, tt.to)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if check.Valid != tt.expected {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, check.Valid, tt.expected)
			}
			if !check.Valid && check.Reason == "" {
				t.Error("rejected transition must carry a reason")
			}
			if !check.Valid && len(check.AllowedTransitions) == 0 && !IsTerminal(tt.from) {
				t.Error("rejected transition from non-terminal status must list alternatives")
			}
		})
	}
}

func TestCanTransitionSameStatusIsNoOp(t *testing.T) {
	for _, status := range AllStatuses() {
		check, err := CanTransition(status, status)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", status, err)
		}
		if !check.Valid {
			t.Errorf("same-status transition for %q must be valid", status)
		}
	}
}

func TestCanTransitionUnknownStatus(t *testing.T) {
	tests := []struct {
		from string
		to   string
	}{
		{"NONEXISTENT", StatusAllocated},
		{StatusAllocated, "NONEXISTENT"},
		{"", StatusClosed},
	}

	for _, tt := range tests {
		_, err := CanTransition(tt.from, tt.to)
		var unknownErr *UnknownStatusError
		if !errors.As(err, &unknownErr) {
			t.Errorf("CanTransition(%q, %q): want UnknownStatusError, got %v", tt.from, tt.to, err)
		}
	}
}

func TestValidateBusinessRules(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		to       string
		rc       RuleContext
		expected bool
	}{
		{
			name:     "full recovery requires positive amount",
			from:     StatusPaymentPromised,
			to:       StatusFullRecovery,
			rc:       RuleContext{UserRole: rbac.RoleAgent},
			expected: false,
		},
		{
			name:     "full recovery with amount",
			from:     StatusPaymentPromised,
			to:       StatusFullRecovery,
			rc:       RuleContext{UserRole: rbac.RoleAgent, RecoveredAmount: 100},
			expected: true,
		},
		{
			name:     "write-off requires reason",
			from:     StatusEscalated,
			to:       StatusWrittenOff,
			rc:       RuleContext{UserRole: rbac.RoleManager},
			expected: false,
		},
		{
			name:     "write-off with reason",
			from:     StatusEscalated,
			to:       StatusWrittenOff,
			rc:       RuleContext{UserRole: rbac.RoleManager, Reason: "uncollectible"},
			expected: true,
		},
		{
			name:     "legal action denied for agent",
			from:     StatusDisputed,
			to:       StatusLegalAction,
			rc:       RuleContext{UserRole: rbac.RoleAgent},
			expected: false,
		},
		{
			name:     "legal action allowed for supervisor",
			from:     StatusDisputed,
			to:       StatusLegalAction,
			rc:       RuleContext{UserRole: rbac.RoleSupervisor},
			expected: true,
		},
		{
			name:     "legal action allowed for admin",
			from:     StatusEscalated,
			to:       StatusLegalAction,
			rc:       RuleContext{UserRole: rbac.RoleAdmin},
			expected: true,
		},
		{
			name:     "table rejection wins over rule checks",
			from:     StatusPendingAllocation,
			to:       StatusFullRecovery,
			rc:       RuleContext{UserRole: rbac.RoleAdmin, RecoveredAmount: 100},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check, err := ValidateBusinessRules(tt.from, tt.to, tt.rc)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if check.Valid != tt.expected {
				t.Errorf("got valid=%v, want %v (reason: %s)", check.Valid, tt.expected, check.Reason)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StatusClosed) {
		t.Error("CLOSED must be terminal")
	}
	for _, status := range AllStatuses() {
		if status == StatusClosed {
			continue
		}
		if IsTerminal(status) {
			t.Errorf("status %q must not be terminal", status)
		}
	}
	if IsTerminal("NONEXISTENT") {
		t.Error("unknown status must not report terminal")
	}
}

func TestNextStatuses(t *testing.T) {
	next, err := NextStatuses(StatusFullRecovery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(next) != 1 || next[0] != StatusClosed {
		t.Errorf("NextStatuses(FULL_RECOVERY) = %v, want [CLOSED]", next)
	}

	// Returned slice must be a copy, not the table's backing array.
	next[0] = "MUTATED"
	again, _ := NextStatuses(StatusFullRecovery)
	if again[0] != StatusClosed {
		t.Error("NextStatuses must not expose the transition table")
	}

	if _, err := NextStatuses("NONEXISTENT"); err == nil {
		t.Error("unknown status must return an error")
	}
}

func TestMustValidate(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustValidate panicked on the shipped table: %v", r)
		}
	}()
	MustValidate()
}

func TestTransitionTableCoversAllStatuses(t *testing.T) {
	for _, status := range AllStatuses() {
		if _, ok := ValidTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidTransitions map", status)
		}
	}
	if len(ValidTransitions) != len(AllStatuses()) {
		t.Errorf("transition table has %d entries, want %d", len(ValidTransitions), len(AllStatuses()))
	}
}
