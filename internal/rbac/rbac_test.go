package rbac

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		expected   bool
	}{
		{RoleAdmin, PermCaseBulkUpdate, true},
		{RoleAdmin, PermTimelineWrite, true},
		{RoleManager, PermCaseAllocate, true},
		{RoleManager, PermTimelineWrite, false},
		{RoleSupervisor, PermCaseBulkUpdate, true},
		{RoleSupervisor, PermCaseAllocate, false},
		{RoleAgent, PermCaseRecordPayment, true},
		{RoleAgent, PermCaseBulkUpdate, false},
		{RoleAgent, PermAuditRead, false},
		{RoleViewer, PermCaseRead, true},
		{RoleViewer, PermCaseUpdateStatus, false},
		{"nonexistent", PermCaseRead, false},
		{"", PermCaseRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.permission, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.permission); got != tt.expected {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.permission, got, tt.expected)
			}
		})
	}
}

func TestAllRolesHavePermissionEntries(t *testing.T) {
	for _, role := range AllRoles() {
		perms, ok := RolePermissions[role]
		if !ok {
			t.Errorf("role %q missing from RolePermissions map", role)
			continue
		}
		if len(perms) == 0 {
			t.Errorf("role %q has no permissions", role)
		}
		// Every role can at least read cases.
		if !HasPermission(role, PermCaseRead) {
			t.Errorf("role %q must have case read", role)
		}
	}
}

func TestIsManagementRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleManager, RoleSupervisor} {
		if !IsManagementRole(role) {
			t.Errorf("role %q must be management", role)
		}
	}
	for _, role := range []string{RoleAgent, RoleViewer, "service", ""} {
		if IsManagementRole(role) {
			t.Errorf("role %q must not be management", role)
		}
	}
}

func TestIsGlobalRole(t *testing.T) {
	if !IsGlobalRole(RoleAdmin) {
		t.Error("admin must be global")
	}
	for _, role := range []string{RoleManager, RoleSupervisor, RoleAgent, RoleViewer, ""} {
		if IsGlobalRole(role) {
			t.Errorf("role %q must not be global", role)
		}
	}
}
