package rbac

// Role constants
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleSupervisor = "supervisor"
	RoleAgent      = "agent"
	RoleViewer     = "viewer"
)

// Permission constants
const (
	PermCaseRead          = "case:read"
	PermCaseUpdateStatus  = "case:update_status"
	PermCaseLogContact    = "case:log_contact"
	PermCaseRecordPayment = "case:record_payment"
	PermCaseBulkUpdate    = "case:bulk_update"
	PermCaseAllocate      = "case:allocate"
	PermTimelineWrite     = "timeline:write"
	PermAuditRead         = "audit:read"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermCaseRead, PermCaseUpdateStatus, PermCaseLogContact, PermCaseRecordPayment,
		PermCaseBulkUpdate, PermCaseAllocate, PermTimelineWrite, PermAuditRead,
	},
	RoleManager: {
		PermCaseRead, PermCaseUpdateStatus, PermCaseLogContact, PermCaseRecordPayment,
		PermCaseBulkUpdate, PermCaseAllocate, PermAuditRead,
	},
	RoleSupervisor: {
		PermCaseRead, PermCaseUpdateStatus, PermCaseLogContact, PermCaseRecordPayment,
		PermCaseBulkUpdate, PermAuditRead,
	},
	RoleAgent: {
		PermCaseRead, PermCaseUpdateStatus, PermCaseLogContact, PermCaseRecordPayment,
	},
	RoleViewer: {
		PermCaseRead,
	},
}

// managementRoles may move a case into LEGAL_ACTION.
var managementRoles = map[string]bool{
	RoleAdmin:      true,
	RoleManager:    true,
	RoleSupervisor: true,
}

// globalRoles see every region. All other roles are scoped to their region
// grants and are denied outright when those grants are empty.
var globalRoles = map[string]bool{
	RoleAdmin: true,
}

// AllRoles returns every known role.
func AllRoles() []string {
	return []string{RoleAdmin, RoleManager, RoleSupervisor, RoleAgent, RoleViewer}
}

// HasPermission checks if a role has a specific permission. Unknown roles
// have no permissions.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsManagementRole reports whether the role may take management-only actions.
func IsManagementRole(role string) bool {
	return managementRoles[role]
}

// IsGlobalRole reports whether the role is exempt from region scoping.
func IsGlobalRole(role string) bool {
	return globalRoles[role]
}
