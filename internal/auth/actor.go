package auth

import (
	"github.com/google/uuid"

	"github.com/debt-recovery/backend/internal/rbac"
)

// Actor is the resolved identity behind a request: a human session user or a
// registered automated service. The interface is sealed so a new actor kind
// cannot appear without every consumer's type switch being revisited.
type Actor interface {
	actorKind()

	// PerformerID is the identity recorded on timeline and audit rows.
	PerformerID() string
	// PerformerRole is the role label recorded on timeline rows.
	PerformerRole() string
	// HasPermission checks the named permission or operation.
	HasPermission(perm string) bool
}

// HumanActor is a session-backed user. Regions holds the region ids the user
// may touch, resolved fresh from the grant store on every request. A
// non-global role with zero regions is rejected before this struct is ever
// built.
type HumanActor struct {
	UserID  uuid.UUID
	Email   string
	Role    string
	OrgID   string
	Regions []string
}

func (HumanActor) actorKind() {}

func (a HumanActor) PerformerID() string   { return a.UserID.String() }
func (a HumanActor) PerformerRole() string { return a.Role }

func (a HumanActor) HasPermission(perm string) bool {
	return rbac.HasPermission(a.Role, perm)
}

// IsGlobal reports whether the actor's role bypasses region scoping.
func (a HumanActor) IsGlobal() bool {
	return rbac.IsGlobalRole(a.Role)
}

// HasRegion reports whether the actor may touch the region.
func (a HumanActor) HasRegion(regionID string) bool {
	if a.IsGlobal() {
		return true
	}
	for _, r := range a.Regions {
		if r == regionID {
			return true
		}
	}
	return false
}

// ServiceActor is an automated caller authenticated by a signed service
// token and validated against the service registry. It never carries a role,
// an email, or a session.
type ServiceActor struct {
	Name       string
	RegistryID uuid.UUID
	AllowedOps []string
}

func (ServiceActor) actorKind() {}

func (a ServiceActor) PerformerID() string   { return a.Name }
func (a ServiceActor) PerformerRole() string { return "service" }

// HasPermission checks the registry allow-list. An empty allow-list permits
// every operation (registry convention, covered by tests).
func (a ServiceActor) HasPermission(op string) bool {
	if len(a.AllowedOps) == 0 {
		return true
	}
	for _, o := range a.AllowedOps {
		if o == op {
			return true
		}
	}
	return false
}

// AuditActorType maps an actor to the audit-log actor type.
func AuditActorType(a Actor) string {
	switch a.(type) {
	case HumanActor:
		return "user"
	case ServiceActor:
		return "service"
	default:
		return "system"
	}
}
