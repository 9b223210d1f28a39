package auth

import (
	"testing"

	"github.com/google/uuid"

	"github.com/debt-recovery/backend/internal/rbac"
)

func TestHumanActorRegionScoping(t *testing.T) {
	agent := HumanActor{
		UserID:  uuid.New(),
		Role:    rbac.RoleAgent,
		Regions: []string{"DE", "AT"},
	}

	if !agent.HasRegion("DE") || !agent.HasRegion("AT") {
		t.Error("agent must have access to granted regions")
	}
	if agent.HasRegion("FR") {
		t.Error("agent must not have access to an ungranted region")
	}
	if agent.IsGlobal() {
		t.Error("agent must not be global")
	}

	admin := HumanActor{UserID: uuid.New(), Role: rbac.RoleAdmin}
	if !admin.IsGlobal() {
		t.Error("admin must be global")
	}
	if !admin.HasRegion("FR") {
		t.Error("global actor must have access to every region")
	}
}

func TestHumanActorPermissions(t *testing.T) {
	viewer := HumanActor{UserID: uuid.New(), Role: rbac.RoleViewer}
	if !viewer.HasPermission(rbac.PermCaseRead) {
		t.Error("viewer must read cases")
	}
	if viewer.HasPermission(rbac.PermCaseUpdateStatus) {
		t.Error("viewer must not update status")
	}
	if viewer.PerformerRole() != rbac.RoleViewer {
		t.Errorf("performer role = %q", viewer.PerformerRole())
	}
}

func TestServiceActorAllowList(t *testing.T) {
	scoped := ServiceActor{
		Name:       "allocation-engine",
		AllowedOps: []string{rbac.PermTimelineWrite, rbac.PermCaseRead},
	}
	if !scoped.HasPermission(rbac.PermTimelineWrite) {
		t.Error("listed op must be permitted")
	}
	if scoped.HasPermission(rbac.PermCaseBulkUpdate) {
		t.Error("unlisted op must be denied")
	}

	// Empty allow-list means every operation is permitted.
	open := ServiceActor{Name: "legacy-bridge"}
	if !open.HasPermission(rbac.PermCaseBulkUpdate) {
		t.Error("empty allow-list must permit every op")
	}

	if scoped.PerformerID() != "allocation-engine" {
		t.Errorf("performer id = %q", scoped.PerformerID())
	}
	if scoped.PerformerRole() != "service" {
		t.Errorf("performer role = %q", scoped.PerformerRole())
	}
}

func TestAuditActorType(t *testing.T) {
	if got := AuditActorType(HumanActor{}); got != "user" {
		t.Errorf("human actor type = %q", got)
	}
	if got := AuditActorType(ServiceActor{}); got != "service" {
		t.Errorf("service actor type = %q", got)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	secret := "session-secret"
	userID := uuid.New()

	token, err := GenerateSession(secret, userID, "agent@example.com", rbac.RoleAgent, "org-1", 0)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := ParseSession(secret, token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.UserID != userID || claims.Role != rbac.RoleAgent || claims.OrgID != "org-1" {
		t.Errorf("claims mismatch: %+v", claims)
	}

	if _, err := ParseSession("other-secret", token); err == nil {
		t.Error("wrong secret must fail")
	}
}
