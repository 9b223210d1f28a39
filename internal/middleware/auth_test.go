package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/auth"
	"github.com/debt-recovery/backend/internal/config"
	"github.com/debt-recovery/backend/internal/events"
	"github.com/debt-recovery/backend/internal/models"
	"github.com/debt-recovery/backend/internal/rbac"
	"github.com/debt-recovery/backend/internal/repositories"
	"github.com/debt-recovery/backend/internal/services"
)

type stubRegions struct {
	grants map[uuid.UUID][]string
}

func (s *stubRegions) GetAccessibleRegions(_ context.Context, userID uuid.UUID) ([]string, error) {
	return s.grants[userID], nil
}

type stubRegistry struct {
	services map[string]*models.ServiceRecord
	touched  []string
	findErr  error
}

func (s *stubRegistry) FindService(_ context.Context, name string) (*models.ServiceRecord, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	rec, ok := s.services[name]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return rec, nil
}

func (s *stubRegistry) TouchLastUsed(_ context.Context, name string) error {
	s.touched = append(s.touched, name)
	return nil
}

type stubAudit struct {
	entries []models.AuditLog
}

func (s *stubAudit) Log(_ context.Context, entry models.AuditLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

type stubPublisher struct{}

func (stubPublisher) Publish(context.Context, string, events.Event) error { return nil }

type resolverFixture struct {
	cfg      *config.Config
	regions  *stubRegions
	registry *stubRegistry
	tracker  *auth.MemoryTracker
	audit    *stubAudit
	app      *fiber.App
}

func newResolverFixture(t *testing.T, finalPerm string) *resolverFixture {
	t.Helper()
	f := &resolverFixture{
		cfg: &config.Config{
			JWTSecret:          "session-secret",
			ServiceTokenSecret: "service-secret",
		},
		regions:  &stubRegions{grants: map[uuid.UUID][]string{}},
		registry: &stubRegistry{services: map[string]*models.ServiceRecord{}},
		tracker:  auth.NewMemoryTracker(15*time.Minute, time.Hour, 3),
		audit:    &stubAudit{},
	}

	seclog := services.NewSecurityLogger(f.audit, stubPublisher{}, zap.NewNop())
	resolver := NewActorResolver(f.cfg, f.regions, f.registry, f.tracker, seclog, zap.NewNop())

	f.app = fiber.New()
	group := f.app.Group("", resolver.Middleware())
	handler := func(c *fiber.Ctx) error {
		actor := GetActor(c)
		return c.JSON(fiber.Map{"performer": actor.PerformerID()})
	}
	if finalPerm != "" {
		group.Get("/probe", RequirePermission(finalPerm, seclog), handler)
	} else {
		group.Get("/probe", handler)
	}
	return f
}

func (f *resolverFixture) request(t *testing.T, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	return resp, body
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestResolverMissingCredentials(t *testing.T) {
	f := newResolverFixture(t, "")

	resp, body := f.request(t, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != services.CodeUnauthorized {
		t.Errorf("code = %q", errorCode(body))
	}
}

func TestResolverHumanSession(t *testing.T) {
	f := newResolverFixture(t, rbac.PermCaseRead)
	userID := uuid.New()
	f.regions.grants[userID] = []string{"DE"}

	token, err := auth.GenerateSession(f.cfg.JWTSecret, userID, "agent@example.com", rbac.RoleAgent, "org-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	resp, body := f.request(t, map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["performer"] != userID.String() {
		t.Errorf("performer = %v", body["performer"])
	}
}

func TestResolverHumanNoRegionsFailClosed(t *testing.T) {
	f := newResolverFixture(t, "")
	userID := uuid.New() // no grants on record

	token, _ := auth.GenerateSession(f.cfg.JWTSecret, userID, "agent@example.com", rbac.RoleAgent, "org-1", time.Hour)

	resp, body := f.request(t, map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != services.CodeRegionAccessDenied {
		t.Errorf("code = %q", errorCode(body))
	}
	if len(f.audit.entries) == 0 {
		t.Error("denial must leave a security audit entry")
	}
}

func TestResolverAdminNeedsNoGrants(t *testing.T) {
	f := newResolverFixture(t, "")
	userID := uuid.New()

	token, _ := auth.GenerateSession(f.cfg.JWTSecret, userID, "admin@example.com", rbac.RoleAdmin, "org-1", time.Hour)

	resp, _ := f.request(t, map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestResolverServiceToken(t *testing.T) {
	f := newResolverFixture(t, rbac.PermTimelineWrite)
	f.registry.services["allocation-engine"] = &models.ServiceRecord{
		ID:         uuid.New(),
		Name:       "allocation-engine",
		Active:     true,
		AllowedOps: []string{rbac.PermTimelineWrite},
	}

	token, err := auth.SignServiceToken(f.cfg.ServiceTokenSecret, "allocation-engine", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	resp, body := f.request(t, map[string]string{auth.HeaderServiceToken: token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["performer"] != "allocation-engine" {
		t.Errorf("performer = %v", body["performer"])
	}
	if len(f.registry.touched) != 1 {
		t.Error("successful auth must touch last_used")
	}
}

func TestResolverServiceTokenOutsideAllowList(t *testing.T) {
	f := newResolverFixture(t, rbac.PermCaseBulkUpdate)
	f.registry.services["sla-monitor"] = &models.ServiceRecord{
		ID:         uuid.New(),
		Name:       "sla-monitor",
		Active:     true,
		AllowedOps: []string{rbac.PermTimelineWrite},
	}

	token, _ := auth.SignServiceToken(f.cfg.ServiceTokenSecret, "sla-monitor", time.Hour)

	resp, body := f.request(t, map[string]string{auth.HeaderServiceToken: token})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != services.CodeForbidden {
		t.Errorf("code = %q", errorCode(body))
	}
}

func TestResolverInvalidServiceToken(t *testing.T) {
	f := newResolverFixture(t, "")

	resp, body := f.request(t, map[string]string{auth.HeaderServiceToken: "garbage"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != "INVALID_TOKEN" {
		t.Errorf("code = %q", errorCode(body))
	}
}

func TestResolverExpiredServiceTokenDistinctCode(t *testing.T) {
	f := newResolverFixture(t, "")
	token, _ := auth.SignServiceToken(f.cfg.ServiceTokenSecret, "allocation-engine", -time.Minute)

	resp, body := f.request(t, map[string]string{auth.HeaderServiceToken: token})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != "EXPIRED_TOKEN" {
		t.Errorf("code = %q, want EXPIRED_TOKEN", errorCode(body))
	}
}

func TestResolverInactiveService(t *testing.T) {
	f := newResolverFixture(t, "")
	f.registry.services["retired-bridge"] = &models.ServiceRecord{
		ID:     uuid.New(),
		Name:   "retired-bridge",
		Active: false,
	}

	token, _ := auth.SignServiceToken(f.cfg.ServiceTokenSecret, "retired-bridge", time.Hour)

	resp, body := f.request(t, map[string]string{auth.HeaderServiceToken: token})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != "SERVICE_INACTIVE" {
		t.Errorf("code = %q", errorCode(body))
	}
}

func TestResolverBrowserWithServiceTokenRejected(t *testing.T) {
	f := newResolverFixture(t, "")
	f.registry.services["allocation-engine"] = &models.ServiceRecord{
		ID: uuid.New(), Name: "allocation-engine", Active: true,
	}

	// A perfectly valid token presented by a browser is still rejected.
	token, _ := auth.SignServiceToken(f.cfg.ServiceTokenSecret, "allocation-engine", time.Hour)

	resp, body := f.request(t, map[string]string{
		auth.HeaderServiceToken: token,
		"User-Agent":            "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0",
		"Sec-Fetch-Site":        "same-origin",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != services.CodeForbidden {
		t.Errorf("code = %q", errorCode(body))
	}

	found := false
	for _, e := range f.audit.entries {
		if e.Action == auth.EventBrowserWithServiceToken {
			found = true
			meta, _ := e.Meta.(map[string]any)
			if meta["severity"] != auth.SeverityCritical {
				t.Errorf("severity = %v, want CRITICAL", meta["severity"])
			}
		}
	}
	if !found {
		t.Error("incident must be recorded in the audit log")
	}
}

func TestResolverServiceWithBrowserHeadersRejected(t *testing.T) {
	f := newResolverFixture(t, "")
	f.registry.services["allocation-engine"] = &models.ServiceRecord{
		ID: uuid.New(), Name: "allocation-engine", Active: true,
	}

	token, _ := auth.SignServiceToken(f.cfg.ServiceTokenSecret, "allocation-engine", time.Hour)

	// Non-browser user agent, valid token, but a session cookie rides along.
	resp, body := f.request(t, map[string]string{
		auth.HeaderServiceToken: token,
		"User-Agent":            "allocation-engine/2.1",
		"Cookie":                "session=stolen",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != services.CodeForbidden {
		t.Errorf("code = %q", errorCode(body))
	}
}

func TestResolverBlocksAfterRepeatedFailures(t *testing.T) {
	f := newResolverFixture(t, "")

	for i := 0; i < 3; i++ {
		resp, _ := f.request(t, map[string]string{auth.HeaderServiceToken: "garbage"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i, resp.StatusCode)
		}
	}

	// Fourth request from the same source is refused outright, valid
	// credentials or not.
	resp, body := f.request(t, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != services.CodeRateLimited {
		t.Errorf("code = %q", errorCode(body))
	}
}

func TestRequirePermissionDeniesViewer(t *testing.T) {
	f := newResolverFixture(t, rbac.PermCaseUpdateStatus)
	userID := uuid.New()
	f.regions.grants[userID] = []string{"DE"}

	token, _ := auth.GenerateSession(f.cfg.JWTSecret, userID, "viewer@example.com", rbac.RoleViewer, "org-1", time.Hour)

	resp, body := f.request(t, map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != services.CodeForbidden {
		t.Errorf("code = %q", errorCode(body))
	}

	found := false
	for _, e := range f.audit.entries {
		if e.Action == "PERMISSION_DENIED" {
			found = true
		}
	}
	if !found {
		t.Error("denial must be recorded as a security event")
	}
}

func TestResolverUnregisteredService(t *testing.T) {
	f := newResolverFixture(t, "")

	token, _ := auth.SignServiceToken(f.cfg.ServiceTokenSecret, "ghost-service", time.Hour)

	resp, body := f.request(t, map[string]string{auth.HeaderServiceToken: token})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != "SERVICE_NOT_FOUND" {
		t.Errorf("code = %q", errorCode(body))
	}
}

func TestResolverRegistryOutageIsNotAnAuthFailure(t *testing.T) {
	f := newResolverFixture(t, "")
	f.registry.services["allocation-engine"] = &models.ServiceRecord{
		ID: uuid.New(), Name: "allocation-engine", Active: true,
	}
	f.registry.findErr = errors.New("connection refused")

	token, _ := auth.SignServiceToken(f.cfg.ServiceTokenSecret, "allocation-engine", time.Hour)

	// Three lookups against a down registry: a server-side fault must not be
	// billed to the caller's address.
	for i := 0; i < 3; i++ {
		resp, body := f.request(t, map[string]string{auth.HeaderServiceToken: token})
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("attempt %d: status = %d", i, resp.StatusCode)
		}
		if errorCode(body) != services.CodeInternalError {
			t.Fatalf("attempt %d: code = %q", i, errorCode(body))
		}
	}

	// Registry recovers; the source address was never blocked.
	f.registry.findErr = nil
	resp, body := f.request(t, map[string]string{auth.HeaderServiceToken: token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
}
