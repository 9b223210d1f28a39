package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/auth"
	"github.com/debt-recovery/backend/internal/config"
	"github.com/debt-recovery/backend/internal/models"
	"github.com/debt-recovery/backend/internal/repositories"
	"github.com/debt-recovery/backend/internal/services"
)

const CtxActor = "actor"

// RegionStore resolves a user's region grants at request time.
type RegionStore interface {
	GetAccessibleRegions(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// ServiceRegistry looks up automated callers.
type ServiceRegistry interface {
	FindService(ctx context.Context, name string) (*models.ServiceRecord, error)
	TouchLastUsed(ctx context.Context, name string) error
}

// ActorResolver turns every inbound request into exactly one Actor or a
// rejection. The spoofing guard runs first, then the service path, then the
// human session path.
type ActorResolver struct {
	cfg      *config.Config
	regions  RegionStore
	registry ServiceRegistry
	tracker  auth.AttemptTracker
	seclog   *services.SecurityLogger
	log      *zap.Logger
}

func NewActorResolver(cfg *config.Config, regions RegionStore, registry ServiceRegistry, tracker auth.AttemptTracker, seclog *services.SecurityLogger, log *zap.Logger) *ActorResolver {
	return &ActorResolver{
		cfg:      cfg,
		regions:  regions,
		registry: registry,
		tracker:  tracker,
		seclog:   seclog,
		log:      log,
	}
}

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   fiber.Map{"code": code, "message": message},
	})
}

func (r *ActorResolver) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.IP()

		if blocked, _ := r.tracker.IsBlocked(c.Context(), ip); blocked {
			return errorJSON(c, fiber.StatusForbidden, services.CodeRateLimited, "source address temporarily blocked")
		}

		fp := auth.RequestFingerprint{
			UserAgent:    c.Get("User-Agent"),
			SecFetchSite: c.Get("Sec-Fetch-Site"),
			SecFetchMode: c.Get("Sec-Fetch-Mode"),
			SecChUA:      c.Get("Sec-CH-UA"),
			Cookie:       c.Get("Cookie"),
		}
		serviceToken := c.Get(auth.HeaderServiceToken)

		// A browser-like request presenting service credentials is an
		// impersonation attempt regardless of token validity. Rejected
		// before permission evaluation ever runs.
		if serviceToken != "" && fp.IsBrowserLike() {
			r.recordFailure(c, ip)
			r.seclog.LogEvent(c.Context(), auth.EventBrowserWithServiceToken, auth.SeverityCritical, "unknown", ip, map[string]any{
				"user_agent": fp.UserAgent,
				"path":       c.Path(),
			})
			return errorJSON(c, fiber.StatusForbidden, services.CodeForbidden, "service credentials are not accepted from browsers")
		}

		if serviceToken != "" {
			return r.resolveService(c, ip, serviceToken, fp)
		}
		return r.resolveHuman(c, ip)
	}
}

func (r *ActorResolver) resolveService(c *fiber.Ctx, ip, token string, fp auth.RequestFingerprint) error {
	claims, err := auth.VerifyServiceToken(r.cfg.ServiceTokenSecret, token)
	if err != nil {
		r.recordFailure(c, ip)
		r.seclog.LogEvent(c.Context(), auth.EventInvalidServiceToken, auth.SeverityHigh, "unknown", ip, map[string]any{
			"path": c.Path(),
		})
		code := "INVALID_TOKEN"
		if errors.Is(err, auth.ErrServiceTokenExpired) {
			code = "EXPIRED_TOKEN"
		}
		return errorJSON(c, fiber.StatusUnauthorized, code, err.Error())
	}

	record, err := r.registry.FindService(c.Context(), claims.ServiceName)
	if errors.Is(err, repositories.ErrNotFound) {
		r.recordFailure(c, ip)
		r.seclog.LogEvent(c.Context(), auth.EventInvalidServiceToken, auth.SeverityHigh, claims.ServiceName, ip, map[string]any{
			"reason": "service not registered",
		})
		return errorJSON(c, fiber.StatusUnauthorized, "SERVICE_NOT_FOUND", "service is not registered")
	}
	if err != nil {
		// A registry outage is our fault, not the caller's: no failure is
		// recorded against the source address.
		r.log.Error("service registry lookup failed", zap.Error(err), zap.String("service", claims.ServiceName))
		return errorJSON(c, fiber.StatusInternalServerError, services.CodeInternalError, "failed to resolve service")
	}
	if !record.Active {
		r.recordFailure(c, ip)
		r.seclog.LogEvent(c.Context(), auth.EventInvalidServiceToken, auth.SeverityHigh, claims.ServiceName, ip, map[string]any{
			"reason": "service inactive",
		})
		return errorJSON(c, fiber.StatusUnauthorized, "SERVICE_INACTIVE", "service is deactivated")
	}
	if !record.AllowsIP(ip) {
		r.recordFailure(c, ip)
		r.seclog.LogEvent(c.Context(), auth.EventInvalidServiceToken, auth.SeverityHigh, claims.ServiceName, ip, map[string]any{
			"reason": "ip not in allow-list",
		})
		return errorJSON(c, fiber.StatusForbidden, services.CodeForbidden, "source address not permitted for this service")
	}

	// Token and registry check out, but the request carries headers no
	// service emits. Treated as a stolen credential replayed from a
	// browser-adjacent environment.
	if fp.HasBrowserOnlyHeaders() {
		r.recordFailure(c, ip)
		r.seclog.LogEvent(c.Context(), auth.EventServiceWithBrowserHeader, auth.SeverityMedium, claims.ServiceName, ip, map[string]any{
			"path": c.Path(),
		})
		return errorJSON(c, fiber.StatusForbidden, services.CodeForbidden, "request carries browser headers")
	}

	if err := r.registry.TouchLastUsed(c.Context(), record.Name); err != nil {
		r.log.Debug("registry touch failed", zap.Error(err))
	}
	_ = r.tracker.Clear(c.Context(), ip)

	c.Locals(CtxActor, auth.ServiceActor{
		Name:       record.Name,
		RegistryID: record.ID,
		AllowedOps: record.AllowedOps,
	})
	return c.Next()
}

func (r *ActorResolver) resolveHuman(c *fiber.Ctx, ip string) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return errorJSON(c, fiber.StatusUnauthorized, services.CodeUnauthorized, "missing authorization header")
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenStr == authHeader {
		return errorJSON(c, fiber.StatusUnauthorized, services.CodeUnauthorized, "invalid authorization format")
	}

	claims, err := auth.ParseSession(r.cfg.JWTSecret, tokenStr)
	if err != nil {
		r.log.Debug("session parse error", zap.Error(err))
		return errorJSON(c, fiber.StatusUnauthorized, services.CodeUnauthorized, "invalid or expired session")
	}

	// Region grants come from the store on every request, never from the
	// client and never from a cache, so revocations bite immediately.
	regions, err := r.regions.GetAccessibleRegions(c.Context(), claims.UserID)
	if err != nil {
		r.log.Error("region grant lookup failed", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, services.CodeInternalError, "failed to resolve region access")
	}

	actor := auth.HumanActor{
		UserID:  claims.UserID,
		Email:   claims.Email,
		Role:    claims.Role,
		OrgID:   claims.OrgID,
		Regions: regions,
	}

	if !actor.IsGlobal() && len(regions) == 0 {
		r.seclog.LogEvent(c.Context(), "REGION_ACCESS_DENIED", "", claims.UserID.String(), ip, map[string]any{
			"role": claims.Role,
			"path": c.Path(),
		})
		return errorJSON(c, fiber.StatusForbidden, services.CodeRegionAccessDenied, "no accessible regions granted")
	}

	c.Locals(CtxActor, actor)
	return c.Next()
}

func (r *ActorResolver) recordFailure(c *fiber.Ctx, ip string) {
	if _, err := r.tracker.Record(c.Context(), ip); err != nil {
		r.log.Debug("attempt tracker record failed", zap.Error(err))
	}
}

// GetActor returns the resolved actor, nil when resolution did not run.
func GetActor(c *fiber.Ctx) auth.Actor {
	actor, _ := c.Locals(CtxActor).(auth.Actor)
	return actor
}

// RequirePermission gates an endpoint on a permission (human roles) or
// operation (service allow-lists). Denials are security events.
func RequirePermission(perm string, seclog *services.SecurityLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := GetActor(c)
		if actor == nil {
			return errorJSON(c, fiber.StatusUnauthorized, services.CodeUnauthorized, "no resolved actor")
		}
		if !actor.HasPermission(perm) {
			seclog.LogEvent(c.Context(), "PERMISSION_DENIED", "", actor.PerformerID(), c.IP(), map[string]any{
				"role":       actor.PerformerRole(),
				"permission": perm,
				"path":       c.Path(),
			})
			return errorJSON(c, fiber.StatusForbidden, services.CodeForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
