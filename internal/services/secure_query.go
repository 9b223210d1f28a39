package services

import (
	"github.com/debt-recovery/backend/internal/auth"
	"github.com/debt-recovery/backend/internal/models"
	"github.com/debt-recovery/backend/internal/repositories"
)

// ScopedCaseFilter narrows a read filter to the actor's scope. Fail-closed:
// a human actor outside the global roles with zero region grants is denied
// outright, never widened to everything. Service actors read unscoped; their
// reach is bounded by the operation allow-list instead.
func ScopedCaseFilter(actor auth.Actor, base repositories.CaseFilter) (repositories.CaseFilter, *AppError) {
	switch a := actor.(type) {
	case auth.HumanActor:
		if a.IsGlobal() {
			return base, nil
		}
		if len(a.Regions) == 0 {
			return repositories.CaseFilter{}, &AppError{
				Code:    CodeRegionAccessDenied,
				Message: "no accessible regions granted",
			}
		}
		base.Regions = a.Regions
		return base, nil
	case auth.ServiceActor:
		return base, nil
	default:
		return repositories.CaseFilter{}, &AppError{
			Code:    CodeForbidden,
			Message: "unrecognized actor kind",
		}
	}
}

// CanAccessCase gates single-case access by region scope.
func CanAccessCase(actor auth.Actor, c *models.Case) *AppError {
	switch a := actor.(type) {
	case auth.HumanActor:
		if a.HasRegion(c.RegionID) {
			return nil
		}
		return &AppError{
			Code:    CodeRegionAccessDenied,
			Message: "case is outside the actor's region scope",
			Details: map[string]any{"region_id": c.RegionID},
		}
	case auth.ServiceActor:
		return nil
	default:
		return &AppError{Code: CodeForbidden, Message: "unrecognized actor kind"}
	}
}
