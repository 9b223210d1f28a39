package models

import (
	"time"

	"github.com/google/uuid"
)

// ServiceRecord is a registry entry for an automated caller. AllowedOps is
// the explicit list of operations the service may invoke; an empty list
// means every operation is permitted (deliberate registry convention, see
// auth tests). IPAllowlist, when non-empty, restricts calling addresses.
type ServiceRecord struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
	AllowedOps  []string   `json:"allowed_ops"`
	IPAllowlist []string   `json:"ip_allowlist,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AllowsOp reports whether the service may invoke the operation. An empty
// allow-list permits everything.
func (s *ServiceRecord) AllowsOp(op string) bool {
	if len(s.AllowedOps) == 0 {
		return true
	}
	for _, o := range s.AllowedOps {
		if o == op {
			return true
		}
	}
	return false
}

// AllowsIP reports whether the caller address passes the per-service
// allow-list. An empty list places no restriction.
func (s *ServiceRecord) AllowsIP(ip string) bool {
	if len(s.IPAllowlist) == 0 {
		return true
	}
	for _, a := range s.IPAllowlist {
		if a == ip {
			return true
		}
	}
	return false
}
