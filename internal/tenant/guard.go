package tenant

import (
	"github.com/voxline/voxline-agents/internal/domain"
)

// Scope checks run before any tenant-owned entity is read or written.
// They are pure functions of the principal and the target tenant; nothing
// here touches storage.

// Authorize succeeds only when the principal belongs to the target tenant.
// Cross-tenant access is never permitted, regardless of role.
func Authorize(p domain.Principal, tenantID int64) error {
	if p.TenantID != tenantID {
		return domain.NewForbidden("Access to this tenant is not permitted.")
	}
	return nil
}

// RequireAdmin succeeds only for ADMIN principals. User management and
// forced number release go through this.
func RequireAdmin(p domain.Principal) error {
	if !p.IsAdmin() {
		return domain.NewForbidden("This operation requires the ADMIN role.")
	}
	return nil
}
