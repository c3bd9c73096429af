package tenant_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/tenant"
)

func TestAuthorize(t *testing.T) {
	developer := domain.Principal{UserID: 1, TenantID: 10, Role: domain.RoleDeveloper}
	admin := domain.Principal{UserID: 2, TenantID: 10, Role: domain.RoleAdmin}

	require.NoError(t, tenant.Authorize(developer, 10))
	require.NoError(t, tenant.Authorize(admin, 10))

	// The admin role does not grant cross-tenant access.
	err := tenant.Authorize(admin, 11)
	require.True(t, domain.IsCode(err, domain.CodeForbidden))
	err = tenant.Authorize(developer, 11)
	require.True(t, domain.IsCode(err, domain.CodeForbidden))
}

func TestRequireAdmin(t *testing.T) {
	require.NoError(t, tenant.RequireAdmin(domain.Principal{UserID: 1, TenantID: 1, Role: domain.RoleAdmin}))

	err := tenant.RequireAdmin(domain.Principal{UserID: 1, TenantID: 1, Role: domain.RoleDeveloper})
	require.True(t, domain.IsCode(err, domain.CodeForbidden))
}
