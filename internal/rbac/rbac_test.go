package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fgc-kenya/admissions-api/internal/models"
)

func TestPermissionsForIsTotal(t *testing.T) {
	for _, role := range models.AllRoles {
		require.NotEmpty(t, PermissionsFor(role), "role %s must resolve to a capability set", role)
	}
}

func TestPermissionsForUnknownRoleFallsBack(t *testing.T) {
	caps := PermissionsFor(models.UserRole("GHOST"))
	require.Equal(t, PermissionsFor(models.RoleUser), caps)
}

func TestPermissionsForReturnsCopy(t *testing.T) {
	caps := PermissionsFor(models.RoleStudent)
	caps[0] = Capability("mutated")
	require.NotContains(t, PermissionsFor(models.RoleStudent), Capability("mutated"))
}

func TestHasCapability(t *testing.T) {
	require.True(t, HasCapability(models.RoleSuperAdmin, CapImpersonate))
	require.False(t, HasCapability(models.RoleAdmin, CapImpersonate))
	require.True(t, HasCapability(models.RoleStudent, CapSubmitApplication))
	require.False(t, HasCapability(models.RoleMentor, CapSubmitApplication))
	require.True(t, HasCapability(models.RoleAlumni, CapAlumniDirectory))
}

func TestGlobalPermissionGrants(t *testing.T) {
	p := Global(models.RoleAdmin)
	require.True(t, p.Grants(models.RoleAdmin, nil))
	require.False(t, p.Grants(models.RoleMentor, nil))
	require.False(t, p.CohortScoped())
}

func TestCohortPermissionRequiresMembership(t *testing.T) {
	p := InCohort(models.RoleMentor, "cohort-2026", models.CohortRoleMentor)
	require.True(t, p.CohortScoped())

	// Global role alone never satisfies a cohort-scoped grant.
	require.False(t, p.Grants(models.RoleMentor, nil))

	active := &models.CohortMembership{CohortID: "cohort-2026", UserID: "u1", SubRole: models.CohortRoleMentor, Active: true}
	require.True(t, p.Grants(models.RoleMentor, active))

	inactive := &models.CohortMembership{CohortID: "cohort-2026", UserID: "u1", SubRole: models.CohortRoleMentor, Active: false}
	require.False(t, p.Grants(models.RoleMentor, inactive))

	wrongCohort := &models.CohortMembership{CohortID: "cohort-2025", UserID: "u1", SubRole: models.CohortRoleMentor, Active: true}
	require.False(t, p.Grants(models.RoleMentor, wrongCohort))

	wrongSubRole := &models.CohortMembership{CohortID: "cohort-2026", UserID: "u1", SubRole: models.CohortRoleStudent, Active: true}
	require.False(t, p.Grants(models.RoleMentor, wrongSubRole))

	wrongRole := &models.CohortMembership{CohortID: "cohort-2026", UserID: "u1", SubRole: models.CohortRoleMentor, Active: true}
	require.False(t, p.Grants(models.RoleStudent, wrongRole))
}

func TestAuthorizeAnyOf(t *testing.T) {
	membership := &models.CohortMembership{CohortID: "cohort-2026", UserID: "u1", SubRole: models.CohortRoleMentor, Active: true}
	ok := Authorize(models.RoleMentor, membership,
		Global(models.RoleAdmin),
		InCohort(models.RoleMentor, "cohort-2026", models.CohortRoleMentor),
	)
	require.True(t, ok)

	require.False(t, Authorize(models.RoleStudent, nil, Global(models.RoleAdmin)))
}

func TestIsAdmin(t *testing.T) {
	require.True(t, IsAdmin(models.RoleSuperAdmin))
	require.True(t, IsAdmin(models.RoleAdmin))
	require.False(t, IsAdmin(models.RoleMentor))
	require.False(t, IsAdmin(models.RoleUser))
}

func TestNavigationForIsTotal(t *testing.T) {
	for _, role := range models.AllRoles {
		require.NotEmpty(t, NavigationFor(role), "role %s must resolve to navigation", role)
	}
	require.Equal(t, NavigationFor(models.RoleUser), NavigationFor(models.UserRole("GHOST")))
}
