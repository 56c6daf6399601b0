package rbac

import (
	"github.com/fgc-kenya/admissions-api/internal/models"
)

// Capability is an opaque tag identifying one authorized action.
type Capability string

const (
	CapManageUsers        Capability = "users:manage"
	CapManageRoles        Capability = "users:change-role"
	CapImpersonate        Capability = "sessions:impersonate"
	CapRevokeSessions     Capability = "sessions:revoke"
	CapViewAuditLog       Capability = "audit:read"
	CapReviewApplications Capability = "applications:review"
	CapExportApplications Capability = "applications:export"
	CapSubmitApplication  Capability = "applications:submit"
	CapManageCohorts      Capability = "cohorts:manage"
	CapMentorCohort       Capability = "cohorts:mentor"
	CapJoinCohort         Capability = "cohorts:participate"
	CapAlumniDirectory    Capability = "alumni:directory"
	CapViewProfile        Capability = "profile:read"
)

// capabilitySets maps each role to its fixed capability set. The
// hierarchy is not strictly linear: MENTOR and STUDENT carry disjoint
// cohort-scoped capabilities and ALUMNI is a parallel branch.
var capabilitySets = map[models.UserRole][]Capability{
	models.RoleSuperAdmin: {
		CapManageUsers, CapManageRoles, CapImpersonate, CapRevokeSessions,
		CapViewAuditLog, CapReviewApplications, CapExportApplications,
		CapManageCohorts, CapViewProfile,
	},
	models.RoleAdmin: {
		CapManageUsers, CapManageRoles, CapRevokeSessions, CapViewAuditLog,
		CapReviewApplications, CapExportApplications, CapManageCohorts,
		CapViewProfile,
	},
	models.RoleMentor: {
		CapMentorCohort, CapViewProfile,
	},
	models.RoleStudent: {
		CapJoinCohort, CapSubmitApplication, CapViewProfile,
	},
	models.RoleAlumni: {
		CapAlumniDirectory, CapViewProfile,
	},
	models.RoleUser: {
		CapSubmitApplication, CapViewProfile,
	},
}

// PermissionsFor returns the fixed capability set for a role. The
// function is total over the role enum; an unknown role resolves to
// the USER baseline so no caller ever observes an empty result.
func PermissionsFor(role models.UserRole) []Capability {
	caps, ok := capabilitySets[role]
	if !ok {
		caps = capabilitySets[models.RoleUser]
	}
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// HasCapability reports whether the role's capability set contains cap.
func HasCapability(role models.UserRole, cap Capability) bool {
	for _, c := range PermissionsFor(role) {
		if c == cap {
			return true
		}
	}
	return false
}

// Permission is a tagged variant: either a global role grant, or a role
// grant scoped to one cohort. Cohort-scoped permissions cannot be
// satisfied by the global role alone; an active membership row with a
// matching sub-role is required.
type Permission struct {
	role     models.UserRole
	cohortID string
	subRole  models.CohortSubRole
}

// Global grants actions to any holder of the role.
func Global(role models.UserRole) Permission {
	return Permission{role: role}
}

// InCohort grants actions to holders of the role who also have an
// active membership in the given cohort with the given sub-role.
func InCohort(role models.UserRole, cohortID string, subRole models.CohortSubRole) Permission {
	return Permission{role: role, cohortID: cohortID, subRole: subRole}
}

// CohortScoped reports whether the permission carries a cohort
// requirement.
func (p Permission) CohortScoped() bool {
	return p.cohortID != ""
}

// CohortID returns the scoping cohort, empty for global permissions.
func (p Permission) CohortID() string {
	return p.cohortID
}

// Grants evaluates the permission against a user's global role and, for
// cohort-scoped permissions, their membership row (nil when absent).
// Pure: the caller supplies the membership, no I/O happens here.
func (p Permission) Grants(role models.UserRole, membership *models.CohortMembership) bool {
	if role != p.role {
		return false
	}
	if !p.CohortScoped() {
		return true
	}
	if membership == nil || !membership.Active {
		return false
	}
	return membership.CohortID == p.cohortID && membership.SubRole == p.subRole
}

// Authorize reports whether the role satisfies at least one of the
// required permissions. Membership may be nil for global-only checks.
func Authorize(role models.UserRole, membership *models.CohortMembership, required ...Permission) bool {
	for _, p := range required {
		if p.Grants(role, membership) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the role carries application review rights.
func IsAdmin(role models.UserRole) bool {
	return role == models.RoleSuperAdmin || role == models.RoleAdmin
}
