package rbac

import "github.com/fgc-kenya/admissions-api/internal/models"

// NavItem describes one route a client may render for a role.
type NavItem struct {
	Label string `json:"label"`
	Path  string `json:"path"`
	Icon  string `json:"icon,omitempty"`
}

var navSets = map[models.UserRole][]NavItem{
	models.RoleSuperAdmin: {
		{Label: "Dashboard", Path: "/admin", Icon: "dashboard"},
		{Label: "Users", Path: "/admin/users", Icon: "people"},
		{Label: "Applications", Path: "/admin/applications", Icon: "assignment"},
		{Label: "Cohorts", Path: "/admin/cohorts", Icon: "groups"},
		{Label: "Audit Log", Path: "/admin/audit", Icon: "history"},
		{Label: "Sessions", Path: "/admin/sessions", Icon: "security"},
	},
	models.RoleAdmin: {
		{Label: "Dashboard", Path: "/admin", Icon: "dashboard"},
		{Label: "Users", Path: "/admin/users", Icon: "people"},
		{Label: "Applications", Path: "/admin/applications", Icon: "assignment"},
		{Label: "Cohorts", Path: "/admin/cohorts", Icon: "groups"},
		{Label: "Audit Log", Path: "/admin/audit", Icon: "history"},
	},
	models.RoleMentor: {
		{Label: "Dashboard", Path: "/mentor", Icon: "dashboard"},
		{Label: "My Cohort", Path: "/mentor/cohort", Icon: "groups"},
		{Label: "Profile", Path: "/profile", Icon: "person"},
	},
	models.RoleStudent: {
		{Label: "Dashboard", Path: "/student", Icon: "dashboard"},
		{Label: "My Cohort", Path: "/student/cohort", Icon: "groups"},
		{Label: "My Application", Path: "/applications", Icon: "assignment"},
		{Label: "Profile", Path: "/profile", Icon: "person"},
	},
	models.RoleAlumni: {
		{Label: "Dashboard", Path: "/alumni", Icon: "dashboard"},
		{Label: "Directory", Path: "/alumni/directory", Icon: "people"},
		{Label: "Profile", Path: "/profile", Icon: "person"},
	},
	models.RoleUser: {
		{Label: "Home", Path: "/", Icon: "home"},
		{Label: "Apply", Path: "/applications", Icon: "assignment"},
		{Label: "Profile", Path: "/profile", Icon: "person"},
	},
}

// NavigationFor returns the ordered route descriptors a role may see.
// Total over the role enum; unknown roles fall back to the USER set so
// the result is never empty.
func NavigationFor(role models.UserRole) []NavItem {
	items, ok := navSets[role]
	if !ok {
		items = navSets[models.RoleUser]
	}
	out := make([]NavItem, len(items))
	copy(out, items)
	return out
}
