package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleMentor     UserRole = "MENTOR"
	RoleStudent    UserRole = "STUDENT"
	RoleAlumni     UserRole = "ALUMNI"
	RoleUser       UserRole = "USER"
)

// AllRoles lists every role in privilege order. Used by the permission
// resolver to guarantee totality.
var AllRoles = []UserRole{
	RoleSuperAdmin,
	RoleAdmin,
	RoleMentor,
	RoleStudent,
	RoleAlumni,
	RoleUser,
}

// Valid reports whether the role is a known member of the enum.
func (r UserRole) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// User represents a member account stored in the users table.
type User struct {
	ID            string     `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	FirstName     *string    `db:"first_name" json:"first_name,omitempty"`
	LastName      *string    `db:"last_name" json:"last_name,omitempty"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	Role          UserRole   `db:"role" json:"role"`
	Active        bool       `db:"active" json:"active"`
	EmailVerified bool       `db:"email_verified" json:"email_verified"`
	LastLogin     *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// RoleChange is an append-only record of a user's role transitions.
type RoleChange struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	PreviousRole UserRole  `db:"previous_role" json:"previous_role"`
	NewRole      UserRole  `db:"new_role" json:"new_role"`
	ChangedBy    string    `db:"changed_by" json:"changed_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// CreateUserRequest is the admin payload for provisioning accounts.
type CreateUserRequest struct {
	Email         string  `json:"email" validate:"required,email"`
	FirstName     *string `json:"first_name,omitempty"`
	LastName      *string `json:"last_name,omitempty"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,kephone"`
	Role          string  `json:"role" validate:"required"`
	EmailVerified bool    `json:"email_verified"`
}

// UpdateUserRequest carries mutable profile fields.
type UpdateUserRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,kephone"`
	Active    *bool   `json:"active,omitempty"`
}

// ChangeRoleRequest assigns a new primary role.
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}
