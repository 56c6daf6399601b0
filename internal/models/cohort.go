package models

import "time"

// CohortSubRole is the role a member holds within one cohort,
// independent of their global role.
type CohortSubRole string

const (
	CohortRoleMentor  CohortSubRole = "MENTOR"
	CohortRoleStudent CohortSubRole = "STUDENT"
)

// Valid reports whether the sub-role is a known member of the enum.
func (r CohortSubRole) Valid() bool {
	return r == CohortRoleMentor || r == CohortRoleStudent
}

// Cohort is a named yearly program group, typically one competition
// season.
type Cohort struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Year      int       `db:"year" json:"year"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CohortMembership links a user to a cohort with a scoped sub-role.
type CohortMembership struct {
	ID        string        `db:"id" json:"id"`
	CohortID  string        `db:"cohort_id" json:"cohort_id"`
	UserID    string        `db:"user_id" json:"user_id"`
	SubRole   CohortSubRole `db:"sub_role" json:"sub_role"`
	Active    bool          `db:"active" json:"active"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// CreateCohortRequest provisions a new cohort.
type CreateCohortRequest struct {
	Name string `json:"name" validate:"required"`
	Year int    `json:"year" validate:"required,gte=2015"`
}

// AddMemberRequest enrols a user into a cohort.
type AddMemberRequest struct {
	UserID  string `json:"user_id" validate:"required,uuid"`
	SubRole string `json:"sub_role" validate:"required,oneof=MENTOR STUDENT"`
}
