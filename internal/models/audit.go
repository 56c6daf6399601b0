package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin              = "LOGIN"
	AuditActionLogout             = "LOGOUT"
	AuditActionTokenRefresh       = "TOKEN_REFRESH"
	AuditActionSessionRevoke      = "SESSION_REVOKE"
	AuditActionImpersonateStart   = "IMPERSONATE_START"
	AuditActionImpersonateEnd     = "IMPERSONATE_END"
	AuditActionUserCreate         = "USER_CREATE"
	AuditActionUserUpdate         = "USER_UPDATE"
	AuditActionUserDelete         = "USER_DELETE"
	AuditActionRoleChange         = "ROLE_CHANGE"
	AuditActionStatusChange       = "APPLICATION_STATUS_CHANGE"
	AuditActionBulkStatusChange   = "APPLICATION_BULK_STATUS_CHANGE"
	AuditActionCohortCreate       = "COHORT_CREATE"
	AuditActionCohortMemberChange = "COHORT_MEMBER_CHANGE"
)

// AuditLog represents an append-only audit trail record. AdminID is
// set when the acting operator differs from the affected user, e.g.
// during impersonation or admin review actions.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   *string   `db:"entity_id" json:"entity_id,omitempty"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	AdminID    *string   `db:"admin_id" json:"admin_id,omitempty"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter constrains audit listing queries.
type AuditFilter struct {
	Action     string
	EntityType string
	UserID     string
	Page       int
	PageSize   int
}
