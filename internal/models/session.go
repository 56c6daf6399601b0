package models

import "time"

// Session represents a persisted authenticated session. The refresh
// token string is the lookup handle; the short-lived access JWT
// references the session by id so revocation takes effect before the
// token expires.
//
// Impersonation state lives in typed columns rather than being encoded
// into client metadata, so it can be queried and unwound.
type Session struct {
	ID                     string     `db:"id" json:"id"`
	UserID                 string     `db:"user_id" json:"user_id"`
	RefreshToken           string     `db:"refresh_token" json:"-"`
	ExpiresAt              time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	Revoked                bool       `db:"revoked" json:"revoked"`
	RevokedAt              *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IPAddress              string     `db:"ip_address" json:"ip_address"`
	UserAgent              string     `db:"user_agent" json:"user_agent"`
	ImpersonatedBy         *string    `db:"impersonated_by" json:"impersonated_by,omitempty"`
	ImpersonationStartedAt *time.Time `db:"impersonation_started_at" json:"impersonation_started_at,omitempty"`
}

// IsImpersonation reports whether the session was minted on behalf of
// another operator.
func (s *Session) IsImpersonation() bool {
	return s.ImpersonatedBy != nil
}
