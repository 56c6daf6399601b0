package models

import "time"

// OTPPurpose distinguishes what a one-time passcode may be used for.
type OTPPurpose string

const (
	OTPPurposeLogin       OTPPurpose = "LOGIN"
	OTPPurposeVerifyEmail OTPPurpose = "VERIFY_EMAIL"
	OTPPurposeRecovery    OTPPurpose = "ACCOUNT_RECOVERY"
)

// Valid reports whether the purpose is a known member of the enum.
func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposeLogin, OTPPurposeVerifyEmail, OTPPurposeRecovery:
		return true
	}
	return false
}

// OTPCode stores the bcrypt digest of an issued passcode. The plaintext
// code only ever exists in the outbound email; at most one live code
// per user+purpose is kept.
type OTPCode struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Purpose    OTPPurpose `db:"purpose" json:"purpose"`
	CodeDigest string     `db:"code_digest" json:"-"`
	Attempts   int        `db:"attempts" json:"attempts"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	ConsumedAt *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// RequestOTPRequest initiates passcode issuance for an email address.
type RequestOTPRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required"`
}

// VerifyOTPRequest completes the passwordless login handshake.
type VerifyOTPRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Purpose   string `json:"purpose" validate:"required"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}
