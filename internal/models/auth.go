package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshRequest exchanges a refresh token for a new access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshResponse returns the rotated tokens.
type RefreshResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ImpersonateRequest names the account to assume.
type ImpersonateRequest struct {
	TargetUserID string `json:"target_user_id" validate:"required,uuid"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// ImpersonateResponse carries the impersonation session tokens plus the
// identities the client banner needs.
type ImpersonateResponse struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	ExpiresIn     int64     `json:"expires_in"`
	Target        UserInfo  `json:"target"`
	OriginalEmail string    `json:"original_email"`
	StartedAt     time.Time `json:"started_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName *string  `json:"first_name,omitempty"`
	LastName  *string  `json:"last_name,omitempty"`
	Role      UserRole `json:"role"`
}

// JWTClaims represents the JWT payload for access tokens. SessionID
// ties the token to a revocable session row; ImpersonatedBy is set
// only on impersonation sessions.
type JWTClaims struct {
	UserID         string   `json:"user_id"`
	Role           UserRole `json:"role"`
	Email          string   `json:"email"`
	SessionID      string   `json:"session_id"`
	ImpersonatedBy *string  `json:"impersonated_by,omitempty"`
	jwt.RegisteredClaims
}

// RequestMeta carries per-request client metadata into services.
type RequestMeta struct {
	IP        string
	UserAgent string
}
