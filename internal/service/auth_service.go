package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/internal/rbac"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
)

type authUserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	MarkEmailVerified(ctx context.Context, id string) error
}

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindByRefreshToken(ctx context.Context, token string) (*models.Session, error)
	IsValid(ctx context.Context, id string) (bool, error)
	RotateRefreshToken(ctx context.Context, id, newToken string, expiresAt time.Time) error
	Revoke(ctx context.Context, id string, revokedAt time.Time) error
	ListActiveForUser(ctx context.Context, userID string) ([]models.Session, error)
}

type otpVerifier interface {
	Issue(ctx context.Context, user *models.User, purpose models.OTPPurpose) error
	Verify(ctx context.Context, userID string, purpose models.OTPPurpose, code string) error
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// AuthService provides passwordless login, session management and
// impersonation use cases.
type AuthService struct {
	users     authUserStore
	sessions  sessionStore
	otp       otpVerifier
	audit     auditWriter
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserStore, sessions sessionStore, otp otpVerifier, audit auditWriter, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		otp:       otp,
		audit:     audit,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		config:    cfg,
	}
}

// RequestOTP initiates passcode issuance. The response is identical
// whether or not the email belongs to an account, so existence is not
// leaked.
func (s *AuthService) RequestOTP(ctx context.Context, req models.RequestOTPRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid otp request payload")
	}
	purpose := models.OTPPurpose(req.Purpose)
	if !purpose.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown otp purpose")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("otp requested for unknown email")
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if !user.Active {
		s.logger.Info("otp requested for inactive account", zap.String("user_id", user.ID))
		return nil
	}

	if err := s.otp.Issue(ctx, user, purpose); err != nil {
		if appErrors.Is(err, appErrors.ErrLocked) {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue code")
	}
	return nil
}

// Login completes the passwordless handshake: verifies the OTP, mints
// a session and returns a signed token pair.
func (s *AuthService) Login(ctx context.Context, req models.VerifyOTPRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.ObserveLogin(false)
			return nil, appErrors.Clone(appErrors.ErrInvalidCode, "verification code is incorrect")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	if err := s.otp.Verify(ctx, user.ID, models.OTPPurpose(req.Purpose), req.Code); err != nil {
		s.metrics.ObserveLogin(false)
		return nil, err
	}

	if models.OTPPurpose(req.Purpose) == models.OTPPurposeVerifyEmail && !user.EmailVerified {
		if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
			s.logger.Warn("failed to mark email verified", zap.Error(err))
		}
	}

	session, refreshToken, err := s.mintSession(ctx, user.ID, req.IP, req.UserAgent, nil)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.generateAccessToken(user, session.ID, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionLogin,
		EntityType: "session",
		EntityID:   &session.ID,
		UserID:     &user.ID,
		Details:    []byte(`{"method":"otp"}`),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})

	s.metrics.ObserveLogin(true)
	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     time.Now().UTC(),
		User:         userInfo(user),
	}, nil
}

// ValidateToken parses and validates an access token, then confirms
// the underlying session has not been revoked. The storage round trip
// is a single indexed existence check.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrExpired, "access token has expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthenticated.Code, appErrors.ErrUnauthenticated.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid token claims")
	}

	valid, err := s.sessions.IsValid(ctx, claims.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session")
	}
	if !valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "session has been revoked")
	}

	return claims, nil
}

// Refresh exchanges a refresh token for a new access token, rotating
// the refresh handle.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.RefreshResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	session, err := s.sessions.FindByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}

	if session.Revoked {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "session has been revoked")
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrExpired, "session has expired")
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	newRefresh, err := s.generateRefreshTokenString()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	expiresAt := time.Now().UTC().Add(s.config.RefreshTokenExpiry)
	if err := s.sessions.RotateRefreshToken(ctx, session.ID, newRefresh, expiresAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate refresh token")
	}

	accessToken, err := s.generateAccessToken(user, session.ID, session.ImpersonatedBy)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionTokenRefresh,
		EntityType: "session",
		EntityID:   &session.ID,
		UserID:     &user.ID,
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})

	return &models.RefreshResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// Logout revokes the caller's session.
func (s *AuthService) Logout(ctx context.Context, claims *models.JWTClaims, meta models.RequestMeta) error {
	if err := s.sessions.Revoke(ctx, claims.SessionID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
	}

	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionLogout,
		EntityType: "session",
		EntityID:   &claims.SessionID,
		UserID:     &claims.UserID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

// RevokeSession invalidates an arbitrary session by id, used by
// privileged operators. A revoked session is never revalidated.
func (s *AuthService) RevokeSession(ctx context.Context, actor *models.JWTClaims, sessionID string, meta models.RequestMeta) error {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}

	if session.UserID != actor.UserID && !rbac.IsAdmin(actor.Role) {
		return appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}

	if err := s.sessions.Revoke(ctx, session.ID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
	}

	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionSessionRevoke,
		EntityType: "session",
		EntityID:   &session.ID,
		UserID:     &session.UserID,
		AdminID:    &actor.UserID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

// ListSessions returns the active sessions for a user.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := s.sessions.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Impersonate creates a session for the target identity on behalf of a
// SUPER_ADMIN operator. Self-impersonation and targeting another
// SUPER_ADMIN are rejected. Both start and end are audited.
func (s *AuthService) Impersonate(ctx context.Context, actor *models.JWTClaims, req models.ImpersonateRequest) (*models.ImpersonateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid impersonation payload")
	}

	if actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "impersonation requires super admin")
	}
	if actor.UserID == req.TargetUserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot impersonate yourself")
	}

	target, err := s.users.FindByID(ctx, req.TargetUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch target user")
	}
	if target.Role == models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot impersonate another super admin")
	}
	if !target.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "target account is inactive")
	}

	startedAt := time.Now().UTC()
	session, refreshToken, err := s.mintSession(ctx, target.ID, req.IP, req.UserAgent, &impersonationMeta{
		ActorID:   actor.UserID,
		StartedAt: startedAt,
	})
	if err != nil {
		return nil, err
	}

	accessToken, err := s.generateAccessToken(target, session.ID, &actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	details, _ := json.Marshal(map[string]string{"actor_email": actor.Email, "target_email": target.Email})
	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionImpersonateStart,
		EntityType: "session",
		EntityID:   &session.ID,
		UserID:     &target.ID,
		AdminID:    &actor.UserID,
		Details:    details,
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})

	return &models.ImpersonateResponse{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		ExpiresIn:     int64(s.config.AccessTokenExpiry.Seconds()),
		Target:        userInfo(target),
		OriginalEmail: actor.Email,
		StartedAt:     startedAt,
	}, nil
}

// EndImpersonation invalidates the impersonation session and audits
// who ended it and how long it lasted.
func (s *AuthService) EndImpersonation(ctx context.Context, claims *models.JWTClaims, meta models.RequestMeta) error {
	session, err := s.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	if !session.IsImpersonation() {
		return appErrors.Clone(appErrors.ErrValidation, "session is not an impersonation")
	}

	if err := s.sessions.Revoke(ctx, session.ID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
	}

	var durationSeconds int64
	if session.ImpersonationStartedAt != nil {
		durationSeconds = int64(time.Since(*session.ImpersonationStartedAt).Seconds())
	}
	details, _ := json.Marshal(map[string]int64{"duration_seconds": durationSeconds})

	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionImpersonateEnd,
		EntityType: "session",
		EntityID:   &session.ID,
		UserID:     &session.UserID,
		AdminID:    session.ImpersonatedBy,
		Details:    details,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

type impersonationMeta struct {
	ActorID   string
	StartedAt time.Time
}

func (s *AuthService) mintSession(ctx context.Context, userID, ip, userAgent string, imp *impersonationMeta) (*models.Session, string, error) {
	refreshToken, err := s.generateRefreshTokenString()
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	session := &models.Session{
		UserID:       userID,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().UTC().Add(s.config.RefreshTokenExpiry),
		IPAddress:    ip,
		UserAgent:    userAgent,
	}
	if imp != nil {
		session.ImpersonatedBy = &imp.ActorID
		session.ImpersonationStartedAt = &imp.StartedAt
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
	}
	return session, refreshToken, nil
}

func (s *AuthService) generateAccessToken(user *models.User, sessionID string, impersonatedBy *string) (string, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID:         user.ID,
		Role:           user.Role,
		Email:          user.Email,
		SessionID:      sessionID,
		ImpersonatedBy: impersonatedBy,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) generateRefreshTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *AuthService) writeAudit(ctx context.Context, log *models.AuditLog) {
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func userInfo(user *models.User) models.UserInfo {
	return models.UserInfo{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	}
}
