package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fgc-kenya/admissions-api/internal/models"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
)

type userRepoStub struct {
	users map[string]*models.User
}

func newUserRepoStub(users ...*models.User) *userRepoStub {
	s := &userRepoStub{users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *userRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if u, ok := s.users[id]; ok {
		u.LastLogin = &ts
	}
	return nil
}

func (s *userRepoStub) MarkEmailVerified(ctx context.Context, id string) error {
	if u, ok := s.users[id]; ok {
		u.EmailVerified = true
	}
	return nil
}

type sessionRepoStub struct {
	sessions map[string]*models.Session
	nextID   int
}

func newSessionRepoStub() *sessionRepoStub {
	return &sessionRepoStub{sessions: make(map[string]*models.Session)}
}

func (s *sessionRepoStub) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		s.nextID++
		session.ID = "sess-" + string(rune('0'+s.nextID))
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *sessionRepoStub) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if sess, ok := s.sessions[id]; ok {
		copy := *sess
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sessionRepoStub) FindByRefreshToken(ctx context.Context, token string) (*models.Session, error) {
	for _, sess := range s.sessions {
		if sess.RefreshToken == token {
			copy := *sess
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *sessionRepoStub) IsValid(ctx context.Context, id string) (bool, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return false, nil
	}
	return !sess.Revoked && time.Now().UTC().Before(sess.ExpiresAt), nil
}

func (s *sessionRepoStub) RotateRefreshToken(ctx context.Context, id, newToken string, expiresAt time.Time) error {
	sess, ok := s.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	sess.RefreshToken = newToken
	sess.ExpiresAt = expiresAt
	return nil
}

func (s *sessionRepoStub) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	sess, ok := s.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	sess.Revoked = true
	sess.RevokedAt = &revokedAt
	return nil
}

func (s *sessionRepoStub) ListActiveForUser(ctx context.Context, userID string) ([]models.Session, error) {
	var out []models.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && !sess.Revoked {
			out = append(out, *sess)
		}
	}
	return out, nil
}

type otpVerifierStub struct {
	issued    int
	verifyErr error
}

func (s *otpVerifierStub) Issue(ctx context.Context, user *models.User, purpose models.OTPPurpose) error {
	s.issued++
	return nil
}

func (s *otpVerifierStub) Verify(ctx context.Context, userID string, purpose models.OTPPurpose, code string) error {
	return s.verifyErr
}

type auditRepoStub struct {
	logs []*models.AuditLog
}

func (s *auditRepoStub) Create(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func (s *auditRepoStub) actions() []string {
	out := make([]string, len(s.logs))
	for i, log := range s.logs {
		out[i] = log.Action
	}
	return out
}

func newAuthTestService(users *userRepoStub, sessions *sessionRepoStub, otp *otpVerifierStub, audit *auditRepoStub) *AuthService {
	return NewAuthService(users, sessions, otp, audit, nil, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		Issuer:             "fgc-admissions-api",
	})
}

func activeStudent() *models.User {
	return &models.User{ID: "3f1c9b0e-1f36-4a96-a6e1-000000000001", Email: "amina@fgc-kenya.org", Role: models.RoleStudent, Active: true}
}

func activeSuperAdmin() *models.User {
	return &models.User{ID: "3f1c9b0e-1f36-4a96-a6e1-000000000099", Email: "root@fgc-kenya.org", Role: models.RoleSuperAdmin, Active: true}
}

func TestLoginMintsSessionAndTokens(t *testing.T) {
	user := activeStudent()
	users := newUserRepoStub(user)
	sessions := newSessionRepoStub()
	audit := &auditRepoStub{}
	svc := newAuthTestService(users, sessions, &otpVerifierStub{}, audit)

	res, err := svc.Login(context.Background(), models.VerifyOTPRequest{
		Email:   user.Email,
		Purpose: string(models.OTPPurposeLogin),
		Code:    "123456",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, user.ID, res.User.ID)
	require.Len(t, sessions.sessions, 1)
	require.NotNil(t, user.LastLogin)
	require.Contains(t, audit.actions(), models.AuditActionLogin)

	claims, err := svc.ValidateToken(context.Background(), res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, models.RoleStudent, claims.Role)
	require.Nil(t, claims.ImpersonatedBy)
}

func TestLoginInactiveAccount(t *testing.T) {
	user := activeStudent()
	user.Active = false
	svc := newAuthTestService(newUserRepoStub(user), newSessionRepoStub(), &otpVerifierStub{}, &auditRepoStub{})

	_, err := svc.Login(context.Background(), models.VerifyOTPRequest{
		Email:   user.Email,
		Purpose: string(models.OTPPurposeLogin),
		Code:    "123456",
	})
	require.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestLoginInvalidCodePropagates(t *testing.T) {
	user := activeStudent()
	otp := &otpVerifierStub{verifyErr: appErrors.Clone(appErrors.ErrInvalidCode, "verification code is incorrect")}
	svc := newAuthTestService(newUserRepoStub(user), newSessionRepoStub(), otp, &auditRepoStub{})

	_, err := svc.Login(context.Background(), models.VerifyOTPRequest{
		Email:   user.Email,
		Purpose: string(models.OTPPurposeLogin),
		Code:    "000000",
	})
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidCode))
}

func TestValidateTokenRejectsRevokedSession(t *testing.T) {
	user := activeStudent()
	sessions := newSessionRepoStub()
	svc := newAuthTestService(newUserRepoStub(user), sessions, &otpVerifierStub{}, &auditRepoStub{})

	res, err := svc.Login(context.Background(), models.VerifyOTPRequest{
		Email:   user.Email,
		Purpose: string(models.OTPPurposeLogin),
		Code:    "123456",
	})
	require.NoError(t, err)

	for _, sess := range sessions.sessions {
		sess.Revoked = true
	}

	_, err = svc.ValidateToken(context.Background(), res.AccessToken)
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthenticated))
}

func TestRefreshRotatesToken(t *testing.T) {
	user := activeStudent()
	sessions := newSessionRepoStub()
	svc := newAuthTestService(newUserRepoStub(user), sessions, &otpVerifierStub{}, &auditRepoStub{})

	res, err := svc.Login(context.Background(), models.VerifyOTPRequest{
		Email:   user.Email,
		Purpose: string(models.OTPPurposeLogin),
		Code:    "123456",
	})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: res.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, res.RefreshToken, refreshed.RefreshToken)

	// The old handle is dead after rotation.
	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: res.RefreshToken})
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthenticated))
}

func TestLogoutRevokesSession(t *testing.T) {
	user := activeStudent()
	sessions := newSessionRepoStub()
	audit := &auditRepoStub{}
	svc := newAuthTestService(newUserRepoStub(user), sessions, &otpVerifierStub{}, audit)

	res, err := svc.Login(context.Background(), models.VerifyOTPRequest{
		Email:   user.Email,
		Purpose: string(models.OTPPurposeLogin),
		Code:    "123456",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), res.AccessToken)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(context.Background(), claims, models.RequestMeta{}))

	_, err = svc.ValidateToken(context.Background(), res.AccessToken)
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthenticated))
	require.Contains(t, audit.actions(), models.AuditActionLogout)
}

func TestRevokeSessionOwnershipCheck(t *testing.T) {
	owner := activeStudent()
	other := &models.User{ID: "3f1c9b0e-1f36-4a96-a6e1-000000000002", Email: "kip@fgc-kenya.org", Role: models.RoleStudent, Active: true}
	sessions := newSessionRepoStub()
	require.NoError(t, sessions.Create(context.Background(), &models.Session{
		UserID:       owner.ID,
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}))
	var sessionID string
	for id := range sessions.sessions {
		sessionID = id
	}
	svc := newAuthTestService(newUserRepoStub(owner, other), sessions, &otpVerifierStub{}, &auditRepoStub{})

	err := svc.RevokeSession(context.Background(), &models.JWTClaims{UserID: other.ID, Role: models.RoleStudent}, sessionID, models.RequestMeta{})
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	err = svc.RevokeSession(context.Background(), &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, sessionID, models.RequestMeta{})
	require.NoError(t, err)
	require.True(t, sessions.sessions[sessionID].Revoked)
}

func TestImpersonateGuards(t *testing.T) {
	admin := activeSuperAdmin()
	secondAdmin := &models.User{ID: "3f1c9b0e-1f36-4a96-a6e1-000000000098", Email: "root2@fgc-kenya.org", Role: models.RoleSuperAdmin, Active: true}
	target := activeStudent()
	inactive := &models.User{ID: "3f1c9b0e-1f36-4a96-a6e1-000000000003", Email: "gone@fgc-kenya.org", Role: models.RoleUser, Active: false}
	svc := newAuthTestService(newUserRepoStub(admin, secondAdmin, target, inactive), newSessionRepoStub(), &otpVerifierStub{}, &auditRepoStub{})

	adminClaims := &models.JWTClaims{UserID: admin.ID, Role: models.RoleSuperAdmin, Email: admin.Email}

	_, err := svc.Impersonate(context.Background(), &models.JWTClaims{UserID: target.ID, Role: models.RoleStudent}, models.ImpersonateRequest{TargetUserID: admin.ID})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Impersonate(context.Background(), adminClaims, models.ImpersonateRequest{TargetUserID: admin.ID})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Impersonate(context.Background(), adminClaims, models.ImpersonateRequest{TargetUserID: secondAdmin.ID})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Impersonate(context.Background(), adminClaims, models.ImpersonateRequest{TargetUserID: inactive.ID})
	require.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestImpersonateLifecycle(t *testing.T) {
	admin := activeSuperAdmin()
	target := activeStudent()
	sessions := newSessionRepoStub()
	audit := &auditRepoStub{}
	svc := newAuthTestService(newUserRepoStub(admin, target), sessions, &otpVerifierStub{}, audit)

	adminClaims := &models.JWTClaims{UserID: admin.ID, Role: models.RoleSuperAdmin, Email: admin.Email}
	res, err := svc.Impersonate(context.Background(), adminClaims, models.ImpersonateRequest{TargetUserID: target.ID})
	require.NoError(t, err)
	require.Equal(t, target.ID, res.Target.ID)
	require.Equal(t, admin.Email, res.OriginalEmail)

	claims, err := svc.ValidateToken(context.Background(), res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, target.ID, claims.UserID)
	require.Equal(t, models.RoleStudent, claims.Role)
	require.NotNil(t, claims.ImpersonatedBy)
	require.Equal(t, admin.ID, *claims.ImpersonatedBy)

	var sess *models.Session
	for _, s := range sessions.sessions {
		sess = s
	}
	require.True(t, sess.IsImpersonation())
	require.NotNil(t, sess.ImpersonationStartedAt)

	require.NoError(t, svc.EndImpersonation(context.Background(), claims, models.RequestMeta{}))
	require.True(t, sess.Revoked)

	actions := audit.actions()
	require.Contains(t, actions, models.AuditActionImpersonateStart)
	require.Contains(t, actions, models.AuditActionImpersonateEnd)

	for _, log := range audit.logs {
		if log.Action == models.AuditActionImpersonateStart {
			require.NotNil(t, log.AdminID)
			require.Equal(t, admin.ID, *log.AdminID)
			require.NotNil(t, log.UserID)
			require.Equal(t, target.ID, *log.UserID)
		}
	}
}

func TestEndImpersonationRequiresImpersonationSession(t *testing.T) {
	user := activeStudent()
	sessions := newSessionRepoStub()
	svc := newAuthTestService(newUserRepoStub(user), sessions, &otpVerifierStub{}, &auditRepoStub{})

	res, err := svc.Login(context.Background(), models.VerifyOTPRequest{
		Email:   user.Email,
		Purpose: string(models.OTPPurposeLogin),
		Code:    "123456",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), res.AccessToken)
	require.NoError(t, err)

	err = svc.EndImpersonation(context.Background(), claims, models.RequestMeta{})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRequestOTPSilentOnUnknownEmail(t *testing.T) {
	otp := &otpVerifierStub{}
	svc := newAuthTestService(newUserRepoStub(), newSessionRepoStub(), otp, &auditRepoStub{})

	err := svc.RequestOTP(context.Background(), models.RequestOTPRequest{
		Email:   "nobody@fgc-kenya.org",
		Purpose: string(models.OTPPurposeLogin),
	})
	require.NoError(t, err)
	require.Zero(t, otp.issued)
}

func TestRequestOTPIssuesForActiveUser(t *testing.T) {
	user := activeStudent()
	otp := &otpVerifierStub{}
	svc := newAuthTestService(newUserRepoStub(user), newSessionRepoStub(), otp, &auditRepoStub{})

	require.NoError(t, svc.RequestOTP(context.Background(), models.RequestOTPRequest{
		Email:   user.Email,
		Purpose: string(models.OTPPurposeLogin),
	}))
	require.Equal(t, 1, otp.issued)
}
