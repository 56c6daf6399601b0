package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/internal/rbac"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
)

// kenyanPhonePattern accepts +2547XXXXXXXX, +2541XXXXXXXX and the
// local 07/01 forms.
var kenyanPhonePattern = regexp.MustCompile(`^(?:\+254|0)(?:7|1)\d{8}$`)

// RegisterValidators installs the custom validation tags used by the
// request models.
func RegisterValidators(v *validator.Validate) error {
	return v.RegisterValidation("kephone", func(fl validator.FieldLevel) bool {
		return kenyanPhonePattern.MatchString(fl.Field().String())
	})
}

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	ChangeRole(ctx context.Context, userID string, previous, next models.UserRole, changedBy string) error
	RoleHistory(ctx context.Context, userID string) ([]models.RoleChange, error)
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type sessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

// UserService manages member accounts, role assignment and the
// role-derived permission sets.
type UserService struct {
	users     userStore
	sessions  sessionRevoker
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(users userStore, sessions sessionRevoker, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{
		users:     users,
		sessions:  sessions,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Create provisions a new account with the given role.
func (s *UserService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateUserRequest, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	role := models.UserRole(req.Role)
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	if role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a super admin may create super admins")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	user := &models.User{
		Email:         email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		Role:          role,
		Active:        true,
		EmailVerified: req.EmailVerified,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionUserCreate,
		EntityType: "user",
		EntityID:   &user.ID,
		UserID:     &user.ID,
		AdminID:    &actor.UserID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return user, nil
}

// Get returns one account by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.fetch(ctx, id)
}

// Update mutates profile fields. Setting Active false also revokes
// every live session for the account.
func (s *UserService) Update(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateUserRequest, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		user.FirstName = req.FirstName
	}
	if req.LastName != nil {
		user.LastName = req.LastName
	}
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	deactivated := false
	if req.Active != nil {
		if user.Role == models.RoleSuperAdmin && !*req.Active && actor.Role != models.RoleSuperAdmin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only a super admin may deactivate a super admin")
		}
		deactivated = user.Active && !*req.Active
		user.Active = *req.Active
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if deactivated {
		if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke sessions for deactivated user", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionUserUpdate,
		EntityType: "user",
		EntityID:   &user.ID,
		UserID:     &user.ID,
		AdminID:    &actor.UserID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return user, nil
}

// ChangeRole assigns a new primary role, records it in the append-only
// role history and forces re-authentication by revoking sessions.
func (s *UserService) ChangeRole(ctx context.Context, actor *models.JWTClaims, id string, req models.ChangeRoleRequest, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	newRole := models.UserRole(req.Role)
	if !newRole.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	user, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == newRole {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user already holds this role")
	}
	if (newRole == models.RoleSuperAdmin || user.Role == models.RoleSuperAdmin) && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a super admin may grant or revoke the super admin role")
	}

	previous := user.Role
	if err := s.users.ChangeRole(ctx, user.ID, previous, newRole, actor.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change role")
	}
	user.Role = newRole

	if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke sessions after role change", zap.String("user_id", user.ID), zap.Error(err))
	}

	details, _ := json.Marshal(map[string]string{
		"previous_role": string(previous),
		"new_role":      string(newRole),
	})
	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionRoleChange,
		EntityType: "user",
		EntityID:   &user.ID,
		UserID:     &user.ID,
		AdminID:    &actor.UserID,
		Details:    details,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return user, nil
}

// RoleHistory returns the append-only trail of role assignments.
func (s *UserService) RoleHistory(ctx context.Context, id string) ([]models.RoleChange, error) {
	if _, err := s.fetch(ctx, id); err != nil {
		return nil, err
	}
	history, err := s.users.RoleHistory(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role history")
	}
	return history, nil
}

// Deactivate soft-disables the account and revokes its sessions.
func (s *UserService) Deactivate(ctx context.Context, actor *models.JWTClaims, id string, meta models.RequestMeta) error {
	user, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only a super admin may deactivate a super admin")
	}

	if err := s.users.Deactivate(ctx, user.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}
	if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke sessions for deactivated user", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionUserDelete,
		EntityType: "user",
		EntityID:   &user.ID,
		UserID:     &user.ID,
		AdminID:    &actor.UserID,
		Details:    []byte(`{"soft":true}`),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

// Delete permanently removes the account. Sessions, codes,
// applications and memberships cascade at the schema level, so this is
// reserved for super admins cleaning up bad records.
func (s *UserService) Delete(ctx context.Context, actor *models.JWTClaims, id string, meta models.RequestMeta) error {
	if actor.Role != models.RoleSuperAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only a super admin may permanently delete a user")
	}
	user, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if user.ID == actor.UserID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}

	if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke sessions for deleted user", zap.String("user_id", user.ID), zap.Error(err))
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionUserDelete,
		EntityType: "user",
		EntityID:   &user.ID,
		AdminID:    &actor.UserID,
		Details:    []byte(`{"soft":false}`),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

// List returns users matching the filter with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}

// Permissions resolves the capability set and navigation entries for a
// role. Total over the enum, so the UI never renders an empty shell.
func (s *UserService) Permissions(role models.UserRole) ([]rbac.Capability, []rbac.NavItem) {
	return rbac.PermissionsFor(role), rbac.NavigationFor(role)
}

func (s *UserService) fetch(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	return user, nil
}

func (s *UserService) writeAudit(ctx context.Context, log *models.AuditLog) {
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", log.Action), zap.Error(err))
	}
}
