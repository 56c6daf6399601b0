package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/internal/rbac"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
)

type cohortStore interface {
	Create(ctx context.Context, cohort *models.Cohort) error
	FindByID(ctx context.Context, id string) (*models.Cohort, error)
	List(ctx context.Context) ([]models.Cohort, error)
	AddMember(ctx context.Context, m *models.CohortMembership) error
	RemoveMember(ctx context.Context, cohortID, userID string) error
	ActiveMembership(ctx context.Context, userID, cohortID string) (*models.CohortMembership, error)
	ListMembers(ctx context.Context, cohortID string) ([]models.CohortMembership, error)
}

// CohortService manages yearly cohorts and the memberships that back
// cohort-scoped permissions.
type CohortService struct {
	cohorts   cohortStore
	users     applicantFinder
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCohortService constructs a CohortService instance.
func NewCohortService(cohorts cohortStore, users applicantFinder, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *CohortService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CohortService{
		cohorts:   cohorts,
		users:     users,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Create provisions a new cohort.
func (s *CohortService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateCohortRequest, meta models.RequestMeta) (*models.Cohort, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cohort payload")
	}

	cohort := &models.Cohort{Name: req.Name, Year: req.Year, Active: true}
	if err := s.cohorts.Create(ctx, cohort); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create cohort")
	}

	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionCohortCreate,
		EntityType: "cohort",
		EntityID:   &cohort.ID,
		AdminID:    &actor.UserID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return cohort, nil
}

// Get returns one cohort.
func (s *CohortService) Get(ctx context.Context, id string) (*models.Cohort, error) {
	cohort, err := s.cohorts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cohort not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch cohort")
	}
	return cohort, nil
}

// List returns every cohort, newest first.
func (s *CohortService) List(ctx context.Context) ([]models.Cohort, error) {
	cohorts, err := s.cohorts.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cohorts")
	}
	return cohorts, nil
}

// AddMember enrols a user into a cohort with a scoped sub-role. Only
// MENTOR and STUDENT global roles may hold cohort memberships.
func (s *CohortService) AddMember(ctx context.Context, actor *models.JWTClaims, cohortID string, req models.AddMemberRequest, meta models.RequestMeta) (*models.CohortMembership, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid member payload")
	}
	subRole := models.CohortSubRole(req.SubRole)

	cohort, err := s.Get(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	if !cohort.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cohort is closed")
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if subRole == models.CohortRoleMentor && user.Role != models.RoleMentor {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only mentors can hold the mentor sub-role")
	}

	membership := &models.CohortMembership{
		CohortID: cohort.ID,
		UserID:   user.ID,
		SubRole:  subRole,
		Active:   true,
	}
	if err := s.cohorts.AddMember(ctx, membership); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add member")
	}

	details, _ := json.Marshal(map[string]string{"sub_role": string(subRole), "change": "add"})
	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionCohortMemberChange,
		EntityType: "cohort",
		EntityID:   &cohort.ID,
		UserID:     &user.ID,
		AdminID:    &actor.UserID,
		Details:    details,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return membership, nil
}

// RemoveMember deactivates a membership. The row is kept so the
// historical record of who served in which cohort survives.
func (s *CohortService) RemoveMember(ctx context.Context, actor *models.JWTClaims, cohortID, userID string, meta models.RequestMeta) error {
	if _, err := s.membership(ctx, userID, cohortID); err != nil {
		return err
	}
	if err := s.cohorts.RemoveMember(ctx, cohortID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove member")
	}

	details, _ := json.Marshal(map[string]string{"change": "remove"})
	s.writeAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionCohortMemberChange,
		EntityType: "cohort",
		EntityID:   &cohortID,
		UserID:     &userID,
		AdminID:    &actor.UserID,
		Details:    details,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

// ListMembers returns a cohort's membership roster. Admins see any
// cohort; mentors only the cohorts they actively mentor.
func (s *CohortService) ListMembers(ctx context.Context, actor *models.JWTClaims, cohortID string) ([]models.CohortMembership, error) {
	if _, err := s.Get(ctx, cohortID); err != nil {
		return nil, err
	}

	if !rbac.IsAdmin(actor.Role) {
		membership, err := s.membershipOrNil(ctx, actor.UserID, cohortID)
		if err != nil {
			return nil, err
		}
		allowed := rbac.Authorize(actor.Role, membership,
			rbac.InCohort(models.RoleMentor, cohortID, models.CohortRoleMentor))
		if !allowed {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not a mentor of this cohort")
		}
	}

	members, err := s.cohorts.ListMembers(ctx, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list members")
	}
	return members, nil
}

// Membership returns the caller's active membership in a cohort, or
// NotFound when none exists.
func (s *CohortService) Membership(ctx context.Context, userID, cohortID string) (*models.CohortMembership, error) {
	return s.membership(ctx, userID, cohortID)
}

func (s *CohortService) membership(ctx context.Context, userID, cohortID string) (*models.CohortMembership, error) {
	m, err := s.cohorts.ActiveMembership(ctx, userID, cohortID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "membership not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch membership")
	}
	return m, nil
}

// membershipOrNil treats a missing membership as nil rather than an
// error, for permission evaluation.
func (s *CohortService) membershipOrNil(ctx context.Context, userID, cohortID string) (*models.CohortMembership, error) {
	m, err := s.cohorts.ActiveMembership(ctx, userID, cohortID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch membership")
	}
	return m, nil
}

func (s *CohortService) writeAudit(ctx context.Context, log *models.AuditLog) {
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", log.Action), zap.Error(err))
	}
}
