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
	"github.com/fgc-kenya/admissions-api/internal/repository"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	GetByUserAndSeason(ctx context.Context, userID, seasonID string) (*models.Application, error)
	UpdateAnswers(ctx context.Context, id string, answers []byte) (bool, error)
	Transition(ctx context.Context, p repository.TransitionParams) (bool, error)
	BulkTransition(ctx context.Context, ids []string, newStatus models.ApplicationStatus, notes *string, changedBy string) ([]repository.BulkUpdatedRow, []string, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	History(ctx context.Context, applicationID string) ([]models.ApplicationStatusHistory, error)
}

type applicantFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type decisionNotifier interface {
	SendDecision(email string, status models.ApplicationStatus)
	SendSubmissionAlert(applicantEmail, applicationID string)
}

// ApplicationService implements the admissions workflow: drafts,
// submission, review transitions and the append-only status trail.
type ApplicationService struct {
	apps      applicationStore
	users     applicantFinder
	audit     auditWriter
	notifier  decisionNotifier
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewApplicationService constructs an ApplicationService instance.
func NewApplicationService(apps applicationStore, users applicantFinder, audit auditWriter, notifier decisionNotifier, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ApplicationService{
		apps:      apps,
		users:     users,
		audit:     audit,
		notifier:  notifier,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
	}
}

// StartDraft creates a DRAFT application for the caller in one season.
// A user holds at most one application per season.
func (s *ApplicationService) StartDraft(ctx context.Context, actor *models.JWTClaims, req models.CreateApplicationRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	if _, err := s.apps.GetByUserAndSeason(ctx, actor.UserID, req.SeasonID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an application for this season already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing application")
	}

	answers := req.Answers
	if answers == nil {
		answers = json.RawMessage("{}")
	}
	app := &models.Application{
		UserID:   actor.UserID,
		SeasonID: req.SeasonID,
		Status:   models.StatusDraft,
		Answers:  answers,
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	return app, nil
}

// Get returns one application. Non-admin callers only ever see their
// own records; anything else reads as not found so ids are not probed.
func (s *ApplicationService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Application, error) {
	app, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rbac.IsAdmin(actor.Role) && app.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	return app, nil
}

// UpdateDraft replaces the answers of an editable draft.
func (s *ApplicationService) UpdateDraft(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateDraftRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid draft payload")
	}

	app, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}

	ok, err := s.apps.UpdateAnswers(ctx, app.ID, req.Answers)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update draft")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "application is no longer an editable draft")
	}
	return s.fetch(ctx, app.ID)
}

// Submit moves the caller's DRAFT to SUBMITTED and stamps submitted_at.
func (s *ApplicationService) Submit(ctx context.Context, actor *models.JWTClaims, id string, meta models.RequestMeta) (*models.Application, error) {
	app, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	if app.Status != models.StatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only a draft can be submitted")
	}

	ok, err := s.apps.Transition(ctx, repository.TransitionParams{
		ApplicationID:  app.ID,
		ExpectedStatus: models.StatusDraft,
		NewStatus:      models.StatusSubmitted,
		ChangedBy:      actor.UserID,
		SetSubmittedAt: true,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit application")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application was modified concurrently")
	}

	s.metrics.ObserveTransition(models.StatusSubmitted)
	s.audited(ctx, models.AuditActionStatusChange, app, nil, meta, models.StatusDraft, models.StatusSubmitted)
	s.notifySubmission(ctx, app)
	return s.fetch(ctx, app.ID)
}

// Withdraw lets the applicant pull a non-terminal, post-draft
// application out of the pipeline.
func (s *ApplicationService) Withdraw(ctx context.Context, actor *models.JWTClaims, id string, meta models.RequestMeta) (*models.Application, error) {
	app, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	if app.Status == models.StatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "a draft cannot be withdrawn")
	}
	if app.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "application is already in a final state")
	}

	ok, err := s.apps.Transition(ctx, repository.TransitionParams{
		ApplicationID:  app.ID,
		ExpectedStatus: app.Status,
		NewStatus:      models.StatusWithdrawn,
		ChangedBy:      actor.UserID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw application")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application was modified concurrently")
	}

	s.metrics.ObserveTransition(models.StatusWithdrawn)
	s.audited(ctx, models.AuditActionStatusChange, app, nil, meta, app.Status, models.StatusWithdrawn)
	s.notifyApplicant(ctx, app.UserID, models.StatusWithdrawn)
	return s.fetch(ctx, app.ID)
}

// Transition applies an admin review decision to one application.
func (s *ApplicationService) Transition(ctx context.Context, actor *models.JWTClaims, id string, req models.TransitionRequest, meta models.RequestMeta) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	newStatus := models.ApplicationStatus(req.Status)
	if !newStatus.ReviewTarget() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status is not a valid review target")
	}

	app, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status == models.StatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "a draft cannot be reviewed")
	}
	if app.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "application is already in a final state")
	}
	if app.Status == newStatus {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "application is already in the requested status")
	}

	ok, err := s.apps.Transition(ctx, repository.TransitionParams{
		ApplicationID:  app.ID,
		ExpectedStatus: app.Status,
		NewStatus:      newStatus,
		Notes:          req.Notes,
		ChangedBy:      actor.UserID,
		SetReviewedAt:  true,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition application")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application was modified concurrently")
	}

	s.metrics.ObserveTransition(newStatus)
	s.audited(ctx, models.AuditActionStatusChange, app, &actor.UserID, meta, app.Status, newStatus)
	s.notifyApplicant(ctx, app.UserID, newStatus)
	return s.fetch(ctx, app.ID)
}

// BulkTransition applies one review status to up to fifty
// applications. Ineligible rows are skipped and reported back rather
// than failing the batch.
func (s *ApplicationService) BulkTransition(ctx context.Context, actor *models.JWTClaims, req models.BulkTransitionRequest, meta models.RequestMeta) (*models.BulkTransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk transition payload")
	}
	newStatus := models.ApplicationStatus(req.Status)
	if !newStatus.ReviewTarget() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status is not a valid review target")
	}

	updated, skipped, err := s.apps.BulkTransition(ctx, req.ApplicationIDs, newStatus, req.Notes, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply bulk transition")
	}

	for _, row := range updated {
		s.metrics.ObserveTransition(newStatus)
		details, _ := json.Marshal(map[string]string{
			"previous_status": string(row.PreviousStatus),
			"new_status":      string(newStatus),
		})
		s.writeAudit(ctx, &models.AuditLog{
			Action:     models.AuditActionBulkStatusChange,
			EntityType: "application",
			EntityID:   strPtr(row.ApplicationID),
			UserID:     strPtr(row.UserID),
			AdminID:    &actor.UserID,
			Details:    details,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		})
		s.notifyApplicant(ctx, row.UserID, newStatus)
	}

	return &models.BulkTransitionResult{Updated: len(updated), Skipped: skipped}, nil
}

// History returns the append-only status trail, owner or admin only.
func (s *ApplicationService) History(ctx context.Context, actor *models.JWTClaims, id string) ([]models.ApplicationStatusHistory, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	history, err := s.apps.History(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status history")
	}
	return history, nil
}

// List returns applications matching the filter. Non-admin callers are
// pinned to their own records regardless of the requested filter.
func (s *ApplicationService) List(ctx context.Context, actor *models.JWTClaims, filter models.ApplicationFilter) ([]models.Application, int, error) {
	if !rbac.IsAdmin(actor.Role) {
		filter.UserID = actor.UserID
	}
	apps, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return apps, total, nil
}

func (s *ApplicationService) fetch(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch application")
	}
	return app, nil
}

func (s *ApplicationService) audited(ctx context.Context, action string, app *models.Application, adminID *string, meta models.RequestMeta, from, to models.ApplicationStatus) {
	details, _ := json.Marshal(map[string]string{
		"previous_status": string(from),
		"new_status":      string(to),
	})
	s.writeAudit(ctx, &models.AuditLog{
		Action:     action,
		EntityType: "application",
		EntityID:   &app.ID,
		UserID:     &app.UserID,
		AdminID:    adminID,
		Details:    details,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
}

func (s *ApplicationService) writeAudit(ctx context.Context, log *models.AuditLog) {
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func (s *ApplicationService) notifySubmission(ctx context.Context, app *models.Application) {
	user, err := s.users.FindByID(ctx, app.UserID)
	if err != nil {
		s.logger.Warn("failed to load applicant for notification", zap.String("user_id", app.UserID), zap.Error(err))
		return
	}
	s.notifier.SendDecision(user.Email, models.StatusSubmitted)
	s.notifier.SendSubmissionAlert(user.Email, app.ID)
}

func (s *ApplicationService) notifyApplicant(ctx context.Context, userID string, status models.ApplicationStatus) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load applicant for notification", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.notifier.SendDecision(user.Email, status)
}

func strPtr(s string) *string { return &s }
