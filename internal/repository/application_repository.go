package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fgc-kenya/admissions-api/internal/models"
)

const applicationColumns = "id, user_id, season_id, status, answers, submitted_at, reviewed_at, created_at, updated_at"

// ApplicationRepository provides database access for admissions
// applications and their status history.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository creates a new instance of ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a new draft application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.Answers == nil {
		app.Answers = []byte("{}")
	}

	const query = `INSERT INTO applications (id, user_id, season_id, status, answers, submitted_at, reviewed_at, created_at, updated_at)
		VALUES (:id, :user_id, :season_id, :status, :answers, :submitted_at, :reviewed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetByID returns an application by identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	const query = `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 LIMIT 1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by id: %w", err)
	}
	return &app, nil
}

// GetByUserAndSeason returns the user's application for one season.
func (r *ApplicationRepository) GetByUserAndSeason(ctx context.Context, userID, seasonID string) (*models.Application, error) {
	const query = `SELECT ` + applicationColumns + ` FROM applications WHERE user_id = $1 AND season_id = $2 LIMIT 1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, userID, seasonID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by user and season: %w", err)
	}
	return &app, nil
}

// UpdateAnswers mutates the draft answers. Conditioned on the status
// still being DRAFT; zero rows means the draft window has closed.
func (r *ApplicationRepository) UpdateAnswers(ctx context.Context, id string, answers []byte) (bool, error) {
	const query = `UPDATE applications SET answers = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, answers, time.Now().UTC(), models.StatusDraft)
	if err != nil {
		return false, fmt.Errorf("update application answers: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update application answers rows: %w", err)
	}
	return affected == 1, nil
}

// TransitionParams describes one conditioned status change.
type TransitionParams struct {
	ApplicationID  string
	ExpectedStatus models.ApplicationStatus
	NewStatus      models.ApplicationStatus
	Notes          *string
	ChangedBy      string
	SetSubmittedAt bool
	SetReviewedAt  bool
}

// Transition applies a compare-and-swap status update and appends the
// matching history row in the same transaction. Returns false without
// writing history when the conditioned update affected zero rows,
// which means a concurrent transition won the race.
func (r *ApplicationRepository) Transition(ctx context.Context, p TransitionParams) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	updated, err := applyTransition(ctx, tx, p)
	if err != nil {
		return false, err
	}
	if !updated {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transition: %w", err)
	}
	return true, nil
}

func applyTransition(ctx context.Context, tx *sqlx.Tx, p TransitionParams) (bool, error) {
	now := time.Now().UTC()

	setClauses := []string{"status = $3", "updated_at = $4"}
	args := []interface{}{p.ApplicationID, p.ExpectedStatus, p.NewStatus, now}
	if p.SetSubmittedAt {
		setClauses = append(setClauses, fmt.Sprintf("submitted_at = $%d", len(args)+1))
		args = append(args, now)
	}
	if p.SetReviewedAt {
		setClauses = append(setClauses, fmt.Sprintf("reviewed_at = $%d", len(args)+1))
		args = append(args, now)
	}

	query := fmt.Sprintf("UPDATE applications SET %s WHERE id = $1 AND status = $2", strings.Join(setClauses, ", "))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition application rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	const historyQuery = `INSERT INTO application_status_history (id, application_id, previous_status, new_status, notes, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, historyQuery, uuid.NewString(), p.ApplicationID, p.ExpectedStatus, p.NewStatus, p.Notes, p.ChangedBy, now); err != nil {
		return false, fmt.Errorf("insert status history: %w", err)
	}
	return true, nil
}

// BulkUpdatedRow reports one successful row within a bulk transition.
type BulkUpdatedRow struct {
	ApplicationID  string
	UserID         string
	PreviousStatus models.ApplicationStatus
}

// BulkTransition applies one target status to a batch of ids inside a
// single transaction. Missing ids, drafts and terminal-state rows are
// skipped rather than failing the batch.
func (r *ApplicationRepository) BulkTransition(ctx context.Context, ids []string, newStatus models.ApplicationStatus, notes *string, changedBy string) ([]BulkUpdatedRow, []string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin bulk transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var updated []BulkUpdatedRow
	var skipped []string

	for _, id := range ids {
		var row struct {
			UserID string                   `db:"user_id"`
			Status models.ApplicationStatus `db:"status"`
		}
		err := tx.GetContext(ctx, &row, `SELECT user_id, status FROM applications WHERE id = $1 FOR UPDATE`, id)
		if err == sql.ErrNoRows {
			skipped = append(skipped, id)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("lock application %s: %w", id, err)
		}

		if row.Status == models.StatusDraft || row.Status.Terminal() || row.Status == newStatus {
			skipped = append(skipped, id)
			continue
		}

		ok, err := applyTransition(ctx, tx, TransitionParams{
			ApplicationID:  id,
			ExpectedStatus: row.Status,
			NewStatus:      newStatus,
			Notes:          notes,
			ChangedBy:      changedBy,
			SetReviewedAt:  true,
		})
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			skipped = append(skipped, id)
			continue
		}
		updated = append(updated, BulkUpdatedRow{ApplicationID: id, UserID: row.UserID, PreviousStatus: row.Status})
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit bulk transition: %w", err)
	}
	return updated, skipped, nil
}

// List returns applications matching the filter with total count.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	baseQuery := `FROM applications WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.SeasonID != "" {
		conditions = append(conditions, fmt.Sprintf("season_id = $%d", len(args)+1))
		args = append(args, filter.SeasonID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", applicationColumns, baseQuery, pageSize, offset)

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	return apps, total, nil
}

// History returns the append-only status trail for an application.
func (r *ApplicationRepository) History(ctx context.Context, applicationID string) ([]models.ApplicationStatusHistory, error) {
	const query = `SELECT id, application_id, previous_status, new_status, notes, changed_by, created_at
		FROM application_status_history WHERE application_id = $1 ORDER BY created_at ASC`
	var history []models.ApplicationStatusHistory
	if err := r.db.SelectContext(ctx, &history, query, applicationID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return history, nil
}
