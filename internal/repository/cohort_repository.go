package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fgc-kenya/admissions-api/internal/models"
)

// CohortRepository provides database access for cohorts and their
// memberships.
type CohortRepository struct {
	db *sqlx.DB
}

// NewCohortRepository creates a new instance of CohortRepository.
func NewCohortRepository(db *sqlx.DB) *CohortRepository {
	return &CohortRepository{db: db}
}

// Create inserts a new cohort.
func (r *CohortRepository) Create(ctx context.Context, cohort *models.Cohort) error {
	if cohort.ID == "" {
		cohort.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cohort.CreatedAt.IsZero() {
		cohort.CreatedAt = now
	}
	cohort.UpdatedAt = now

	const query = `INSERT INTO cohorts (id, name, year, active, created_at, updated_at)
		VALUES (:id, :name, :year, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cohort); err != nil {
		return fmt.Errorf("create cohort: %w", err)
	}
	return nil
}

// FindByID returns a cohort by identifier.
func (r *CohortRepository) FindByID(ctx context.Context, id string) (*models.Cohort, error) {
	const query = `SELECT id, name, year, active, created_at, updated_at FROM cohorts WHERE id = $1 LIMIT 1`
	var cohort models.Cohort
	if err := r.db.GetContext(ctx, &cohort, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find cohort by id: %w", err)
	}
	return &cohort, nil
}

// List returns all cohorts, newest season first.
func (r *CohortRepository) List(ctx context.Context) ([]models.Cohort, error) {
	const query = `SELECT id, name, year, active, created_at, updated_at FROM cohorts ORDER BY year DESC, name ASC`
	var cohorts []models.Cohort
	if err := r.db.SelectContext(ctx, &cohorts, query); err != nil {
		return nil, fmt.Errorf("list cohorts: %w", err)
	}
	return cohorts, nil
}

// AddMember upserts a membership row, reactivating a previous one for
// the same user+cohort pair if present.
func (r *CohortRepository) AddMember(ctx context.Context, m *models.CohortMembership) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	const query = `INSERT INTO cohort_memberships (id, cohort_id, user_id, sub_role, active, created_at, updated_at)
		VALUES (:id, :cohort_id, :user_id, :sub_role, :active, :created_at, :updated_at)
		ON CONFLICT (cohort_id, user_id) DO UPDATE SET sub_role = EXCLUDED.sub_role, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("add cohort member: %w", err)
	}
	return nil
}

// RemoveMember deactivates a membership without deleting the history.
func (r *CohortRepository) RemoveMember(ctx context.Context, cohortID, userID string) error {
	const query = `UPDATE cohort_memberships SET active = FALSE, updated_at = $3 WHERE cohort_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, cohortID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("remove cohort member: %w", err)
	}
	return nil
}

// ActiveMembership returns the active membership row linking a user to
// a cohort, or sql.ErrNoRows when none exists. Authorization for
// cohort-scoped actions depends on this lookup.
func (r *CohortRepository) ActiveMembership(ctx context.Context, userID, cohortID string) (*models.CohortMembership, error) {
	const query = `SELECT id, cohort_id, user_id, sub_role, active, created_at, updated_at
		FROM cohort_memberships WHERE user_id = $1 AND cohort_id = $2 AND active = TRUE LIMIT 1`
	var m models.CohortMembership
	if err := r.db.GetContext(ctx, &m, query, userID, cohortID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active membership: %w", err)
	}
	return &m, nil
}

// ListMembers returns every active membership in a cohort.
func (r *CohortRepository) ListMembers(ctx context.Context, cohortID string) ([]models.CohortMembership, error) {
	const query = `SELECT id, cohort_id, user_id, sub_role, active, created_at, updated_at
		FROM cohort_memberships WHERE cohort_id = $1 AND active = TRUE ORDER BY created_at ASC`
	var members []models.CohortMembership
	if err := r.db.SelectContext(ctx, &members, query, cohortID); err != nil {
		return nil, fmt.Errorf("list cohort members: %w", err)
	}
	return members, nil
}
