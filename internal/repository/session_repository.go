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

const sessionColumns = "id, user_id, refresh_token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent, impersonated_by, impersonation_started_at"

// SessionRepository persists authenticated sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new instance of SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a session entry.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sessions (id, user_id, refresh_token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent, impersonated_by, impersonation_started_at)
		VALUES (:id, :user_id, :refresh_token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent, :impersonated_by, :impersonation_started_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID returns a session by identifier.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 LIMIT 1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return &session, nil
}

// FindByRefreshToken returns a session by its refresh token handle.
func (r *SessionRepository) FindByRefreshToken(ctx context.Context, token string) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token = $1 LIMIT 1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by refresh token: %w", err)
	}
	return &session, nil
}

// IsValid is the hot-path revocation check: a single indexed lookup
// confirming the session is neither revoked nor expired.
func (r *SessionRepository) IsValid(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1 AND revoked = FALSE AND expires_at > $2)`
	var valid bool
	if err := r.db.GetContext(ctx, &valid, query, id, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("check session validity: %w", err)
	}
	return valid, nil
}

// RotateRefreshToken swaps the refresh handle during token refresh.
func (r *SessionRepository) RotateRefreshToken(ctx context.Context, id, newToken string, expiresAt time.Time) error {
	const query = `UPDATE sessions SET refresh_token = $2, expires_at = $3 WHERE id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, id, newToken, expiresAt); err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	return nil
}

// Revoke marks a session invalid. A revoked session is never
// revalidated.
func (r *SessionRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE sessions SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live session owned by a user.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	const query = `UPDATE sessions SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

// ListActiveForUser returns the user's unrevoked, unexpired sessions.
func (r *SessionRepository) ListActiveForUser(ctx context.Context, userID string) ([]models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2 ORDER BY created_at DESC`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, userID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}
