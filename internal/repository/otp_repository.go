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

// OTPRepository persists one-time passcode digests.
type OTPRepository struct {
	db *sqlx.DB
}

// NewOTPRepository creates a new instance of OTPRepository.
func NewOTPRepository(db *sqlx.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Replace deletes any outstanding code for the user+purpose pair and
// inserts the new one in a single transaction, keeping at most one
// live code per purpose per user.
func (r *OTPRepository) Replace(ctx context.Context, code *models.OTPCode) error {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin otp replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM otp_codes WHERE user_id = $1 AND purpose = $2`, code.UserID, code.Purpose); err != nil {
		return fmt.Errorf("delete prior otp: %w", err)
	}

	const insertQuery = `INSERT INTO otp_codes (id, user_id, purpose, code_digest, attempts, expires_at, created_at)
		VALUES (:id, :user_id, :purpose, :code_digest, :attempts, :expires_at, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, code); err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit otp replace: %w", err)
	}
	return nil
}

// FindLive returns the unconsumed code for a user+purpose pair.
func (r *OTPRepository) FindLive(ctx context.Context, userID string, purpose models.OTPPurpose) (*models.OTPCode, error) {
	const query = `SELECT id, user_id, purpose, code_digest, attempts, expires_at, consumed_at, created_at
		FROM otp_codes WHERE user_id = $1 AND purpose = $2 AND consumed_at IS NULL LIMIT 1`
	var code models.OTPCode
	if err := r.db.GetContext(ctx, &code, query, userID, purpose); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find live otp: %w", err)
	}
	return &code, nil
}

// IncrementAttempts bumps the failed-attempt counter and returns the
// new value.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	const query = `UPDATE otp_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`
	var attempts int
	if err := r.db.GetContext(ctx, &attempts, query, id); err != nil {
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}
	return attempts, nil
}

// Consume marks the code used. Conditioned on not already being
// consumed so a code can never verify twice.
func (r *OTPRepository) Consume(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE otp_codes SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume otp rows: %w", err)
	}
	return affected == 1, nil
}

// Delete removes a code outright, used when attempts are exhausted.
func (r *OTPRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}
