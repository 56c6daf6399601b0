package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/fgc-kenya/admissions-api/internal/models"
)

func newSessionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSessionRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{
		UserID:       "user-1",
		RefreshToken: "handle-1",
		ExpiresAt:    time.Now().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), session))
	require.NotEmpty(t, session.ID)
	require.False(t, session.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryIsValid(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("sess-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	valid, err := repo.IsValid(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, valid)

	// Revoked and expired sessions collapse to the same answer.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("sess-2", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	valid, err = repo.IsValid(context.Background(), "sess-2")
	require.NoError(t, err)
	require.False(t, valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryRotateSkipsRevoked(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	expiresAt := time.Now().Add(7 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET refresh_token")).
		WithArgs("sess-1", "handle-2", expiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RotateRefreshToken(context.Background(), "sess-1", "handle-2", expiresAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryRevokeAllForUser(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET revoked = TRUE")).
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.RevokeAllForUser(context.Background(), "user-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListActiveForUser(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "refresh_token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent", "impersonated_by", "impersonation_started_at"}).
		AddRow("sess-1", "user-1", "handle-1", now.Add(time.Hour), now, false, nil, "127.0.0.1", "test-agent", nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, refresh_token")).
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	sessions, err := repo.ListActiveForUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "sess-1", sessions[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
