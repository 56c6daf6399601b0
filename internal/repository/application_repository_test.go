package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/fgc-kenya/admissions-api/internal/models"
)

func newApplicationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func applicationRows(id, userID string, status models.ApplicationStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "user_id", "season_id", "status", "answers", "submitted_at", "reviewed_at", "created_at", "updated_at"}).
		AddRow(id, userID, "season-2026", status, []byte(`{}`), nil, nil, now, now)
}

func TestApplicationRepositoryCreateDefaultsAnswers(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	app := &models.Application{
		UserID:   "user-1",
		SeasonID: "season-2026",
		Status:   models.StatusDraft,
	}
	require.NoError(t, repo.Create(context.Background(), app))
	require.NotEmpty(t, app.ID)
	require.JSONEq(t, `{}`, string(app.Answers))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, season_id, status")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryUpdateAnswersConditionedOnDraft(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET answers")).
		WithArgs("app-1", []byte(`{"q1":"a"}`), sqlmock.AnyArg(), models.StatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateAnswers(context.Background(), "app-1", []byte(`{"q1":"a"}`))
	require.NoError(t, err)
	require.True(t, ok)

	// Zero rows means the draft window has closed.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET answers")).
		WithArgs("app-1", []byte(`{"q1":"b"}`), sqlmock.AnyArg(), models.StatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.UpdateAnswers(context.Background(), "app-1", []byte(`{"q1":"b"}`))
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryTransitionWritesHistory(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO application_status_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ok, err := repo.Transition(context.Background(), TransitionParams{
		ApplicationID:  "app-1",
		ExpectedStatus: models.StatusDraft,
		NewStatus:      models.StatusSubmitted,
		ChangedBy:      "user-1",
		SetSubmittedAt: true,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryTransitionLosesRace(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := repo.Transition(context.Background(), TransitionParams{
		ApplicationID:  "app-1",
		ExpectedStatus: models.StatusSubmitted,
		NewStatus:      models.StatusUnderReview,
		ChangedBy:      "admin-1",
		SetReviewedAt:  true,
	})
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryBulkTransitionSkipsIneligible(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()

	// Eligible row: locked, updated, history appended.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, status FROM applications WHERE id = $1 FOR UPDATE")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow("user-1", models.StatusSubmitted))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO application_status_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	// Missing row is skipped, not fatal.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, status FROM applications WHERE id = $1 FOR UPDATE")).
		WithArgs("app-2").
		WillReturnError(sql.ErrNoRows)

	// Drafts never take a review status.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, status FROM applications WHERE id = $1 FOR UPDATE")).
		WithArgs("app-3").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow("user-3", models.StatusDraft))

	// Terminal rows are immutable.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, status FROM applications WHERE id = $1 FOR UPDATE")).
		WithArgs("app-4").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow("user-4", models.StatusAccepted))

	mock.ExpectCommit()

	updated, skipped, err := repo.BulkTransition(context.Background(), []string{"app-1", "app-2", "app-3", "app-4"}, models.StatusShortlisted, nil, "admin-1")
	require.NoError(t, err)
	require.Len(t, updated, 1)
	require.Equal(t, "app-1", updated[0].ApplicationID)
	require.Equal(t, models.StatusSubmitted, updated[0].PreviousStatus)
	require.Equal(t, []string{"app-2", "app-3", "app-4"}, skipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	status := models.StatusSubmitted
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, season_id, status")).
		WithArgs("user-1", "season-2026", status).
		WillReturnRows(applicationRows("app-1", "user-1", status))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("user-1", "season-2026", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	apps, total, err := repo.List(context.Background(), models.ApplicationFilter{
		UserID:   "user-1",
		SeasonID: "season-2026",
		Status:   &status,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, apps, 1)
	require.Equal(t, "app-1", apps[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryHistoryOrdered(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "application_id", "previous_status", "new_status", "notes", "changed_by", "created_at"}).
		AddRow("h-1", "app-1", models.StatusDraft, models.StatusSubmitted, nil, "user-1", now.Add(-time.Hour)).
		AddRow("h-2", "app-1", models.StatusSubmitted, models.StatusUnderReview, nil, "admin-1", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, application_id, previous_status, new_status")).
		WithArgs("app-1").
		WillReturnRows(rows)

	history, err := repo.History(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, models.StatusSubmitted, history[0].NewStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}
