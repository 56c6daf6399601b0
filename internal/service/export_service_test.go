package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fgc-kenya/admissions-api/internal/models"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
)

type rosterListerStub struct {
	apps []models.Application
}

func (s *rosterListerStub) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(s.apps) {
		return nil, len(s.apps), nil
	}
	end := start + filter.PageSize
	if end > len(s.apps) {
		end = len(s.apps)
	}
	return s.apps[start:end], len(s.apps), nil
}

func newExportTestService(apps ...models.Application) *ExportService {
	first := "Amina"
	last := "Njoroge"
	student := activeStudent()
	student.FirstName = &first
	student.LastName = &last
	return NewExportService(&rosterListerStub{apps: apps}, newUserRepoStub(student), nil)
}

func rosterApp(id string, status models.ApplicationStatus) models.Application {
	submitted := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return models.Application{
		ID:          id,
		UserID:      activeStudent().ID,
		SeasonID:    "season-2026",
		Status:      status,
		SubmittedAt: &submitted,
	}
}

func TestApplicationsRosterCSV(t *testing.T) {
	svc := newExportTestService(rosterApp("app-1", models.StatusSubmitted), rosterApp("app-2", models.StatusShortlisted))

	doc, err := svc.ApplicationsRoster(context.Background(), models.ApplicationFilter{}, FormatCSV)
	require.NoError(t, err)
	require.Equal(t, "text/csv", doc.ContentType)
	require.True(t, strings.HasSuffix(doc.FileName, ".csv"))

	body := string(doc.Body)
	require.Contains(t, body, "Application ID,Applicant,Email,Status")
	require.Contains(t, body, "app-1,Amina Njoroge,amina@fgc-kenya.org,SUBMITTED")
	require.Contains(t, body, "app-2")
	require.Equal(t, 3, strings.Count(strings.TrimSpace(body), "\n")+1)
}

func TestApplicationsRosterPDF(t *testing.T) {
	svc := newExportTestService(rosterApp("app-1", models.StatusSubmitted))

	doc, err := svc.ApplicationsRoster(context.Background(), models.ApplicationFilter{}, FormatPDF)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", doc.ContentType)
	require.True(t, strings.HasPrefix(string(doc.Body), "%PDF"))
}

func TestApplicationsRosterUnknownFormat(t *testing.T) {
	svc := newExportTestService()

	_, err := svc.ApplicationsRoster(context.Background(), models.ApplicationFilter{}, ExportFormat("xlsx"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestApplicationsRosterSkipsUnknownApplicantGracefully(t *testing.T) {
	orphan := rosterApp("app-9", models.StatusSubmitted)
	orphan.UserID = "deleted-user"
	svc := newExportTestService(orphan)

	doc, err := svc.ApplicationsRoster(context.Background(), models.ApplicationFilter{}, FormatCSV)
	require.NoError(t, err)
	// The row survives with blank applicant columns.
	require.Contains(t, string(doc.Body), "app-9,,,SUBMITTED")
}
