package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fgc-kenya/admissions-api/internal/models"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
	"github.com/fgc-kenya/admissions-api/pkg/export"
)

// ExportFormat selects the output encoding for roster exports.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

type exportApplicationLister interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
}

type exportUserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ExportDocument is a rendered export ready to stream to the client.
type ExportDocument struct {
	FileName    string
	ContentType string
	Body        []byte
}

// ExportService renders application rosters as downloadable CSV or PDF
// documents for review meetings.
type ExportService struct {
	apps   exportApplicationLister
	users  exportUserFinder
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewExportService constructs an ExportService instance.
func NewExportService(apps exportApplicationLister, users exportUserFinder, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		apps:   apps,
		users:  users,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

var rosterHeaders = []string{"Application ID", "Applicant", "Email", "Status", "Submitted At", "Reviewed At"}

// ApplicationsRoster exports the applications matching the filter.
// Paging is widened to a single large page so the roster is complete.
func (s *ExportService) ApplicationsRoster(ctx context.Context, filter models.ApplicationFilter, format ExportFormat) (*ExportDocument, error) {
	filter.Page = 1
	filter.PageSize = 100

	var rows []map[string]string
	for {
		apps, total, err := s.apps.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications for export")
		}
		for _, app := range apps {
			rows = append(rows, s.rosterRow(ctx, app))
		}
		if len(rows) >= total || len(apps) == 0 {
			break
		}
		filter.Page++
	}

	dataset := export.Dataset{Headers: rosterHeaders, Rows: rows}
	stamp := time.Now().UTC().Format("2006-01-02")

	switch format {
	case FormatCSV:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportDocument{
			FileName:    fmt.Sprintf("applications-%s.csv", stamp),
			ContentType: "text/csv",
			Body:        body,
		}, nil
	case FormatPDF:
		body, err := s.pdf.Render(dataset, "Admissions Applications")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportDocument{
			FileName:    fmt.Sprintf("applications-%s.pdf", stamp),
			ContentType: "application/pdf",
			Body:        body,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func (s *ExportService) rosterRow(ctx context.Context, app models.Application) map[string]string {
	row := map[string]string{
		"Application ID": app.ID,
		"Status":         string(app.Status),
	}
	if app.SubmittedAt != nil {
		row["Submitted At"] = app.SubmittedAt.Format(time.RFC3339)
	}
	if app.ReviewedAt != nil {
		row["Reviewed At"] = app.ReviewedAt.Format(time.RFC3339)
	}

	user, err := s.users.FindByID(ctx, app.UserID)
	if err != nil {
		s.logger.Warn("failed to resolve applicant for export", zap.String("user_id", app.UserID), zap.Error(err))
		return row
	}
	row["Email"] = user.Email
	name := ""
	if user.FirstName != nil {
		name = *user.FirstName
	}
	if user.LastName != nil {
		if name != "" {
			name += " "
		}
		name += *user.LastName
	}
	row["Applicant"] = name
	return row
}
