package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/internal/service"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
	"github.com/fgc-kenya/admissions-api/pkg/response"
)

type exportService interface {
	ApplicationsRoster(ctx context.Context, filter models.ApplicationFilter, format service.ExportFormat) (*service.ExportDocument, error)
}

// ExportHandler streams rendered roster documents.
type ExportHandler struct {
	service exportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Applications godoc
// @Summary Export the applications roster
// @Description Download applications as CSV or PDF
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param season_id query string false "Season filter"
// @Param status query string false "Status filter"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /exports/applications [get]
func (h *ExportHandler) Applications(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	filter := models.ApplicationFilter{SeasonID: c.Query("season_id")}
	if status := c.Query("status"); status != "" {
		st := models.ApplicationStatus(status)
		if !st.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status filter"))
			return
		}
		filter.Status = &st
	}

	doc, err := h.service.ApplicationsRoster(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+doc.FileName)
	c.Data(200, doc.ContentType, doc.Body)
}
