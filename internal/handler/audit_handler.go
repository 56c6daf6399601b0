package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/pkg/response"
)

type auditService interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditHandler exposes the read side of the audit trail.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler creates a new handler.
func NewAuditHandler(svc auditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit entries
// @Description Filterable, paginated view of the append-only audit trail
// @Tags Audit
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param action query string false "Action filter"
// @Param entity_type query string false "Entity type filter"
// @Param user_id query string false "Affected user filter"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	filter := models.AuditFilter{
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		UserID:     c.Query("user_id"),
		Page:       page,
		PageSize:   pageSize,
	}

	entries, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, buildPagination(page, pageSize, total))
}
