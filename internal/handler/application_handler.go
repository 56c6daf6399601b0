package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fgc-kenya/admissions-api/internal/models"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
	"github.com/fgc-kenya/admissions-api/pkg/response"
)

type applicationService interface {
	StartDraft(ctx context.Context, actor *models.JWTClaims, req models.CreateApplicationRequest) (*models.Application, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Application, error)
	UpdateDraft(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateDraftRequest) (*models.Application, error)
	Submit(ctx context.Context, actor *models.JWTClaims, id string, meta models.RequestMeta) (*models.Application, error)
	Withdraw(ctx context.Context, actor *models.JWTClaims, id string, meta models.RequestMeta) (*models.Application, error)
	Transition(ctx context.Context, actor *models.JWTClaims, id string, req models.TransitionRequest, meta models.RequestMeta) (*models.Application, error)
	BulkTransition(ctx context.Context, actor *models.JWTClaims, req models.BulkTransitionRequest, meta models.RequestMeta) (*models.BulkTransitionResult, error)
	History(ctx context.Context, actor *models.JWTClaims, id string) ([]models.ApplicationStatusHistory, error)
	List(ctx context.Context, actor *models.JWTClaims, filter models.ApplicationFilter) ([]models.Application, int, error)
}

// ApplicationHandler wires HTTP endpoints to the application service.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler creates a new handler.
func NewApplicationHandler(svc applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: svc}
}

// Create godoc
// @Summary Start a draft application
// @Description Create a DRAFT application for the caller in one season
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body models.CreateApplicationRequest true "Draft payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /applications [post]
func (h *ApplicationHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}

	app, err := h.service.StartDraft(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// Get godoc
// @Summary Get application by id
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	app, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// UpdateDraft godoc
// @Summary Update draft answers
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body models.UpdateDraftRequest true "Answers payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id} [put]
func (h *ApplicationHandler) UpdateDraft(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid draft payload"))
		return
	}

	app, err := h.service.UpdateDraft(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Submit godoc
// @Summary Submit a draft application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id}/submit [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	app, err := h.service.Submit(c.Request.Context(), claims, c.Param("id"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Withdraw godoc
// @Summary Withdraw an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id}/withdraw [post]
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	app, err := h.service.Withdraw(c.Request.Context(), claims, c.Param("id"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Transition godoc
// @Summary Apply a review decision
// @Description Move one application to a new review status
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body models.TransitionRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id}/status [put]
func (h *ApplicationHandler) Transition(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transition payload"))
		return
	}

	app, err := h.service.Transition(c.Request.Context(), claims, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// BulkTransition godoc
// @Summary Apply a review decision to a batch
// @Description Move up to fifty applications to one status, skipping ineligible rows
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body models.BulkTransitionRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/bulk-status [put]
func (h *ApplicationHandler) BulkTransition(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.BulkTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk transition payload"))
		return
	}

	result, err := h.service.BulkTransition(c.Request.Context(), claims, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// History godoc
// @Summary Status history for an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id}/history [get]
func (h *ApplicationHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	history, err := h.service.History(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// List godoc
// @Summary List applications
// @Description List applications; non-admin callers only see their own
// @Tags Applications
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param season_id query string false "Season filter"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	page, pageSize := pageParams(c)
	filter := models.ApplicationFilter{
		UserID:   c.Query("user_id"),
		SeasonID: c.Query("season_id"),
		Page:     page,
		PageSize: pageSize,
	}
	if status := c.Query("status"); status != "" {
		st := models.ApplicationStatus(status)
		if !st.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status filter"))
			return
		}
		filter.Status = &st
	}

	apps, total, err := h.service.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, buildPagination(page, pageSize, total))
}
