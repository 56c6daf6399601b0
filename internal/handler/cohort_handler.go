package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fgc-kenya/admissions-api/internal/models"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
	"github.com/fgc-kenya/admissions-api/pkg/response"
)

type cohortService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req models.CreateCohortRequest, meta models.RequestMeta) (*models.Cohort, error)
	List(ctx context.Context) ([]models.Cohort, error)
	Get(ctx context.Context, id string) (*models.Cohort, error)
	AddMember(ctx context.Context, actor *models.JWTClaims, cohortID string, req models.AddMemberRequest, meta models.RequestMeta) (*models.CohortMembership, error)
	RemoveMember(ctx context.Context, actor *models.JWTClaims, cohortID, userID string, meta models.RequestMeta) error
	ListMembers(ctx context.Context, actor *models.JWTClaims, cohortID string) ([]models.CohortMembership, error)
}

// CohortHandler wires HTTP endpoints to the cohort service.
type CohortHandler struct {
	service cohortService
}

// NewCohortHandler creates a new handler.
func NewCohortHandler(svc cohortService) *CohortHandler {
	return &CohortHandler{service: svc}
}

// Create godoc
// @Summary Create cohort
// @Tags Cohorts
// @Accept json
// @Produce json
// @Param payload body models.CreateCohortRequest true "Cohort payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /cohorts [post]
func (h *CohortHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.CreateCohortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cohort payload"))
		return
	}

	cohort, err := h.service.Create(c.Request.Context(), claims, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cohort)
}

// List godoc
// @Summary List cohorts
// @Tags Cohorts
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /cohorts [get]
func (h *CohortHandler) List(c *gin.Context) {
	cohorts, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cohorts, nil)
}

// Get godoc
// @Summary Get cohort by id
// @Tags Cohorts
// @Produce json
// @Param id path string true "Cohort ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /cohorts/{id} [get]
func (h *CohortHandler) Get(c *gin.Context) {
	cohort, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cohort, nil)
}

// AddMember godoc
// @Summary Add a cohort member
// @Description Enrol a user with a cohort-scoped sub-role
// @Tags Cohorts
// @Accept json
// @Produce json
// @Param id path string true "Cohort ID"
// @Param payload body models.AddMemberRequest true "Member payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /cohorts/{id}/members [post]
func (h *CohortHandler) AddMember(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid member payload"))
		return
	}

	membership, err := h.service.AddMember(c.Request.Context(), claims, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, membership)
}

// RemoveMember godoc
// @Summary Remove a cohort member
// @Tags Cohorts
// @Produce json
// @Param id path string true "Cohort ID"
// @Param userId path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /cohorts/{id}/members/{userId} [delete]
func (h *CohortHandler) RemoveMember(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	if err := h.service.RemoveMember(c.Request.Context(), claims, c.Param("id"), c.Param("userId"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListMembers godoc
// @Summary List cohort members
// @Description Roster for admins and the cohort's own mentors
// @Tags Cohorts
// @Produce json
// @Param id path string true "Cohort ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /cohorts/{id}/members [get]
func (h *CohortHandler) ListMembers(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	members, err := h.service.ListMembers(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, nil)
}
