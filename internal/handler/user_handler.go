package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/internal/rbac"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
	"github.com/fgc-kenya/admissions-api/pkg/response"
)

type userService interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Get(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, actor *models.JWTClaims, req models.CreateUserRequest, meta models.RequestMeta) (*models.User, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateUserRequest, meta models.RequestMeta) (*models.User, error)
	ChangeRole(ctx context.Context, actor *models.JWTClaims, id string, req models.ChangeRoleRequest, meta models.RequestMeta) (*models.User, error)
	RoleHistory(ctx context.Context, id string) ([]models.RoleChange, error)
	Deactivate(ctx context.Context, actor *models.JWTClaims, id string, meta models.RequestMeta) error
	Delete(ctx context.Context, actor *models.JWTClaims, id string, meta models.RequestMeta) error
	Permissions(role models.UserRole) ([]rbac.Capability, []rbac.NavItem)
}

// UserHandler wires HTTP endpoints to the user service.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Description List users with pagination and filtering
// @Tags Users
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param role query string false "Role filter"
// @Param search query string false "Search by name or email"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	filter := models.UserFilter{
		Search:    c.Query("search"),
		Page:      page,
		PageSize:  pageSize,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}
	if active := c.Query("active"); active != "" {
		v := active == "true"
		filter.Active = &v
	}

	users, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, buildPagination(page, pageSize, total))
}

// Get godoc
// @Summary Get user by id
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Create godoc
// @Summary Create user
// @Description Provision a new member account
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body models.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}

	user, err := h.service.Create(c.Request.Context(), claims, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Update godoc
// @Summary Update user profile
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body models.UpdateUserRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}

	user, err := h.service.Update(c.Request.Context(), claims, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// ChangeRole godoc
// @Summary Change a user's role
// @Description Assign a new primary role, recorded in role history
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body models.ChangeRoleRequest true "Role payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id}/role [put]
func (h *UserHandler) ChangeRole(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid role payload"))
		return
	}

	user, err := h.service.ChangeRole(c.Request.Context(), claims, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// RoleHistory godoc
// @Summary Role assignment history
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id}/role-history [get]
func (h *UserHandler) RoleHistory(c *gin.Context) {
	history, err := h.service.RoleHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Deactivate godoc
// @Summary Deactivate or delete user
// @Description Soft-disable the account and revoke its sessions; hard=true removes the row and cascades
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Param hard query bool false "Permanently delete instead of deactivating"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [delete]
func (h *UserHandler) Deactivate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	if c.Query("hard") == "true" {
		if err := h.service.Delete(c.Request.Context(), claims, c.Param("id"), requestMeta(c)); err != nil {
			response.Error(c, err)
			return
		}
		response.NoContent(c)
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), claims, c.Param("id"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Permissions godoc
// @Summary Capabilities and navigation for the caller's role
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /users/me/permissions [get]
func (h *UserHandler) Permissions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	capabilities, navigation := h.service.Permissions(claims.Role)
	response.JSON(c, http.StatusOK, gin.H{
		"role":         claims.Role,
		"capabilities": capabilities,
		"navigation":   navigation,
	}, nil)
}
