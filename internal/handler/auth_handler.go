package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fgc-kenya/admissions-api/internal/middleware"
	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/pkg/config"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
	"github.com/fgc-kenya/admissions-api/pkg/response"
)

const (
	refreshCookieName       = "refresh_token"
	impersonatingCookieName = "impersonating"
	originalEmailCookieName = "original_email"
)

type authService interface {
	RequestOTP(ctx context.Context, req models.RequestOTPRequest) error
	Login(ctx context.Context, req models.VerifyOTPRequest) (*models.LoginResponse, error)
	Refresh(ctx context.Context, req models.RefreshRequest) (*models.RefreshResponse, error)
	Logout(ctx context.Context, claims *models.JWTClaims, meta models.RequestMeta) error
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	RevokeSession(ctx context.Context, actor *models.JWTClaims, sessionID string, meta models.RequestMeta) error
	Impersonate(ctx context.Context, actor *models.JWTClaims, req models.ImpersonateRequest) (*models.ImpersonateResponse, error)
	EndImpersonation(ctx context.Context, claims *models.JWTClaims, meta models.RequestMeta) error
}

// AuthHandler wires HTTP endpoints to the auth service. Tokens are
// returned in the body for API clients and duplicated as cookies for
// the browser client.
type AuthHandler struct {
	service    authService
	cookies    config.CookieConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, cookies config.CookieConfig, accessTTL, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// RequestOTP godoc
// @Summary Request a one-time passcode
// @Description Email a short-lived passcode to the account, if one exists
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RequestOTPRequest true "OTP request payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/otp/request [post]
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req models.RequestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid otp request payload"))
		return
	}

	if err := h.service.RequestOTP(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, gin.H{"message": "if the account exists, a code has been sent"})
}

// Login godoc
// @Summary Complete passwordless login
// @Description Verify the emailed passcode and mint a session
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.VerifyOTPRequest true "Verification payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, res.AccessToken, res.RefreshToken)
	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Exchange refresh token for a new token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshRequest false "Refresh payload, cookie fallback when omitted"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		cookie, cookieErr := c.Cookie(refreshCookieName)
		if cookieErr != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "refresh token required"))
			return
		}
		req.RefreshToken = cookie
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Refresh(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, res.AccessToken, res.RefreshToken)
	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke the session and clear auth cookies
// @Tags Authentication
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	if err := h.service.Logout(c.Request.Context(), claims, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	h.clearSessionCookies(c)
	response.NoContent(c)
}

// Me godoc
// @Summary Current user claims
// @Description Return the authenticated identity from the access token
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"user_id":         claims.UserID,
		"email":           claims.Email,
		"role":            claims.Role,
		"session_id":      claims.SessionID,
		"impersonated_by": claims.ImpersonatedBy,
	}, nil)
}

// Sessions godoc
// @Summary List active sessions
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/sessions [get]
func (h *AuthHandler) Sessions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	sessions, err := h.service.ListSessions(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// RevokeSession godoc
// @Summary Revoke a session by id
// @Tags Authentication
// @Produce json
// @Param id path string true "Session ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/sessions/{id} [delete]
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	if err := h.service.RevokeSession(c.Request.Context(), claims, c.Param("id"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Impersonate godoc
// @Summary Impersonate another user
// @Description Start a support session acting as the target account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ImpersonateRequest true "Target user"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/impersonate [post]
func (h *AuthHandler) Impersonate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.ImpersonateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid impersonation payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Impersonate(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, res.AccessToken, res.RefreshToken)
	// Readable by the client so it can render the impersonation banner.
	c.SetCookie(impersonatingCookieName, "true", int(h.refreshTTL.Seconds()), "/", h.cookies.Domain, h.cookies.Secure, false)
	c.SetCookie(originalEmailCookieName, res.OriginalEmail, int(h.refreshTTL.Seconds()), "/", h.cookies.Domain, h.cookies.Secure, false)
	response.JSON(c, http.StatusOK, res, nil)
}

// EndImpersonation godoc
// @Summary End the impersonation session
// @Tags Authentication
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/impersonate [delete]
func (h *AuthHandler) EndImpersonation(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	if err := h.service.EndImpersonation(c.Request.Context(), claims, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	h.clearSessionCookies(c)
	response.NoContent(c)
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, accessToken, refreshToken string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AuthCookieName, accessToken, int(h.accessTTL.Seconds()), "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(refreshCookieName, refreshToken, int(h.refreshTTL.Seconds()), "/", h.cookies.Domain, h.cookies.Secure, true)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	for _, name := range []string{middleware.AuthCookieName, refreshCookieName, impersonatingCookieName, originalEmailCookieName} {
		c.SetCookie(name, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
	}
}
