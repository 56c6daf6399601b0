package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/internal/service"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
	"github.com/fgc-kenya/admissions-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// AuthCookieName is the http-only cookie the browser client uses when
// no Authorization header is present.
const AuthCookieName = "auth_token"

// JWT protects routes by requiring a valid access token, from either
// the Authorization header or the auth cookie.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// OptionalJWT attaches claims when present but does not block.
func OptionalJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		if claims, err := authService.ValidateToken(c.Request.Context(), token); err == nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	if cookie, err := c.Cookie(AuthCookieName); err == nil {
		return cookie
	}
	return ""
}

// CurrentUser returns the authenticated claims from the context, nil
// when the route was reached without authentication.
func CurrentUser(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
