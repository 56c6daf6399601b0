package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fgc-kenya/admissions-api/internal/models"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
	"github.com/fgc-kenya/admissions-api/pkg/response"
)

// RBAC enforces role-based access control for routes. The special
// "SELF" entry lets a user through when the :id path parameter matches
// their own id.
func RBAC(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}

		allowSelf := false
		allowedRoles := make(map[models.UserRole]struct{})

		for _, a := range allowed {
			if a == "SELF" {
				allowSelf = true
				continue
			}
			allowedRoles[models.UserRole(a)] = struct{}{}
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

// RequireAdmin restricts a route to the two operator roles.
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
}
