package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/fgc-kenya/admissions-api/internal/middleware"
	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/internal/service"
	"github.com/fgc-kenya/admissions-api/pkg/config"
)

// Router bundles the HTTP handlers with the middleware they share.
type Router struct {
	Auth         *AuthHandler
	Users        *UserHandler
	Applications *ApplicationHandler
	Cohorts      *CohortHandler
	Audit        *AuditHandler
	Exports      *ExportHandler

	AuthService *service.AuthService
	RateLimiter *middleware.RateLimiter
	Config      *config.Config
}

// Register mounts every API route under the configured prefix.
func (rt *Router) Register(r *gin.Engine) {
	api := r.Group(rt.Config.APIPrefix)
	api.Use(rt.RateLimiter.API())

	requireAuth := middleware.JWT(rt.AuthService)
	requireAdmin := middleware.RequireAdmin()

	auth := api.Group("/auth")
	{
		auth.POST("/otp/request", rt.RateLimiter.Login(), rt.Auth.RequestOTP)
		auth.POST("/login", rt.RateLimiter.Login(), rt.Auth.Login)
		auth.POST("/refresh", rt.Auth.Refresh)

		auth.POST("/logout", requireAuth, rt.Auth.Logout)
		auth.GET("/me", requireAuth, rt.Auth.Me)
		auth.GET("/sessions", requireAuth, rt.Auth.Sessions)
		auth.DELETE("/sessions/:id", requireAuth, rt.Auth.RevokeSession)
		auth.POST("/impersonate", requireAuth, middleware.RequireRoles(models.RoleSuperAdmin), rt.Auth.Impersonate)
		auth.DELETE("/impersonate", requireAuth, rt.Auth.EndImpersonation)
	}

	users := api.Group("/users", requireAuth)
	{
		users.GET("/me/permissions", rt.Users.Permissions)
		users.GET("", requireAdmin, rt.Users.List)
		users.POST("", requireAdmin, rt.Users.Create)
		users.GET("/:id", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), "SELF"), rt.Users.Get)
		users.PUT("/:id", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), "SELF"), rt.Users.Update)
		users.DELETE("/:id", requireAdmin, rt.Users.Deactivate)
		users.PUT("/:id/role", requireAdmin, rt.Users.ChangeRole)
		users.GET("/:id/role-history", requireAdmin, rt.Users.RoleHistory)
	}

	applications := api.Group("/applications", requireAuth)
	{
		applications.POST("", rt.Applications.Create)
		applications.GET("", rt.Applications.List)
		applications.GET("/:id", rt.Applications.Get)
		applications.PUT("/:id", rt.Applications.UpdateDraft)
		applications.POST("/:id/submit", rt.Applications.Submit)
		applications.POST("/:id/withdraw", rt.Applications.Withdraw)
		applications.GET("/:id/history", rt.Applications.History)

		applications.PUT("/:id/status", requireAdmin, rt.Applications.Transition)
		applications.PUT("/bulk-status", requireAdmin, rt.Applications.BulkTransition)
	}

	cohorts := api.Group("/cohorts", requireAuth)
	{
		cohorts.GET("", rt.Cohorts.List)
		cohorts.GET("/:id", rt.Cohorts.Get)
		cohorts.GET("/:id/members", rt.Cohorts.ListMembers)
		cohorts.POST("", requireAdmin, rt.Cohorts.Create)
		cohorts.POST("/:id/members", requireAdmin, rt.Cohorts.AddMember)
		cohorts.DELETE("/:id/members/:userId", requireAdmin, rt.Cohorts.RemoveMember)
	}

	api.GET("/audit", requireAuth, requireAdmin, rt.Audit.List)

	if rt.Config.Exports.Enabled {
		api.GET("/exports/applications", requireAuth, requireAdmin, rt.Exports.Applications)
	}
}
