package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fgc-kenya/admissions-api/internal/middleware"
	"github.com/fgc-kenya/admissions-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func buildPagination(page, pageSize, total int) *models.Pagination {
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}
