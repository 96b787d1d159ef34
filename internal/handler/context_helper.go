package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/task-manager-api/internal/middleware"
	"github.com/noah-isme/task-manager-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.Claims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}
