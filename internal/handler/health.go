package handler

import (
	"vault-core/internal/handler/response"

	"github.com/gin-gonic/gin"
)

// HealthCheck 进程存活探针, 聚合健康走 /health/system
func HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "UP",
		"service": "vault-server",
	})
}
