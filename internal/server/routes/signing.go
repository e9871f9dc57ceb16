package routes

import (
	"github.com/gin-gonic/gin"

	"vault-core/internal/handler"
)

// RegisterSigningRoutes 注册门限签名模块路由
func RegisterSigningRoutes(rg *gin.RouterGroup, h *handler.SigningHandler) {
	signing := rg.Group("/signing")
	{
		signing.POST("/path", h.SetDerivationPath)
		signing.GET("/public-key", h.GetPublicKey)
		signing.POST("/sign", h.SignMessage)
		signing.GET("/metrics", h.GetMetrics)
	}
}
