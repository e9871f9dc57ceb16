package server

import (
	"vault-core/internal/handler"
	"vault-core/internal/handler/response"
	"vault-core/internal/server/routes"
	"vault-core/internal/service"
	"vault-core/internal/signing"

	"vault-core/pkg/monitor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(vaultSvc *service.VaultService, signingSvc *signing.Service) *gin.Engine {
	// 0. 初始化监控指标
	monitor.Init()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	vaultHandler := handler.NewVaultHandler(vaultSvc)
	signingHandler := handler.NewSigningHandler(signingSvc)

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/health/system", vaultHandler.SystemHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler())) // 暴露给 Prometheus

	// 4. 注册 API 路由组, 业务路由都在调用方身份中间件之后
	api := r.Group("/api/v1")
	api.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"pong": true})
	})

	authed := api.Group("", handler.PrincipalAuth())
	routes.RegisterVaultRoutes(authed, vaultHandler)
	routes.RegisterSigningRoutes(authed, signingHandler)

	return r
}
