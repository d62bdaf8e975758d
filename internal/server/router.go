package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sponsor-core/internal/handler"
	"sponsor-core/pkg/monitor"
)

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(ops *handler.OpsHandler) *gin.Engine {
	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 4. 运维 API
	api := r.Group("/api/v1")
	{
		api.GET("/capacity", ops.GetCapacity)
		api.GET("/snapshot", ops.GetSnapshot)
		api.GET("/requests/:id", ops.GetRequest)
	}

	return r
}
