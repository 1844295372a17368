package api

import (
	agentsHandlers "backend/api/handlers/agents"
	wizardHandlers "backend/api/handlers/wizard"
	"backend/internal/catalog"
	"backend/internal/config"
	"backend/internal/infra/queue"
	"backend/internal/wizard"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 组装 gin 引擎：全局中间件、公开端点与业务路由
func SetupRouter(
	cfg *config.Config,
	db *gorm.DB,
	wizardService *wizard.Service,
	queueClient queue.Client,
) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())

	// 公开端点（不需要租户头）
	router.GET("/health", HealthCheck(db))
	router.GET("/ready", ReadinessCheck(db))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers := &Handlers{
		Wizard: wizardHandlers.NewHandler(wizardService, queueClient),
		Agents: agentsHandlers.NewHandler(catalog.NewService(db)),
	}
	RegisterRoutes(router, handlers)

	return router
}
