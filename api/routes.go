package api

import (
	agentsHandlers "backend/api/handlers/agents"
	wizardHandlers "backend/api/handlers/wizard"

	"github.com/gin-gonic/gin"
)

// Handlers 聚合全部业务 Handler
type Handlers struct {
	Wizard *wizardHandlers.Handler
	Agents *agentsHandlers.Handler
}

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	api := router.Group("/api")
	api.Use(TenantRequired())

	registerWizardRoutes(api, h)
	registerAgentRoutes(api, h)
}

// registerWizardRoutes 注册生成向导路由
func registerWizardRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	sessions := apiGroup.Group("/wizard/sessions")
	{
		sessions.POST("", h.Wizard.CreateSession)
		sessions.GET("", h.Wizard.ListSessions)
		sessions.GET("/:id", h.Wizard.GetSession)

		sessions.POST("/:id/steps/extract", h.Wizard.RunExtract)
		sessions.POST("/:id/steps/classify", h.Wizard.RunClassify)
		sessions.POST("/:id/steps/propose", h.Wizard.RunPropose)
		sessions.POST("/:id/steps/patterns", h.Wizard.RunPatterns)
		sessions.POST("/:id/steps/flow", h.Wizard.RunFlow)
		sessions.POST("/:id/steps/links", h.Wizard.RunLinks)

		sessions.POST("/:id/flow/enqueue", h.Wizard.EnqueueFlow)
		sessions.POST("/:id/apply", h.Wizard.Apply)
	}
}

// registerAgentRoutes 注册智能体目录路由
func registerAgentRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	agents := apiGroup.Group("/agents")
	{
		agents.GET("", h.Agents.List)
		agents.GET("/:id", h.Agents.Get)
	}
}
