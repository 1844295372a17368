package wizard

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	apicommon "backend/api/handlers/common"
	"backend/internal/infra/queue"
	"backend/internal/wizard"
	"backend/internal/worker/tasks"

	"github.com/gin-gonic/gin"
)

// Handler 生成向导 Handler
type Handler struct {
	service *wizard.Service
	queue   queue.Client // 可为 nil，此时异步流程生成接口不可用
}

// NewHandler 创建 Handler
func NewHandler(service *wizard.Service, queueClient queue.Client) *Handler {
	return &Handler{service: service, queue: queueClient}
}

// abortWithServiceError 统一的业务错误到 HTTP 状态码映射
func abortWithServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, wizard.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, wizard.ErrPrerequisiteNotMet), errors.Is(err, wizard.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// CreateSession 创建向导会话
// @Summary 创建向导会话
// @Tags Wizard
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "会话信息"
// @Success 201 {object} map[string]any
// @Router /api/wizard/sessions [post]
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), &wizard.CreateSessionRequest{
		TenantID: c.GetString("tenant_id"),
		Name:     req.Name,
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session})
}

// GetSession 查询会话（含全部阶段产物）
// @Summary 查询向导会话
// @Tags Wizard
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/wizard/sessions/{id} [get]
func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.service.GetSession(c.Request.Context(), c.GetString("tenant_id"), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// ListSessions 分页查询会话列表
// @Summary 查询向导会话列表
// @Tags Wizard
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} apicommon.ListResponse
// @Router /api/wizard/sessions [get]
func (h *Handler) ListSessions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	sessions, total, err := h.service.ListSessions(c.Request.Context(), c.GetString("tenant_id"), page, pageSize)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	c.JSON(http.StatusOK, apicommon.ListResponse{
		Items:      sessions,
		Pagination: apicommon.NewPaginationMeta(page, pageSize, total),
	})
}

// RunExtract 第 1 步：抽取能力
// @Summary 从组织描述抽取能力
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param request body ExtractRequest true "组织描述"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /api/wizard/sessions/{id}/steps/extract [post]
func (h *Handler) RunExtract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.RunExtract(c.Request.Context(), c.GetString("tenant_id"), c.Param("id"),
		wizard.ExtractInput{Text: req.Text})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunClassify 第 2 步：元素分类
// @Summary 对能力项做元素分类
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param request body ClassifyRequest false "待分类子集"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /api/wizard/sessions/{id}/steps/classify [post]
func (h *Handler) RunClassify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.RunClassify(c.Request.Context(), c.GetString("tenant_id"), c.Param("id"),
		wizard.ClassifyInput{Capabilities: req.Capabilities})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunPropose 第 3 步：智能体提案 + 优化
// @Summary 提案智能体并做一轮优化
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param request body ProposeRequest false "提案参数"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /api/wizard/sessions/{id}/steps/propose [post]
func (h *Handler) RunPropose(c *gin.Context) {
	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.RunPropose(c.Request.Context(), c.GetString("tenant_id"), c.Param("id"),
		wizard.ProposeInput{TargetCount: req.TargetCount})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunPatterns 第 4 步：行为模式 + 技能
// @Summary 指定行为模式并定义技能
// @Tags Wizard
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /api/wizard/sessions/{id}/steps/patterns [post]
func (h *Handler) RunPatterns(c *gin.Context) {
	result, err := h.service.RunPatterns(c.Request.Context(), c.GetString("tenant_id"), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunFlow 第 5 步：为单个流程元素生成 BPMN（同步）
// @Summary 为流程元素生成流程图
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param request body FlowRequest true "流程元素"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /api/wizard/sessions/{id}/steps/flow [post]
func (h *Handler) RunFlow(c *gin.Context) {
	var req FlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.RunFlow(c.Request.Context(), c.GetString("tenant_id"), c.Param("id"),
		wizard.FlowInput{
			ElementID:   req.ElementID,
			ProcessName: req.ProcessName,
			Description: req.Description,
		})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// EnqueueFlow 第 5 步异步变体：排队生成，立即返回
// @Summary 异步排队生成流程图
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param request body FlowRequest true "流程元素"
// @Success 202 {object} map[string]any
// @Failure 503 {object} map[string]string
// @Router /api/wizard/sessions/{id}/flow/enqueue [post]
func (h *Handler) EnqueueFlow(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "任务队列未启用"})
		return
	}

	var req FlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 排队前确认会话存在且属于当前租户
	if _, err := h.service.GetSession(c.Request.Context(), c.GetString("tenant_id"), c.Param("id")); err != nil {
		abortWithServiceError(c, err)
		return
	}

	if err := h.queue.EnqueueGenerateFlow(tasks.GenerateFlowPayload{
		SessionID:   c.Param("id"),
		TenantID:    c.GetString("tenant_id"),
		ElementID:   req.ElementID,
		ProcessName: req.ProcessName,
		Description: req.Description,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"enqueued": true, "element_id": req.ElementID})
}

// RunLinks 第 6 步：协作关系 + 外部集成
// @Summary 建议协作关系与外部集成
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param request body LinksRequest false "建议参数"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /api/wizard/sessions/{id}/steps/links [post]
func (h *Handler) RunLinks(c *gin.Context) {
	var req LinksRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.RunLinks(c.Request.Context(), c.GetString("tenant_id"), c.Param("id"),
		wizard.LinksInput{
			Industry:     req.Industry,
			KnownSystems: req.KnownSystems,
		})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Apply 落库：将会话产物转为永久智能体记录
// @Summary 会话产物落库
// @Tags Wizard
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /api/wizard/sessions/{id}/apply [post]
func (h *Handler) Apply(c *gin.Context) {
	result, err := h.service.Apply(c.Request.Context(), c.GetString("tenant_id"), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
